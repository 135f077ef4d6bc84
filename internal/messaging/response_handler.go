package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/Recommendy/internal/flow"
	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/store"
)

// ErrorReply is sent when a turn cannot be processed.
const ErrorReply = "⚠️ Sorry, something went wrong on our side. Please try again in a moment."

// Conversations is the part of flow.ConversationManager the handler drives.
type Conversations interface {
	StartConversation(ctx context.Context, userID, displayName string) (flow.StartResult, error)
	ProcessTurn(ctx context.Context, userID, text string) (flow.TurnResult, error)
}

var _ Conversations = (*flow.ConversationManager)(nil)

// ResponseHandler routes inbound chat messages into conversations and sends
// the replies back on the same channel.
//
// The first message from a user, the first message after a finished
// conversation, and the restart keyword all start a new conversation.
type ResponseHandler struct {
	msgService Service
	convs      Conversations
	dedup      store.DedupRepo // optional

	mu     sync.Mutex
	active map[string]bool // users with a conversation in progress

	done chan struct{}
}

// NewResponseHandler creates a ResponseHandler. dedup may be nil.
func NewResponseHandler(msgService Service, convs Conversations, dedup store.DedupRepo) *ResponseHandler {
	return &ResponseHandler{
		msgService: msgService,
		convs:      convs,
		dedup:      dedup,
		active:     make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// ProcessMessage handles one inbound message.
func (rh *ResponseHandler) ProcessMessage(ctx context.Context, msg models.InboundMessage) error {
	userID, err := rh.msgService.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessMessage validation failed", "error", err, "from", msg.From)
		return fmt.Errorf("invalid sender: %w", err)
	}
	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return nil
	}

	if rh.dedup != nil && msg.ID != "" {
		fresh, err := rh.dedup.RecordInbound(msg.ID, userID)
		if err != nil {
			slog.Warn("ResponseHandler dedup check failed, processing anyway", "error", err, "id", msg.ID)
		} else if !fresh {
			slog.Debug("ResponseHandler skipping duplicate message", "id", msg.ID, "from", userID)
			return nil
		}
	}

	replies, err := rh.respond(ctx, userID, msg.Name, text)
	if err != nil {
		slog.Error("ResponseHandler turn failed", "error", err, "from", userID)
		if rh.dedup != nil && msg.ID != "" {
			if ferr := rh.dedup.ForgetInbound(msg.ID); ferr != nil {
				slog.Warn("ResponseHandler failed to release failed message", "error", ferr, "id", msg.ID)
			}
		}
		if sendErr := rh.msgService.SendMessage(ctx, userID, ErrorReply); sendErr != nil {
			slog.Error("ResponseHandler failed to send error message", "error", sendErr, "from", userID)
		}
		return err
	}

	for _, reply := range replies {
		if err := rh.msgService.SendMessage(ctx, userID, reply); err != nil {
			return fmt.Errorf("send reply to %s: %w", userID, err)
		}
	}

	if rh.dedup != nil && msg.ID != "" {
		if err := rh.dedup.MarkProcessed(msg.ID); err != nil {
			slog.Warn("ResponseHandler failed to mark message processed", "error", err, "id", msg.ID)
		}
	}
	slog.Info("ResponseHandler message handled", "from", userID, "replies", len(replies))
	return nil
}

func (rh *ResponseHandler) respond(ctx context.Context, userID, name, text string) ([]string, error) {
	if flow.IsRestart(text) || !rh.isActive(userID) {
		start, err := rh.convs.StartConversation(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		rh.setActive(userID, true)
		return []string{start.Question}, nil
	}

	result, err := rh.convs.ProcessTurn(ctx, userID, text)
	if err != nil {
		return nil, err
	}
	if result.Complete {
		rh.setActive(userID, false)
	}
	return result.Messages(), nil
}

func (rh *ResponseHandler) isActive(userID string) bool {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.active[userID]
}

func (rh *ResponseHandler) setActive(userID string, active bool) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if active {
		rh.active[userID] = true
	} else {
		delete(rh.active, userID)
	}
}

// Start begins processing messages from the messaging service until ctx is
// cancelled or the service's channel closes. Call it once.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting message processing")

	go func() {
		defer close(rh.done)
		defer slog.Info("ResponseHandler stopped message processing")

		for {
			select {
			case msg, ok := <-rh.msgService.Messages():
				if !ok {
					slog.Debug("ResponseHandler messages channel closed")
					return
				}
				if err := rh.ProcessMessage(ctx, msg); err != nil {
					slog.Error("ResponseHandler failed to process message", "error", err, "from", msg.From)
				}
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// Done is closed once the processing loop started by Start has exited.
func (rh *ResponseHandler) Done() <-chan struct{} {
	return rh.done
}
