package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/twiliowhatsapp"
)

// SignatureHeader carries Twilio's request signature.
const SignatureHeader = "X-Twilio-Signature"

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioService)

// WithWebhookValidator rejects webhook requests whose signature does not
// verify. publicURL is the webhook URL as configured in Twilio; when empty it
// is rebuilt from the request.
func WithWebhookValidator(v *twiliowhatsapp.Validator, publicURL string) TwilioOption {
	return func(s *TwilioService) {
		s.validator = v
		s.publicURL = publicURL
	}
}

// TwilioService implements Service over the Twilio API. Inbound messages
// arrive through WebhookHandler.
type TwilioService struct {
	client    twiliowhatsapp.TwilioWhatsAppSender // real client or MockClient
	validator *twiliowhatsapp.Validator
	publicURL string
	messages  chan models.InboundMessage

	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a TwilioService around a Twilio sender.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender, opts ...TwilioOption) *TwilioService {
	s := &TwilioService{
		client:   client,
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAndCanonicalizeRecipient reduces a phone number or "whatsapp:" address to its digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(twiliowhatsapp.Number(recipient))
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op; inbound traffic is pushed by the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the message channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.messages)
	return nil
}

// SendMessage sends a WhatsApp message via the Twilio REST API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// Messages returns the inbound message channel.
func (s *TwilioService) Messages() <-chan models.InboundMessage {
	return s.messages
}

// WebhookHandler handles inbound Twilio message webhooks. Replies are sent
// asynchronously over the REST API, so the webhook is acknowledged with an
// empty TwiML response.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("TwilioService webhook: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.validator.Validate(s.webhookURL(r), params, r.Header.Get(SignatureHeader)) {
			slog.Warn("TwilioService webhook: invalid signature", "remote", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if from == "" || body == "" {
		slog.Warn("TwilioService webhook: missing fields", "from", from, "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	s.emit(models.InboundMessage{
		ID:   r.PostForm.Get("MessageSid"),
		From: twiliowhatsapp.Number(from),
		Name: r.PostForm.Get("ProfileName"),
		Body: body,
		Time: time.Now().Unix(),
	})

	ack, err := twiliowhatsapp.TwiML()
	if err != nil {
		slog.Error("TwilioService webhook: failed to render TwiML", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ack)
}

func (s *TwilioService) webhookURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (s *TwilioService) emit(msg models.InboundMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", msg.From)
		return
	}
	select {
	case s.messages <- msg:
		slog.Debug("TwilioService emitted inbound message", "from", msg.From, "id", msg.ID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService messages channel blocked, dropping message", "from", msg.From)
	}
}
