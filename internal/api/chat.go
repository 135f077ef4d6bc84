package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BTreeMap/Recommendy/internal/flow"
	"github.com/BTreeMap/Recommendy/internal/models"
)

// Chat message types sent by the server.
const (
	ChatTypeQuestion = "question"
	ChatTypeTurn     = "turn"
	ChatTypeError    = "error"
)

// chatMessage is one websocket frame. Clients send {"text": "..."} or plain text.
type chatMessage struct {
	Type   string           `json:"type,omitempty"`
	UserID string           `json:"user_id,omitempty"`
	Text   string           `json:"text,omitempty"`
	State  models.SlotName  `json:"state,omitempty"`
	Turn   *flow.TurnResult `json:"turn,omitempty"`
}

// chatHandler runs a conversation over a websocket. The conversation starts on
// connect; user_id and name may be passed as query parameters and a random
// user id is assigned when user_id is absent.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = uuid.NewString()
	}
	name := q.Get("name")
	if len(userID) > models.MaxUserIDLength || len(name) > models.MaxDisplayNameLength {
		writeError(w, http.StatusBadRequest, "user_id or name too long")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Server.chatHandler: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(2 * models.MaxUtteranceLength)
	slog.Info("Server.chatHandler: chat connected", "userID", userID)

	ctx := r.Context()
	start := func() bool {
		res, err := s.cm.StartConversation(ctx, userID, name)
		if err != nil {
			slog.Error("Server.chatHandler: failed to start conversation", "error", err, "userID", userID)
			conn.WriteJSON(chatMessage{Type: ChatTypeError, Text: "Failed to start conversation"})
			return false
		}
		return conn.WriteJSON(chatMessage{Type: ChatTypeQuestion, UserID: userID, Text: res.Question, State: res.State}) == nil
	}
	if !start() {
		return
	}

	complete := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Server.chatHandler: read failed", "error", err, "userID", userID)
			}
			slog.Info("Server.chatHandler: chat closed", "userID", userID)
			return
		}
		text := parseChatText(data)
		if text == "" {
			continue
		}

		if flow.IsRestart(text) || complete {
			complete = false
			if !start() {
				return
			}
			continue
		}

		res, err := s.cm.ProcessTurn(ctx, userID, text)
		if err != nil {
			slog.Error("Server.chatHandler: turn failed", "error", err, "userID", userID)
			if conn.WriteJSON(chatMessage{Type: ChatTypeError, Text: "Failed to process input"}) != nil {
				return
			}
			continue
		}
		complete = res.Complete
		if err := conn.WriteJSON(chatMessage{Type: ChatTypeTurn, UserID: userID, Turn: &res}); err != nil {
			slog.Warn("Server.chatHandler: write failed", "error", err, "userID", userID)
			return
		}
	}
}

// parseChatText accepts a JSON frame with a text field, or the raw frame as text.
func parseChatText(data []byte) string {
	var msg chatMessage
	if err := json.Unmarshal(data, &msg); err == nil {
		return strings.TrimSpace(msg.Text)
	}
	return strings.TrimSpace(string(data))
}
