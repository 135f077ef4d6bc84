package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/Recommendy/internal/models"
	"github.com/BTreeMap/Recommendy/internal/tone"
)

// allowMethod rejects requests with any other method.
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	if err := dec.Decode(v); err != nil {
		slog.Warn("Server.decodeJSON: failed to decode JSON", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return false
	}
	return true
}

// startConversationHandler resets the user's session and returns the greeting.
func (s *Server) startConversationHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req models.StartConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.startConversationHandler: validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cm.StartConversation(r.Context(), req.UserID, req.Name)
	if err != nil {
		slog.Error("Server.startConversationHandler: failed to start conversation", "error", err, "userID", req.UserID)
		writeError(w, errorStatus(err), "Failed to start conversation")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// processInputHandler runs one dialogue turn.
func (s *Server) processInputHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req models.ProcessInputRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.processInputHandler: validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cm.ProcessTurn(r.Context(), req.UserID, req.Text)
	if err != nil {
		slog.Error("Server.processInputHandler: turn failed", "error", err, "userID", req.UserID)
		writeError(w, errorStatus(err), "Failed to process input")
		return
	}
	slog.Debug("Server.processInputHandler: turn processed", "userID", req.UserID, "step", res.CurrentStep, "complete", res.Complete)
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// recommendationsHandler lists a user's recommendations, most recent first.
func (s *Server) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, models.ErrEmptyUserID.Error())
		return
	}
	recs, err := s.cm.GetRecommendations(r.Context(), userID)
	if err != nil {
		slog.Error("Server.recommendationsHandler: failed to list recommendations", "error", err, "userID", userID)
		writeError(w, http.StatusInternalServerError, "Failed to fetch recommendations")
		return
	}
	if recs == nil {
		recs = []models.RecommendationRecord{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(recs))
}

// sentimentAnalysisHandler scores a text without touching any session.
func (s *Server) sentimentAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req models.SentimentAnalysisRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, models.ErrEmptyText.Error())
		return
	}
	if len(req.Text) > models.MaxUtteranceLength {
		writeError(w, http.StatusBadRequest, models.ErrTextTooLong.Error())
		return
	}

	p, err := s.classifier.Score(r.Context(), req.Text)
	if err != nil {
		slog.Error("Server.sentimentAnalysisHandler: scoring failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to analyze sentiment")
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.SentimentAnalysisResult{
		Polarity:       p.Polarity,
		Subjectivity:   p.Subjectivity,
		Interpretation: tone.Interpret(p),
	}))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"flow_steps": s.cm.Flow().Len(),
		"twilio":     s.twilio != nil,
	})
}
