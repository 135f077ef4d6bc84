package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/Recommendy/internal/messaging"
	"github.com/BTreeMap/Recommendy/internal/models"
)

// encodeFailureBody is served when a reply cannot be encoded. It keeps the
// usual envelope and, like a turn result, carries a chat-ready "response" so
// web chat clients still have something to show.
var encodeFailureBody = mustEncode(
	models.NewAPIResponseBuilder().
		WithStatus(models.APIStatusError).
		WithMessage("Failed to encode response").
		WithResult(map[string]string{"response": messaging.ErrorReply}).
		Build(),
)

func mustEncode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("api: encode fallback body: " + err.Error())
	}
	return b
}

// writeJSONResponse encodes response before touching the headers, so an
// unencodable value still yields a well-formed 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to encode response", "error", err, "status", statusCode)
		body, statusCode = encodeFailureBody, http.StatusInternalServerError
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSONResponse: failed to write response", "error", err)
	}
}

// writeError sends the error envelope with message.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, models.Error(message))
}
