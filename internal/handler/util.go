package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/broadcast"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/internal/task"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decode reads a JSON request body into v. An empty body leaves v as is.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps engine errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var perr *task.ProviderError
	switch {
	case errors.Is(err, task.ErrStaleResult):
		writeJSON(w, http.StatusAccepted, map[string]bool{"discarded": true})
	case errors.As(err, &perr):
		log.Warn("provider call failed", zap.String("kind", string(perr.Kind)), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":     "AI provider unavailable",
			"retryable": true,
		})
	case errors.Is(err, store.ErrConversationNotFound),
		errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, broadcast.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicateConversation),
		errors.Is(err, broadcast.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, broadcast.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, broadcast.ErrNoWindow):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
