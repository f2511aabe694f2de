package handler

import (
	"net/http"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// AssistantHandler handles AI and translation endpoints. Every call blocks
// until its task resolves; concurrent calls for the same task share one
// provider call.
type AssistantHandler struct {
	service *service.AssistantService
	logger  *logger.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(svc *service.AssistantService, log *logger.Logger) *AssistantHandler {
	return &AssistantHandler{
		service: svc,
		logger:  logger.OrGlobal(log),
	}
}

// Reply handles POST /api/v1/conversations/{id}/ai/reply
func (h *AssistantHandler) Reply(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	suggestions, err := h.service.Reply(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// Summary handles POST /api/v1/conversations/{id}/ai/summary
func (h *AssistantHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

type optimizeRequest struct {
	Text string `json:"text"`
	Tone string `json:"tone,omitempty"`
}

// Optimize handles POST /api/v1/conversations/{id}/ai/optimize
func (h *AssistantHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req optimizeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, err := h.service.Optimize(r.Context(), id, req.Text, req.Tone)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

// Busy handles GET /api/v1/conversations/{id}/ai/status
func (h *AssistantHandler) Busy(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"in_flight": h.service.Busy(id)})
}

type translateRequest struct {
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// TranslateMessage handles POST /api/v1/messages/{id}/translate
func (h *AssistantHandler) TranslateMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req translateRequest
	if !decode(w, r, &req) {
		return
	}
	for _, tag := range []string{req.SourceLanguage, req.TargetLanguage} {
		if err := middleware.ValidateLanguage(tag); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	tr, err := h.service.TranslateMessage(r.Context(), id, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tr)
}

// TranslateConversation handles POST /api/v1/conversations/{id}/translate
func (h *AssistantHandler) TranslateConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	translations, err := h.service.TranslateConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"translations": translations})
}
