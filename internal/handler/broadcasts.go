package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// BroadcastHandler handles broadcast job endpoints.
type BroadcastHandler struct {
	service *service.BroadcastService
	logger  *logger.Logger
}

// NewBroadcastHandler creates a new broadcast handler.
func NewBroadcastHandler(svc *service.BroadcastService, log *logger.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		service: svc,
		logger:  logger.OrGlobal(log),
	}
}

// Create handles POST /api/v1/broadcasts
func (h *BroadcastHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBroadcastRequest
	if !decode(w, r, &req) {
		return
	}

	job, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// List handles GET /api/v1/broadcasts
func (h *BroadcastHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.service.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"broadcasts": jobs,
		"total":      len(jobs),
	})
}

// Get handles GET /api/v1/broadcasts/{id}
func (h *BroadcastHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, h.service.Get)
}

// Start handles POST /api/v1/broadcasts/{id}/start
//
// The run outlives the request; Pause or Cancel stop it.
func (h *BroadcastHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, h.service.Start)
}

// Pause handles POST /api/v1/broadcasts/{id}/pause
func (h *BroadcastHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, h.service.Pause)
}

// Resume handles POST /api/v1/broadcasts/{id}/resume
func (h *BroadcastHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, h.service.Resume)
}

// Cancel handles POST /api/v1/broadcasts/{id}/cancel
func (h *BroadcastHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, h.service.Cancel)
}

type suggestTimeRequest struct {
	Apply bool `json:"apply"`
}

// SuggestTime handles POST /api/v1/broadcasts/{id}/suggest-time
func (h *BroadcastHandler) SuggestTime(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req suggestTimeRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.service.SuggestTime(r.Context(), id, req.Apply)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type scheduleRequest struct {
	At time.Time `json:"at"`
}

// Schedule handles POST /api/v1/broadcasts/{id}/schedule
func (h *BroadcastHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if !decode(w, r, &req) {
		return
	}
	if req.At.IsZero() {
		writeError(w, http.StatusBadRequest, "at is required")
		return
	}

	job, err := h.service.Schedule(r.Context(), id, req.At)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *BroadcastHandler) do(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (model.BroadcastJob, error)) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	job, err := op(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}
