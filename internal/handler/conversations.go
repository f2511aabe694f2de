// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// ConversationHandler handles conversation, filter, settings and customer
// endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  logger.OrGlobal(log),
	}
}

// List handles GET /api/v1/conversations
//
// Filter dimensions are comma-separated query parameters. Without any of
// them the session's active filter applies. q is a free-text search.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.List(r.Context(), criteria, r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Update handles PUT /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req model.UpdateConversationRequest
	if !decode(w, r, &req) {
		return
	}

	conv, err := h.service.Update(r.Context(), id, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Select handles POST /api/v1/conversations/{id}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Select(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Read handles POST /api/v1/conversations/{id}/read
func (h *ConversationHandler) Read(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetFilter handles GET /api/v1/filter
func (h *ConversationHandler) GetFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Filter())
}

// SetFilter handles PUT /api/v1/filter
func (h *ConversationHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req model.FilterCriteria
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.service.SetFilter(req))
}

// GetSettings handles GET /api/v1/settings
func (h *ConversationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Settings())
}

// UpdateSettings handles PUT /api/v1/settings
func (h *ConversationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	for _, tag := range []*string{req.ReceiveLanguage, req.SendLanguage} {
		if tag == nil {
			continue
		}
		if err := middleware.ValidateLanguage(*tag); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	settings, err := h.service.UpdateSettings(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// Customers handles GET /api/v1/customers?q=a,b
func (h *ConversationHandler) Customers(w http.ResponseWriter, r *http.Request) {
	customers := h.service.Customers(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
		"total":     len(customers),
	})
}

// Accounts handles GET /api/v1/accounts
func (h *ConversationHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": h.service.Accounts(r.Context()),
	})
}

func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// criteriaParams are the query parameters that carry filter dimensions.
var criteriaParams = []string{
	"platforms", "countries", "chat_types", "unread_only", "unreplied_only",
	"assigned_to", "tags", "levels", "types", "categories", "budgets",
	"intent_quantities", "purposes", "urgencies",
}

// parseCriteria returns nil when no filter parameter is present.
func parseCriteria(q url.Values) (*model.FilterCriteria, error) {
	present := false
	for _, p := range criteriaParams {
		if q.Has(p) {
			present = true
			break
		}
	}
	if !present {
		return nil, nil
	}

	unread, err := parseBool(q, "unread_only")
	if err != nil {
		return nil, err
	}
	unreplied, err := parseBool(q, "unreplied_only")
	if err != nil {
		return nil, err
	}

	c := &model.FilterCriteria{
		Countries:        list(q, "countries"),
		UnreadOnly:       unread,
		UnrepliedOnly:    unreplied,
		AssignedTo:       list(q, "assigned_to"),
		Tags:             list(q, "tags"),
		Levels:           list(q, "levels"),
		Types:            list(q, "types"),
		Categories:       list(q, "categories"),
		Budgets:          list(q, "budgets"),
		IntentQuantities: list(q, "intent_quantities"),
		Purposes:         list(q, "purposes"),
		Urgencies:        list(q, "urgencies"),
	}
	for _, p := range list(q, "platforms") {
		c.Platforms = append(c.Platforms, model.Platform(p))
	}
	for _, ct := range list(q, "chat_types") {
		c.ChatTypes = append(c.ChatTypes, model.ChatType(ct))
	}
	return c, nil
}

func list(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseBool(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return q.Has(key), nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &paramError{key: key}
	}
	return b, nil
}

type paramError struct{ key string }

func (e *paramError) Error() string { return "invalid value for " + e.key }
