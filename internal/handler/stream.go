package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

const (
	defaultHeartbeat    = 30 * time.Second
	streamBufferSize    = 256
	eventLaggedSentinel = "lagged"
)

// EventSource is the store's change feed.
type EventSource interface {
	Subscribe(fn func(model.Event)) func()
}

// StreamHandler serves store change events over SSE.
type StreamHandler struct {
	source    EventSource
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(source EventSource, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		source:    source,
		logger:    logger.OrGlobal(log).Named("stream"),
		heartbeat: defaultHeartbeat,
	}
}

type heartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/events
//
// ?conversation_id=X limits the stream to one conversation. A client that
// falls behind gets a lagged event and should refetch its views.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID != "" {
		if err := middleware.ValidateID(conversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetAgentID(ctx))

	events := make(chan model.Event, streamBufferSize)
	lagged := make(chan struct{}, 1)
	unsubscribe := h.source.Subscribe(func(ev model.Event) {
		if conversationID != "" && ev.ConversationID != conversationID {
			return
		}
		select {
		case events <- ev:
		default:
			select {
			case lagged <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		case ev := <-events:
			if err := sendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				log.Warn("failed to write event", zap.Error(err))
				return
			}
		case <-lagged:
			sendSSEEvent(w, flusher, eventLaggedSentinel, map[string]string{
				"conversation_id": conversationID,
			})
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &heartbeatEvent{Timestamp: time.Now().UTC()})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
