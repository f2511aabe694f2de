// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ProviderCallDuration tracks AI and translation provider latency.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engine_provider_call_duration_seconds",
			Help:    "AI/translation provider call duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind", "status"},
	)

	// TaskDedupTotal counts requests that joined an in-flight task.
	TaskDedupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_task_dedup_total",
			Help: "Requests served by an already in-flight task",
		},
		[]string{"kind"},
	)

	// StaleResultsTotal counts task results dropped by the relevance check.
	StaleResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_stale_results_total",
			Help: "Task results discarded because their context changed",
		},
		[]string{"kind"},
	)

	// TasksInFlight tracks outstanding tasks per kind.
	TasksInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_tasks_in_flight",
			Help: "Number of in-flight tasks",
		},
		[]string{"kind"},
	)

	// TranslationCacheTotal counts translation cache lookups by result.
	TranslationCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_translation_cache_total",
			Help: "Translation cache lookups",
		},
		[]string{"result"},
	)

	// AutoReplyTotal counts auto-reply timer outcomes.
	AutoReplyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_auto_reply_total",
			Help: "Auto-reply timer outcomes",
		},
		[]string{"outcome"},
	)

	// BroadcastSendsTotal counts broadcast sends.
	BroadcastSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_broadcast_sends_total",
			Help: "Broadcast messages sent",
		},
		[]string{"status"},
	)

	// EventsPublishedTotal counts store events forwarded to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_events_published_total",
			Help: "Store events forwarded to NATS",
		},
		[]string{"status"},
	)

	// SSEConnectionsActive tracks open event streams.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of open SSE event streams",
		},
	)

	// MessagesTotal tracks total messages appended to the store.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"platform", "sender"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordProviderCall records metrics for one provider call.
func RecordProviderCall(kind, status string, duration float64) {
	ProviderCallDuration.WithLabelValues(kind, status).Observe(duration)
}

// IncrementSSEConnections increments the open stream gauge.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the open stream gauge.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
