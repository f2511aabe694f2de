package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/conversation-engine/internal/middleware"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// BroadcastScope is the token scope required for broadcast endpoints.
const BroadcastScope = "broadcast"

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSOrigins       []string
}

// Handlers groups every endpoint handler the router mounts.
type Handlers struct {
	Health        *HealthHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Assistant     *AssistantHandler
	Broadcasts    *BroadcastHandler
	Stream        *StreamHandler
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig, h Handlers, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/events", h.Stream.Stream)

		r.Get("/filter", h.Conversations.GetFilter)
		r.Put("/filter", h.Conversations.SetFilter)
		r.Get("/settings", h.Conversations.GetSettings)
		r.Put("/settings", h.Conversations.UpdateSettings)
		r.Get("/customers", h.Conversations.Customers)
		r.Get("/accounts", h.Conversations.Accounts)

		r.Post("/inbound", h.Messages.Receive)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.Conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Conversations.Get)
				r.Put("/", h.Conversations.Update)
				r.Post("/select", h.Conversations.Select)
				r.Post("/read", h.Conversations.Read)

				r.Post("/messages", h.Messages.Send)
				r.Post("/translate", h.Assistant.TranslateConversation)

				r.Route("/ai", func(r chi.Router) {
					r.Post("/reply", h.Assistant.Reply)
					r.Post("/summary", h.Assistant.Summary)
					r.Post("/optimize", h.Assistant.Optimize)
					r.Get("/status", h.Assistant.Busy)
				})
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Post("/status", h.Messages.SetStatus)
			r.Post("/translate", h.Assistant.TranslateMessage)
		})

		r.Route("/broadcasts", func(r chi.Router) {
			r.Use(middleware.RequireScope(BroadcastScope))

			r.Post("/", h.Broadcasts.Create)
			r.Get("/", h.Broadcasts.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Broadcasts.Get)
				r.Post("/schedule", h.Broadcasts.Schedule)
				r.Post("/suggest-time", h.Broadcasts.SuggestTime)
				r.Post("/start", h.Broadcasts.Start)
				r.Post("/pause", h.Broadcasts.Pause)
				r.Post("/resume", h.Broadcasts.Resume)
				r.Post("/cancel", h.Broadcasts.Cancel)
			})
		})
	})

	return r
}
