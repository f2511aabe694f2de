// Package main is the entry point for the engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/autoreply"
	"github.com/capitalize-ai/conversation-engine/internal/broadcast"
	"github.com/capitalize-ai/conversation-engine/internal/config"
	"github.com/capitalize-ai/conversation-engine/internal/handler"
	"github.com/capitalize-ai/conversation-engine/internal/llm"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	natsclient "github.com/capitalize-ai/conversation-engine/internal/nats"
	"github.com/capitalize-ai/conversation-engine/internal/seed"
	"github.com/capitalize-ai/conversation-engine/internal/service"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/internal/task"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting engine server")
	ctx := context.Background()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	settings := model.Settings{
		ReceiveLanguage:   cfg.ReceiveLanguage,
		SendLanguage:      cfg.SendLanguage,
		TranslationEngine: cfg.TranslationEngine,
	}
	st := store.New(store.WithSettings(settings), store.WithLogger(log))

	if cfg.SeedFile != "" {
		snap, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		snap.WithSettingsDefaults(settings)
		if err := snap.Into(st); err != nil {
			return err
		}
		log.Info("session seeded",
			zap.String("file", cfg.SeedFile),
			zap.Int("conversations", len(snap.Conversations)),
			zap.Int("accounts", len(snap.Accounts)),
		)
	}

	// NATS is optional; without it sends are recorded locally only.
	var (
		natsClient   *natsclient.Client
		publisher    service.OutboundPublisher
		sendPub      broadcast.Publisher
		connectivity handler.Connectivity
	)
	if cfg.NATSEnabled {
		var err error
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return err
		}
		publisher, sendPub, connectivity = streamManager, streamManager, natsClient

		forwarder := natsclient.NewForwarder(streamManager, 0, log)
		forwarder.Start(st)
		defer forwarder.Stop()
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Warn("LLM features disabled", zap.Error(err))
		llmClient = llm.Disabled()
	}

	coordinator, err := task.New(st,
		llm.NewAssistant(llmClient, log),
		llm.NewTranslator(llmClient),
		task.WithProviderTimeout(cfg.ProviderTimeout),
		task.WithCacheSize(cfg.TranslationCacheSize),
		task.WithLogger(log),
	)
	if err != nil {
		return err
	}

	autoReply := autoreply.New(st, coordinator,
		autoreply.WithDelay(cfg.AutoReplyDelay),
		autoreply.WithLogger(log),
	)
	autoReply.Start()
	defer autoReply.Stop()

	scheduler := broadcast.NewScheduler(broadcast.NewStoreSender(st, sendPub), broadcast.WithLogger(log))
	defer scheduler.Stop()
	advisor, err := broadcast.NewAdvisor(cfg.SendTimeWindows)
	if err != nil {
		return err
	}

	conversationSvc := service.NewConversationService(st, log)
	messageSvc := service.NewMessageService(st, publisher, log)
	assistantSvc := service.NewAssistantService(st, coordinator, log)
	broadcastSvc := service.NewBroadcastService(st, scheduler, advisor, log)

	if natsClient != nil {
		inbound := natsclient.NewInboundConsumer(natsClient, messageSvc, log)
		if err := inbound.Start(ctx); err != nil {
			return err
		}
		defer inbound.Stop()
	}

	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		CORSOrigins:       cfg.CORSOrigins,
	}, handler.Handlers{
		Health:        handler.NewHealthHandler(connectivity),
		Conversations: handler.NewConversationHandler(conversationSvc, log),
		Messages:      handler.NewMessageHandler(messageSvc, log),
		Assistant:     handler.NewAssistantHandler(assistantSvc, log),
		Broadcasts:    handler.NewBroadcastHandler(broadcastSvc, log),
		Stream:        handler.NewStreamHandler(st, log),
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// newLLMClient picks the configured provider, falling back to whichever
// provider has a key.
func newLLMClient(cfg *config.Config) (llm.Client, error) {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}
	provider := llm.Provider(cfg.DefaultLLM)
	if keys[provider] == "" {
		for _, p := range []llm.Provider{llm.ProviderAnthropic, llm.ProviderOpenAI} {
			if keys[p] != "" {
				provider = p
				break
			}
		}
	}
	return llm.NewClient(provider, keys[provider], cfg.LLMModel)
}
