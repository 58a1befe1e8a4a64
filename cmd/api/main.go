// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/agent"
	"github.com/taskpilot-ai/taskpilot/internal/config"
	"github.com/taskpilot-ai/taskpilot/internal/guard"
	"github.com/taskpilot-ai/taskpilot/internal/handler"
	"github.com/taskpilot-ai/taskpilot/internal/llm"
	"github.com/taskpilot-ai/taskpilot/internal/middleware"
	natsclient "github.com/taskpilot-ai/taskpilot/internal/nats"
	"github.com/taskpilot-ai/taskpilot/internal/orchestrator"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "taskpilot-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	repo, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("failed to open database", zap.Error(err))
		os.Exit(1)
	}
	defer repo.Close()

	events, err := natsclient.Connect(cfg.NATSURL, cfg.NATSToken, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer events.Close()

	runtime, err := buildRuntime(cfg, log)
	if err != nil {
		log.Error("failed to configure agent runtime", zap.Error(err))
		os.Exit(1)
	}

	conversationSvc := service.NewConversationService(repo, log)
	taskSvc := service.NewTaskService(repo, log)
	confirmGuard := guard.New(cfg.ConfirmTokenTTL)

	orch := orchestrator.New(runtime, confirmGuard, taskSvc, events, cfg.MCPServerURL, cfg.MaxTokens, log)

	healthHandler := handler.NewHealthHandler(repo)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	taskHandler := handler.NewTaskHandler(taskSvc, log)
	chatHandler := handler.NewChatHandler(conversationSvc, orch, cfg.MaxContextMessages, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", chatHandler.Chat)
			r.Post("/stream", chatHandler.Stream)
			r.Get("/history", chatHandler.History)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.Create)
			r.Get("/", taskHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.Get)
				r.Put("/", taskHandler.Update)
				r.Patch("/toggle", taskHandler.Toggle)
				r.Delete("/", taskHandler.Delete)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// buildRuntime selects the agent runtime from the configured provider
// keys. An OpenAI-compatible key gets the full tool-calling runtime;
// an Anthropic-only configuration falls back to plain completions
// without task tools.
func buildRuntime(cfg *config.Config, log *logger.Logger) (agent.Runtime, error) {
	if cfg.OpenAIAPIKey != "" {
		log.Info("using tool-calling agent runtime",
			zap.String("model", cfg.Model),
			zap.String("mcp_url", cfg.MCPServerURL))
		return agent.NewToolRuntime(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, log), nil
	}

	if cfg.AnthropicAPIKey != "" {
		log.Warn("no OpenAI-compatible key configured, task tools disabled")
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return agent.NewCompletionRuntime(client), nil
	}

	return nil, fmt.Errorf("no LLM provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
}
