package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/recall/internal/auth"
	"github.com/ent0n29/recall/internal/chat"
	"github.com/ent0n29/recall/internal/config"
	"github.com/ent0n29/recall/internal/gemini"
	"github.com/ent0n29/recall/internal/history"
	"github.com/ent0n29/recall/internal/httpapi"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authProvider, err := buildAuthProvider(cfg)
	if err != nil {
		logger.Fatal("auth provider", zap.Error(err))
	}
	mem, err := buildMemoryGateway(cfg)
	if err != nil {
		logger.Fatal("memory gateway", zap.Error(err))
	}
	gen, err := buildGenerator(ctx, cfg)
	if err != nil {
		logger.Fatal("generation gateway", zap.Error(err))
	}

	archive, err := history.NewArchive(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("history archive", zap.Error(err))
	}
	defer func() { _ = archive.Close() }()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.StartJanitor(ctx, time.Minute)

	orch := chat.NewOrchestrator(sessions, mem, gen, archive, metrics, logger, cfg.MemorySearchLimit)
	sessions.OnExpire(func(s session.Session) {
		orch.DropSession(s.ID)
		metrics.ActiveSessions.Dec()
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		logger.Info("session expired", zap.String("session_id", s.ID), zap.String("subject", s.Subject))
	})

	api := httpapi.NewServer(authProvider, mem, orch, sessions, archive, metrics, logger, httpapi.Options{
		AllowAnyOrigin: cfg.AllowAnyOrigin,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
	})

	srv := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.BindAddr),
			zap.String("auth_provider", cfg.AuthProvider),
			zap.String("memory_provider", cfg.MemoryProvider),
			zap.String("llm_provider", cfg.LLMProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func buildAuthProvider(cfg config.Config) (auth.Provider, error) {
	if cfg.AuthProvider == "mock" {
		return auth.NewMockProvider(), nil
	}
	return auth.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
}

func buildMemoryGateway(cfg config.Config) (memory.Gateway, error) {
	if cfg.MemoryProvider == "mock" {
		return memory.NewMockGateway(), nil
	}
	return memory.NewClient(cfg.Mem0BaseURL, cfg.Mem0APIKey)
}

func buildGenerator(ctx context.Context, cfg config.Config) (gemini.Generator, error) {
	if cfg.LLMProvider == "mock" {
		return gemini.NewMockGenerator("This is a canned reply from the mock generator."), nil
	}
	return gemini.NewGateway(ctx, cfg.GoogleAPIKey, cfg.LLMModel, cfg.LLMTemperature)
}
