// LOS - Life Operating System coach server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lifeos/los-coach/internal/api"
	"github.com/lifeos/los-coach/internal/coach"
	"github.com/lifeos/los-coach/internal/config"
	"github.com/lifeos/los-coach/internal/fixtures"
	"github.com/lifeos/los-coach/internal/identity"
	"github.com/lifeos/los-coach/internal/middleware"
	"github.com/lifeos/los-coach/internal/store"
	"github.com/lifeos/los-coach/web"
)

func main() {
	os.Exit(run())
}

// run wires and serves the application and returns the process exit code.
func run() int {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "storage", cfg.Storage.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		return 1
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Store health check failed", "error", err)
		return 1
	}
	slog.Info("Store connected", "backend", cfg.Storage.Backend)

	seed, err := fixtures.Load()
	if err != nil {
		slog.Error("Failed to load seed data", "error", err)
		return 1
	}

	generator, coachMode, err := newGenerator(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize coach generator", "error", err)
		return 1
	}
	slog.Info("Coach ready", "mode", coachMode, "max_retries", cfg.Coach.MaxRetries)

	conversationLogger, err := coach.NewConversationLogger(coach.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		return 1
	}

	coachService := coach.NewService(
		coach.NewRetryGenerator(generator, cfg.Coach.MaxRetries, cfg.Coach.RetryBaseDelay, logger),
		coach.NewComposer(cfg.Coach.MaxContextSkills, cfg.Coach.MaxContextGoals),
		coach.WithLogger(logger),
		coach.WithConversationLogger(conversationLogger),
	)

	// Initialize handlers.
	profileHandler := api.NewHandler(repo, seed)
	healthHandler := api.NewHealthHandler(repo, coachMode)
	coachHandler := coach.NewHandler(coachService, repo, conversationLogger, cfg)
	defer coachHandler.Close()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Everything else runs under the anonymous device identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, seed, cfg.IsDevelopment()))
		profileHandler.RegisterRoutes(r)
		coachHandler.RegisterRoutes(r)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout leaves room for one full provider call plus retries.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Coach.MaxRetries+1)*cfg.Coach.RequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var (
		grpcHealth *api.GRPCHealth
		grpcLis    net.Listener
	)
	if cfg.GRPCHealthPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "error", err)
			return 1
		}
		grpcHealth = api.NewGRPCHealth(repo, 10*time.Second)
	}

	retentionDone := store.StartRetentionWorker(ctx, repo, cfg.History.Retention, cfg.History.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcHealth != nil {
		g.Go(func() error {
			slog.Info("gRPC health listening", "addr", grpcLis.Addr().String())
			return grpcHealth.Serve(gctx, grpcLis)
		})
	}

	// Wait for a shutdown signal or a server failure.
	g.Go(func() error {
		<-gctx.Done()
		stop()

		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if grpcHealth != nil {
			grpcHealth.Stop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	code := 0
	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		code = 1
	}
	<-retentionDone

	if code == 0 {
		slog.Info("Server stopped successfully")
	}
	return code
}

// newGenerator builds the provider client once; it is shared read-only by
// every request.
func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (coach.Generator, string, error) {
	if cfg.Coach.UseMock {
		slog.Warn("COACH_USE_MOCK is enabled; replies are canned")
		return coach.NewMockGenerator(), "mock", nil
	}
	client, err := coach.NewGeminiClient(ctx, coach.GeminiConfig{
		APIKey:  cfg.Coach.APIKey,
		Model:   cfg.Coach.Model,
		Timeout: cfg.Coach.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, "", err
	}
	return client, "gemini:" + client.Model(), nil
}
