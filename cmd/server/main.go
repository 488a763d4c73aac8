package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yourusername/accessflow/api"
	"github.com/yourusername/accessflow/pkg/accessflow"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	af, err := accessflow.New(
		accessflow.WithConfig(cfg.App),
		accessflow.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := af.Close(); err != nil {
			logger.Warn("failed to close", slog.Any("error", err))
		}
	}()

	if blockLog, err := af.BlockLog(); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := blockLog.Ping(ctx)
		cancel()
		if err != nil {
			return err
		}
		logger.Info("publishing block events to redis", slog.String("addr", cfg.App.Redis.Addr))
	}

	// POST /evaluate takes any identity from the body, so it gets its own
	// table; it must never block callers of the protected routes.
	evalConfig := *cfg.App
	evalConfig.Token, evalConfig.Hash, evalConfig.Encrypt, evalConfig.Redis = nil, nil, nil, nil
	evaluations, err := accessflow.New(
		accessflow.WithConfig(&evalConfig),
		accessflow.WithLogger(logger.With(slog.String("component", "evaluate"))),
	)
	if err != nil {
		return err
	}

	stopSweep := af.StartBackgroundSweep()
	defer stopSweep()
	stopEvalSweep := evaluations.StartBackgroundSweep()
	defer stopEvalSweep()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(af, evaluations),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	rl := cfg.App.RateLimiter
	logger.Info("accessflow listening",
		slog.String("addr", srv.Addr),
		slog.Int("max_requests", rl.MaxRequests),
		slog.Duration("interval", rl.Interval),
		slog.Int("exempt", len(rl.Exempt)),
		slog.String("decay", string(rl.EffectiveDecay())),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// newRouter mounts the evaluation API, metrics and a sample protected route.
// The evaluation API answers from evaluations; af guards the protected routes
// and backs /metrics.
func newRouter(af, evaluations *accessflow.AccessFlow) http.Handler {
	handler := api.NewHandler(evaluations.Limiter())
	metricsHandler := api.NewMetricsHandler(af.Metrics(), af.Limiter())

	r := chi.NewRouter()
	r.Post("/evaluate", handler.Evaluate)
	r.Get("/metrics", metricsHandler.ServeHTTP)
	r.Get("/dashboard", dashboardHandler)
	r.Get("/health", healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(af.Middleware)
		r.Get("/hello", helloHandler)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "accessflow",
	})
}

func helloHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "hello"})
}
