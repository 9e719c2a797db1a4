// Package server wires the chi router and runs the HTTP front end.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oskarlund/tilerender/internal/coalesce"
	"github.com/oskarlund/tilerender/internal/config"
	"github.com/oskarlund/tilerender/internal/health"
	"github.com/oskarlund/tilerender/internal/middleware"
)

// Run sets up http and starts serving until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, sched *coalesce.Scheduler) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(sched))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/render", HandleRender(logger, sched))
	r.Post("/invalidate", HandleInvalidate(logger, sched))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
