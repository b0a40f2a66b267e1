// Package httpserver builds the HTTP server and its health endpoints.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"truconn/internal/platform/config"
	"truconn/pkg/platform/httputil"
)

// New builds an HTTP server with the configured timeouts.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Serve runs srv until ctx is cancelled, then drains in-flight requests for up
// to shutdownTimeout.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// Dependency is a named readiness check. Optional dependencies degrade the
// service instead of failing readiness.
type Dependency struct {
	Name     string
	Check    Check
	Optional bool
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// Liveness always answers 200 while the process serves requests.
func Liveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": statusHealthy})
}

// Readiness probes every dependency and answers 503 when a required one fails.
func Readiness(deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := statusHealthy
		results := make(map[string]string, len(deps))
		for _, dep := range deps {
			if err := dep.Check(ctx); err != nil {
				results[dep.Name] = err.Error()
				if !dep.Optional {
					status = statusUnhealthy
				} else if status == statusHealthy {
					status = statusDegraded
				}
				continue
			}
			results[dep.Name] = statusHealthy
		}

		code := http.StatusOK
		if status == statusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{
			"status":       status,
			"dependencies": results,
		})
	}
}
