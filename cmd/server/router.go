package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	compliancehandler "truconn/internal/compliance/handler"
	"truconn/internal/platform/httpserver"
	"truconn/internal/platform/metrics"
	ratelimit "truconn/internal/ratelimit/middleware"
	"truconn/pkg/platform/middleware/admin"
	authmw "truconn/pkg/platform/middleware/auth"
	"truconn/pkg/platform/middleware/metadata"
	"truconn/pkg/platform/middleware/request"
	"truconn/pkg/platform/middleware/requesttime"
)

type routerDeps struct {
	service       compliancehandler.Service
	validator     authmw.JWTValidator
	operatorToken string
	registry      *prometheus.Registry
	httpMetrics   *metrics.Metrics
	rateLimiter   *ratelimit.Limiter
	readiness     []httpserver.Dependency
	logger        *slog.Logger
}

// newRouter mounts the probes and metrics unauthenticated and the compliance
// API behind bearer auth.
func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(
		request.RequestID,
		request.Recovery(d.logger),
		request.Logger(d.logger),
		d.httpMetrics.Middleware,
		metadata.ClientMetadata,
		requesttime.Middleware,
	)
	r.Get("/healthz", httpserver.Liveness)
	r.Get("/readyz", httpserver.Readiness(d.readiness...))
	r.Handle("/metrics", metrics.Handler(d.registry))
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.validator, d.logger))
		r.Use(admin.OperatorToken(d.operatorToken, d.logger))
		if d.rateLimiter != nil {
			r.Use(d.rateLimiter.Middleware)
		}
		compliancehandler.New(d.service, d.logger).Register(r)
	})
	return r
}
