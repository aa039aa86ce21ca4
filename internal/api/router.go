// Package api provides the HTTP API of nearair.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nearair/nearair/internal/api/handler"
	"github.com/nearair/nearair/internal/api/middleware"
	"github.com/nearair/nearair/internal/auth"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	Controller handler.Controller
	Latest     handler.LatestAnnouncement
	Registry   handler.ProviderRegistry
	Cache      handler.CacheInspector

	// Tokens guards POST /v1/reset. Nil leaves reset open.
	Tokens *auth.Tokens

	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nearair"
	}

	// Global middleware - order matters
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger, "/metrics", "/v1/ops/health"))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	cycleHandler := handler.NewCycleHandler(cfg.Controller, cfg.Latest, cfg.Logger)
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Controller: cfg.Controller,
		Registry:   cfg.Registry,
		Cache:      cfg.Cache,
	})

	readRateLimit := middleware.RateLimitByIP(middleware.ReadRateLimit)       // 120 req/min
	commandRateLimit := middleware.RateLimitByIP(middleware.CommandRateLimit)    // 6 req/min
	resetAuth := middleware.RequireToken(cfg.Tokens, auth.ScopeReset)

	r.Route("/v1", func(r chi.Router) {
		r.With(readRateLimit).Get("/announcement", cycleHandler.GetAnnouncement)
		r.With(readRateLimit).Get("/state", cycleHandler.GetState)
		r.With(commandRateLimit, resetAuth).Post("/reset", cycleHandler.Reset)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})
	})

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
