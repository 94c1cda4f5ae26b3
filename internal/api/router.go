// Package api provides the HTTP API for Wayfinder.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/wayfinder/internal/api/handler"
	"github.com/breatheroute/wayfinder/internal/api/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Tokens validates device tokens. When nil, every route is open; only
	// use that for local development.
	Tokens middleware.TokenValidator

	Sessions      handler.Sessions
	Subscriptions handler.Subscriptions

	Providers      handler.ProviderHealth
	SessionCounter handler.SessionCounter
	Checks         map[string]handler.Check

	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "wayfinder-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Providers: cfg.Providers,
		Sessions:  cfg.SessionCounter,
		Checks:    cfg.Checks,
	})
	navHandler := handler.NewNavigationHandler(cfg.Sessions, cfg.Logger)
	streamHandler := handler.NewStreamHandler(cfg.Sessions, cfg.Subscriptions, cfg.Logger)

	authenticate := func(next http.Handler) http.Handler { return next }
	if cfg.Tokens != nil {
		authenticate = middleware.Auth(cfg.Tokens)
	}

	sessionRateLimit := middleware.RateLimitByDevice(middleware.SessionRateLimit)
	fixRateLimit := middleware.RateLimitByDevice(middleware.FixRateLimit)
	standardRateLimit := middleware.RateLimitByDevice(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authenticate).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/navigation/sessions", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireJSON)

			// Fixes have their own budget; everything else shares the
			// standard one.
			r.With(standardRateLimit).Get("/", navHandler.ListSessions)
			r.With(sessionRateLimit).Post("/", navHandler.CreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", navHandler.GetSession)
				r.With(standardRateLimit).Delete("/", navHandler.DeleteSession)
				r.With(sessionRateLimit).Post("/start", navHandler.StartSession)
				r.With(sessionRateLimit).Post("/stop", navHandler.StopSession)
				r.With(sessionRateLimit).Post("/refresh", navHandler.RefreshSession)
				r.With(fixRateLimit).Post("/fixes", navHandler.PostFix)
				r.With(standardRateLimit).Get("/stream", streamHandler.Stream)
			})
		})
	})

	return r
}
