// Package api provides the HTTP API for airstat.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/analysis"
	"github.com/airstat/airstat/internal/api/handler"
	"github.com/airstat/airstat/internal/api/middleware"
	"github.com/airstat/airstat/internal/auth"
	"github.com/airstat/airstat/internal/featureflags"
	"github.com/airstat/airstat/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// JWT validates admin tokens. Nil disables the admin and status endpoints.
	JWT *auth.JWTService

	// Service serves stations, sensors and measurements.
	Service handler.AirQuality

	// Store is the offline store checked by readiness.
	Store handler.Pinger

	// Registry tracks provider health. Default: resilience.GlobalRegistry.
	Registry *resilience.Registry

	// Refresher runs admin cache refreshes. Nil disables the endpoint.
	Refresher handler.Refresher

	// Flags holds the runtime switches. Default: in-memory flags, all off.
	Flags handler.FeatureFlags

	RequireTLS         bool
	RateLimitPerMinute int

	// Clock drives rolling ranges and response timestamps (default: time.Now).
	Clock func() time.Time
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "airstat-api"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	jwtService := cfg.JWT
	if jwtService == nil {
		jwtService = auth.NewJWTService(auth.JWTConfig{})
	}
	flags := cfg.Flags
	if flags == nil {
		flags = featureflags.NewService(featureflags.ServiceConfig{Logger: cfg.Logger})
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
		Store:     cfg.Store,
		Registry:  cfg.Registry,
		Clock:     clock,
	})
	stationHandler := handler.NewStationHandler(cfg.Service, flags, cfg.Logger)
	sensorHandler := handler.NewSensorHandler(cfg.Service, &analysis.Engine{Clock: clock}, flags, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Refresher, flags, cfg.Logger)
	adminRateLimit := middleware.RateLimitBySubject(middleware.AdminRateLimit)

	standardRateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.RateLimitPerMinute))
	chartRateLimit := middleware.RateLimitByIP(middleware.ChartRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public, status requires a token)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(middleware.Auth(jwtService, auth.ScopeStatus)).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/stations", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", stationHandler.ListStations)
			r.Get("/nearby", stationHandler.NearbyStations)
			r.Get("/{stationId}/sensors", stationHandler.ListSensors)
		})

		r.Route("/sensors/{sensorId}", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/measurements", sensorHandler.Measurements)
			r.Get("/report", sensorHandler.Report)
			// PNG rendering is the most expensive call
			r.With(chartRateLimit).Get("/chart.png", sensorHandler.Chart)
		})

		// Admin endpoints: the subject rate limit needs Auth to run first
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.With(middleware.Auth(jwtService, auth.ScopeCacheRefresh), adminRateLimit).
				Post("/cache/refresh", adminHandler.RefreshCache)
			r.With(middleware.Auth(jwtService, auth.ScopeStatus), adminRateLimit).
				Get("/flags", adminHandler.ListFlags)
			r.With(middleware.Auth(jwtService, auth.ScopeFlags), adminRateLimit).
				Patch("/flags", adminHandler.UpdateFlags)
		})
	})

	return r
}
