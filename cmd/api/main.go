// Package main provides the entrypoint for the airstat API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airstat/airstat/internal/api"
	"github.com/airstat/airstat/internal/api/middleware"
	"github.com/airstat/airstat/internal/app"
	"github.com/airstat/airstat/internal/auth"
	"github.com/airstat/airstat/internal/config"
	"github.com/airstat/airstat/internal/telemetry"
	"github.com/airstat/airstat/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airstat-api"

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "airstat-api: %v\n", err)
		os.Exit(1)
	}

	log := cfg.Logger(os.Stdout, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting airstat API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version, log))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	stack, err := app.Build(ctx, cfg, app.Options{
		Logger:  log,
		Metrics: providerMetrics,
		Traced:  tp.Enabled(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build air quality stack")
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close offline store")
		}
	}()

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:  cfg.RefreshConfig(),
		Logger:  log,
		Service: stack.Service,
	})

	jwtService := auth.NewJWTService(cfg.JWTConfig())
	if !jwtService.Enabled() {
		log.Warn().Msg("JWT_SIGNING_KEY not set - admin and status endpoints are disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		JWT:                jwtService,
		Service:            stack.Service,
		Store:              stack.Store,
		Registry:           stack.Registry,
		Refresher:          refreshJob,
		Flags:              stack.Flags,
		RequireTLS:         cfg.RequireTLS,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Admin cache refreshes walk every station of the requested cities.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
