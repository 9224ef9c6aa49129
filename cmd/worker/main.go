// Package main provides the entrypoint for the airstat cache refresh worker.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/airstat/airstat/internal/api/middleware"
	"github.com/airstat/airstat/internal/api/response"
	"github.com/airstat/airstat/internal/app"
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
	const serviceName = "airstat-worker"

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "airstat-worker: %v\n", err)
		os.Exit(1)
	}

	log := cfg.Logger(os.Stdout, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Strs("cities", cfg.RefreshCities).
		Dur("interval", cfg.RefreshInterval).
		Msg("starting airstat worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version, log))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

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

	scheduler := worker.NewScheduler(refreshJob, cfg.RefreshInterval, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer scheduler.Stop()

	if cfg.PubSubProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSubProjectID,
			SubscriptionName: cfg.PubSubSubscription,
			RefreshJob:       refreshJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set - on-demand refresh jobs disabled")
	}

	// Cloud Run expects the worker to answer on a port.
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		providers := make([]map[string]interface{}, 0)
		for _, p := range stack.Registry.GetAllHealth() {
			providers = append(providers, map[string]interface{}{
				"name":          p.Name,
				"circuit":       p.CircuitState.String(),
				"lastSuccessAt": p.LastSuccessAt,
				"lastError":     p.LastError,
			})
		}
		response.JSON(w, r, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"version":   Version,
			"nextRunAt": scheduler.NextRun(),
			"cities":    refreshJob.Cities(),
			"providers": providers,
			"metrics":   refreshJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.WorkerHealthPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
