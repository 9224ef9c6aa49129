// Package app assembles the air quality stack shared by the api, worker and
// CLI binaries: offline store, resilient GIOS client, service and feature
// flags.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/airquality/gios"
	"github.com/airstat/airstat/internal/airquality/offline"
	"github.com/airstat/airstat/internal/config"
	"github.com/airstat/airstat/internal/database"
	"github.com/airstat/airstat/internal/featureflags"
	"github.com/airstat/airstat/internal/provider/resilience"
	"github.com/airstat/airstat/internal/telemetry"
)

// Options tunes Build.
type Options struct {
	Logger zerolog.Logger

	// Metrics receives provider metrics. Optional.
	Metrics airquality.Metrics

	// Registry tracks GIOS health. Default: resilience.GlobalRegistry.
	Registry *resilience.Registry

	// Traced wraps outgoing GIOS requests in client spans.
	Traced bool
}

// Stack is the assembled air quality stack.
type Stack struct {
	Service  *airquality.Service
	Store    offline.Store
	Client   *gios.Client
	Registry *resilience.Registry
	Flags    *featureflags.Service

	// Pool backs both Store and Flags when CACHE_BACKEND is postgres. Nil
	// for other backends.
	Pool *pgxpool.Pool
}

// Build opens the configured offline store and wires the GIOS client and
// service around it. The postgres backend opens a single pool for the store
// and the feature flags. Close releases both.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Stack, error) {
	var pool *pgxpool.Pool
	if cfg.CacheBackend == offline.BackendPostgres {
		var err error
		if pool, err = database.Connect(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("open offline store: %w", err)
		}
		opts.Logger.Debug().Str("postgres", cfg.Postgres.Redacted()).Msg("postgres pool opened")
	}

	offlineCfg := cfg.OfflineConfig()
	offlineCfg.Pool = pool
	store, err := offline.Open(ctx, offlineCfg)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("open offline store: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = resilience.GlobalRegistry
	}

	httpCfg := resilience.DefaultClientConfig(gios.ProviderName)
	httpCfg.Timeout = cfg.GIOSTimeout
	httpCfg.Logger = opts.Logger
	if opts.Traced {
		httpCfg.Transport = telemetry.HTTPTransport(nil)
	}
	httpClient := resilience.NewClient(httpCfg)
	registry.Register(gios.ProviderName, httpClient)

	client := gios.NewClient(gios.ClientConfig{
		BaseURL:    cfg.GIOSBaseURL,
		HTTPClient: httpClient,
		Registry:   registry,
	})

	service := airquality.NewService(airquality.ServiceConfig{
		Provider: client,
		Codec:    gios.NewCodec(cfg.Location()),
		Store:    store,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})

	flagRepo, err := flagRepository(ctx, pool)
	if err != nil {
		store.Close()
		closePool(pool)
		return nil, err
	}
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     opts.Logger,
	})

	opts.Logger.Info().
		Str("cache_backend", cfg.CacheBackend).
		Str("gios_base_url", cfg.GIOSBaseURL).
		Str("timezone", cfg.Timezone).
		Msg("air quality stack ready")

	return &Stack{
		Service:  service,
		Store:    store,
		Client:   client,
		Registry: registry,
		Flags:    flags,
		Pool:     pool,
	}, nil
}

// flagRepository keeps flags next to the postgres offline store so that
// replicas share them; other backends keep flags in memory.
func flagRepository(ctx context.Context, pool *pgxpool.Pool) (featureflags.Repository, error) {
	if pool == nil {
		return featureflags.NewInMemoryRepository(), nil
	}
	repo, err := featureflags.NewPostgresRepository(ctx, pool)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// Close releases the offline store, then the postgres pool it shares with
// the feature flag repository.
func (s *Stack) Close() error {
	err := s.Store.Close()
	closePool(s.Pool)
	return err
}
