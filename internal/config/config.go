// Package config loads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality/gios"
	"github.com/airstat/airstat/internal/airquality/offline"
	"github.com/airstat/airstat/internal/auth"
	"github.com/airstat/airstat/internal/database"
	"github.com/airstat/airstat/internal/telemetry"
	"github.com/airstat/airstat/internal/worker"
)

var validate = validator.New()

// Config is the configuration shared by the api, worker and CLI binaries.
type Config struct {
	Env      string `validate:"required"`
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=trace debug info warn error"`

	GIOSBaseURL string        `validate:"required,url"`
	GIOSTimeout time.Duration `validate:"gt=0"`
	Timezone    string        `validate:"required"`

	CacheBackend string `validate:"oneof=file sqlite postgres memory"`
	OfflineDir   string `validate:"required_if=CacheBackend file"`
	SQLitePath   string `validate:"required_if=CacheBackend sqlite"`
	Postgres     database.Config

	RefreshInterval    time.Duration `validate:"gt=0"`
	RefreshCities      []string      `validate:"min=1,dive,required"`
	RefreshConcurrency int           `validate:"gte=1,lte=32"`

	RateLimitPerMinute int `validate:"gte=1"`
	RequireTLS         bool
	JWTSigningKey      string
	JWTIssuer          string `validate:"required"`
	JWTAudience        string `validate:"required"`

	OTelEnabled     bool
	OTLPEndpoint    string  `validate:"required_if=OTelEnabled true"`
	OTelSampleRatio float64 `validate:"gte=0,lte=1"`

	PubSubProjectID    string
	PubSubSubscription string `validate:"required_with=PubSubProjectID"`

	WorkerHealthPort string `validate:"required,numeric"`
}

// Load reads configuration from the environment with defaults. A .env file in
// the working directory, when present, seeds variables not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:                getenvDefault("APP_ENV", "development"),
		Port:               getenvDefault("APP_PORT", "8080"),
		LogLevel:           strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		GIOSBaseURL:        getenvDefault("GIOS_BASE_URL", gios.DefaultBaseURL),
		Timezone:           getenvDefault("GIOS_TIMEZONE", gios.DefaultTimezone),
		CacheBackend:       strings.ToLower(getenvDefault("CACHE_BACKEND", offline.BackendFile)),
		OfflineDir:         getenvDefault("OFFLINE_DIR", offline.DefaultDir),
		SQLitePath:         getenvDefault("SQLITE_PATH", "airstat.db"),
		RefreshCities:      worker.ParseCities(os.Getenv("REFRESH_CITIES")),
		RequireTLS:         os.Getenv("REQUIRE_TLS") == "true",
		JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:          getenvDefault("JWT_ISSUER", "airstat"),
		JWTAudience:        getenvDefault("JWT_AUDIENCE", "airstat-api"),
		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:       getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		WorkerHealthPort:   getenvDefault("WORKER_HEALTH_PORT", "8081"),
	}
	if len(cfg.RefreshCities) == 0 {
		cfg.RefreshCities = worker.DefaultCities()
	}
	var err error
	if cfg.CacheBackend == offline.BackendPostgres {
		if cfg.Postgres, err = database.ConfigFromEnv(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if cfg.GIOSTimeout, err = getenvDuration("GIOS_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.RefreshConcurrency, err = getenvInt("REFRESH_CONCURRENCY", 3); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getenvInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.OTelSampleRatio, err = getenvFloat("OTEL_SAMPLE_RATIO", 1); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the timezone resolves.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: GIOS_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the GIOS timezone. Validate guarantees it resolves.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OfflineConfig returns the offline store configuration.
func (c *Config) OfflineConfig() offline.Config {
	return offline.Config{
		Backend:    c.CacheBackend,
		Dir:        c.OfflineDir,
		SQLitePath: c.SQLitePath,
		Postgres:   c.Postgres,
	}
}

// RefreshConfig returns the cache refresh job configuration.
func (c *Config) RefreshConfig() worker.RefreshConfig {
	cfg := worker.DefaultRefreshConfig()
	cfg.Cities = c.RefreshCities
	cfg.Concurrency = c.RefreshConcurrency
	return cfg
}

// JWTConfig returns the admin token configuration.
func (c *Config) JWTConfig() auth.JWTConfig {
	return auth.JWTConfig{
		SigningKey: c.JWTSigningKey,
		Issuer:     c.JWTIssuer,
		Audience:   c.JWTAudience,
	}
}

// TelemetryConfig returns the OpenTelemetry configuration for a service.
func (c *Config) TelemetryConfig(serviceName, version string, logger zerolog.Logger) telemetry.Config {
	return telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Env,
		OTLPEndpoint:   c.OTLPEndpoint,
		Enabled:        c.OTelEnabled,
		SampleRatio:    c.OTelSampleRatio,
		Logger:         logger,
	}
}

// Logger returns a JSON logger at LOG_LEVEL tagged with the service and
// version.
func (c *Config) Logger(w io.Writer, serviceName, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", version).
		Logger()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
