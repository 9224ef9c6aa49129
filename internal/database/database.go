// Package database opens the PostgreSQL pool and the SQLite file behind the
// offline store and the feature flag repository.
package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName is reported to PostgreSQL in pg_stat_activity.
const ApplicationName = "airstat"

// Config describes the PostgreSQL database used by CACHE_BACKEND=postgres.
// One pool opened from it serves every table of the process.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// MaxConns caps the pool. The offline store and the flag repository
	// share it.
	MaxConns int
	// MinConns connections are kept open while idle.
	MinConns int
	// MaxConnLifetime recycles connections older than this.
	MaxConnLifetime time.Duration
}

// ConfigFromEnv reads the DB_* variables. Malformed numbers and durations
// are errors rather than silently falling back to zero.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:     envOr("DB_HOST", "localhost"),
		User:     envOr("DB_USER", "airstat"),
		Password: envOr("DB_PASSWORD", "localdev"),
		Name:     envOr("DB_NAME", "airstat"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}

	var err error
	if cfg.Port, err = envInt("DB_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.MaxConns, err = envInt("DB_MAX_CONNS", 10); err != nil {
		return Config{}, err
	}
	if cfg.MinConns, err = envInt("DB_MIN_CONNS", 0); err != nil {
		return Config{}, err
	}
	if cfg.MinConns > cfg.MaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS %d exceeds DB_MAX_CONNS %d", cfg.MinConns, cfg.MaxConns)
	}

	lifetime := envOr("DB_CONN_MAX_LIFETIME", "30m")
	if cfg.MaxConnLifetime, err = time.ParseDuration(lifetime); err != nil {
		return Config{}, fmt.Errorf("DB_CONN_MAX_LIFETIME: invalid duration %q", lifetime)
	}
	return cfg, nil
}

// URL returns the connection URL. Credentials are escaped and the pool
// limits travel as pool_* parameters understood by pgxpool.
func (c Config) URL() *url.URL {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	q.Set("application_name", ApplicationName)
	if c.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(c.MaxConns))
	}
	if c.MinConns > 0 {
		q.Set("pool_min_conns", strconv.Itoa(c.MinConns))
	}
	if c.MaxConnLifetime > 0 {
		q.Set("pool_max_conn_lifetime", c.MaxConnLifetime.String())
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u
}

// ConnectionString returns URL as a string.
func (c Config) ConnectionString() string {
	return c.URL().String()
}

// Redacted is the connection string with the password masked, for logs.
func (c Config) Redacted() string {
	return c.URL().Redacted()
}

// PoolConfig parses the connection string into a pgxpool configuration.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config for %s: %w", c.Redacted(), err)
	}
	return poolConfig, nil
}

// Connect opens the pool and checks that the server answers. The caller owns
// the pool and closes it after every store built on it is done.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres %s: %w", cfg.Redacted(), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect postgres %s: %w", cfg.Redacted(), err)
	}
	return pool, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid non-negative integer %q", key, v)
	}
	return n, nil
}
