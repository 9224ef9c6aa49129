// Package offline provides the stores that keep the last fetched GIOS
// payloads for use when the network is unavailable.
package offline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/database"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown offline store backend")

// Store is an airquality.Store that can report its health and be closed.
type Store interface {
	airquality.Store
	Ping(ctx context.Context) error
	io.Closer
}

// Config selects and configures a Store.
type Config struct {
	// Backend is one of file, sqlite, postgres or memory (default: file).
	Backend string

	// Dir is the directory of the file backend.
	Dir string

	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string

	// Postgres configures the postgres backend.
	Postgres database.Config

	// Pool, when set, is used by the postgres backend instead of connecting
	// with Postgres. The store leaves it open on Close.
	Pool *pgxpool.Pool
}

// Open creates the configured Store, preparing its schema where needed.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Dir)

	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil

	case BackendPostgres:
		if cfg.Pool != nil {
			store, err := NewPostgresStore(ctx, cfg.Pool)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		store.ownsPool = true
		return store, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
