package offline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/airstat/airstat/internal/airquality"
)

// DefaultDir is the file store directory used when none is configured.
const DefaultDir = "offline"

// FileStore keeps one JSON file per key in a directory: stations.json,
// sensors_<stationID>.json and data_<sensorID>.json. A save replaces the
// whole file; the file's modification time is its fetch time.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// the first save.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve offline directory: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// FileName returns the base file name used for key.
func FileName(key airquality.CacheKey) string {
	if key.Kind == airquality.KindStations {
		return "stations.json"
	}
	return string(key.Kind) + "_" + strconv.Itoa(key.ID) + ".json"
}

// Save writes body to the key's file through a temporary file and rename, so
// readers never observe a partial payload.
func (s *FileStore) Save(_ context.Context, key airquality.CacheKey, body []byte, fetchedAt time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create offline directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+FileName(key)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if !fetchedAt.IsZero() {
		if err := os.Chtimes(tmpName, fetchedAt, fetchedAt); err != nil {
			return fmt.Errorf("stamp %s: %w", key, err)
		}
	}

	if err := os.Rename(tmpName, filepath.Join(s.dir, FileName(key))); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Load reads the key's file.
func (s *FileStore) Load(_ context.Context, key airquality.CacheKey) (*airquality.CachedPayload, error) {
	path := filepath.Join(s.dir, FileName(key))

	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, airquality.ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(body) == 0 {
		return nil, airquality.ErrNotCached
	}

	var fetchedAt time.Time
	if info, err := os.Stat(path); err == nil {
		fetchedAt = info.ModTime()
	}

	return &airquality.CachedPayload{Key: key, Body: body, FetchedAt: fetchedAt}, nil
}

// Ping reports whether the directory, if it exists, is a directory.
func (s *FileStore) Ping(context.Context) error {
	info, err := os.Stat(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat offline directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("offline path %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
