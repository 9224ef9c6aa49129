package offline

import (
	"context"
	"sync"
	"time"

	"github.com/airstat/airstat/internal/airquality"
)

// MemoryStore keeps payloads in a map. Contents are lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[airquality.CacheKey]airquality.CachedPayload
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payloads: make(map[airquality.CacheKey]airquality.CachedPayload),
	}
}

// Save stores a copy of body under key, replacing any previous payload.
func (s *MemoryStore) Save(_ context.Context, key airquality.CacheKey, body []byte, fetchedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[key] = airquality.CachedPayload{
		Key:       key,
		Body:      append([]byte(nil), body...),
		FetchedAt: fetchedAt,
	}
	return nil
}

// Load returns the payload stored under key.
func (s *MemoryStore) Load(_ context.Context, key airquality.CacheKey) (*airquality.CachedPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payloads[key]
	if !ok {
		return nil, airquality.ErrNotCached
	}
	p.Body = append([]byte(nil), p.Body...)
	return &p, nil
}

// Len returns the number of stored payloads.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payloads)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
