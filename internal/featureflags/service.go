package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration // How long to cache flags in memory
	DefaultFlags map[string]*Flag
	Clock        func() time.Time
}

// Service provides feature flag evaluation with caching and fallback to
// defaults when the repository is unavailable.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag
	clock        func() time.Time

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service. A nil Repository keeps
// flags in memory.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}
	repo := cfg.Repository
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		repo:         repo,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
		clock:        clock,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag retrieves a feature flag by key, from the cache when fresh, else
// from the repository, else from the defaults. Unknown keys return nil.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag := s.getCached(key); flag != nil {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.setCached(flag)
		return flag
	}
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}

	return s.defaultFlags[key]
}

// GetAllFlags returns the stored flags merged over the defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := make(map[string]*Flag, len(s.defaultFlags))
	for k, v := range s.defaultFlags {
		result[k] = v
	}

	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
		return result
	}
	for k, v := range flags {
		result[k] = v
	}

	s.mu.Lock()
	s.cache = flags
	s.cacheExpiry = s.clock().Add(s.cacheTTL)
	s.mu.Unlock()

	return result
}

// SetFlags validates and stores boolean values for known flags, returning the
// stored flags ordered by key.
func (s *Service) SetFlags(ctx context.Context, values map[string]interface{}) ([]*Flag, error) {
	now := s.clock()
	flags := make(map[string]*Flag, len(values))
	for key, value := range values {
		if _, ok := s.defaultFlags[key]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFlag, key)
		}
		if _, ok := value.(bool); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidValue, key)
		}
		flags[key] = &Flag{Key: key, Value: value, UpdatedAt: now}
	}

	sorted := Sorted(flags)
	if err := s.repo.SetFlags(ctx, sorted); err != nil {
		return nil, err
	}

	for _, flag := range sorted {
		s.setCached(flag)
	}
	return sorted, nil
}

// InvalidateCache clears the cached flags, forcing a refresh on next access.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled returns true if the flag with the given key is enabled.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

func (s *Service) getCached(key string) *Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.clock().After(s.cacheExpiry) {
		return nil
	}
	return s.cache[key]
}

func (s *Service) setCached(flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.cacheExpiry.Before(now) {
		// The whole cache is stale; start a fresh window with this flag only.
		s.cache = make(map[string]*Flag)
		s.cacheExpiry = now.Add(s.cacheTTL)
	}
	s.cache[flag.Key] = flag
}

// Convenience methods for well-known flags.

// IsOfflineOnly returns true if reads must not contact GIOS.
func (s *Service) IsOfflineOnly(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagOfflineOnly)
}

// IsChartsDisabled returns true if PNG chart rendering is turned off.
func (s *Service) IsChartsDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableCharts)
}

// IsNearbyDisabled returns true if the nearby station search is turned off.
func (s *Service) IsNearbyDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableNearby)
}
