package featureflags_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/featureflags"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newService(repo featureflags.Repository, clock *testClock) *featureflags.Service {
	return featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
		Clock:      clock.Now,
	})
}

// failingRepository fails every call.
type failingRepository struct{}

func (failingRepository) GetFlag(context.Context, string) (*featureflags.Flag, error) {
	return nil, errors.New("database unavailable")
}

func (failingRepository) GetAllFlags(context.Context) (map[string]*featureflags.Flag, error) {
	return nil, errors.New("database unavailable")
}

func (failingRepository) SetFlags(context.Context, []*featureflags.Flag) error {
	return errors.New("database unavailable")
}

func TestService_Defaults(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 4, 26, 12, 0, 0, 0, time.UTC)}
	service := newService(featureflags.NewInMemoryRepository(), clock)
	ctx := context.Background()

	for _, key := range []string{featureflags.FlagOfflineOnly, featureflags.FlagDisableCharts, featureflags.FlagDisableNearby} {
		flag := service.GetFlag(ctx, key)
		if flag == nil {
			t.Fatalf("expected default flag %q", key)
		}
		if flag.BoolValue(true) {
			t.Errorf("expected %q to be off by default", key)
		}
	}

	if service.GetFlag(ctx, "no_such_flag") != nil {
		t.Error("expected nil for an unknown flag")
	}
	if service.IsOfflineOnly(ctx) || service.IsChartsDisabled(ctx) || service.IsNearbyDisabled(ctx) {
		t.Error("expected every switch to be off")
	}
}

func TestService_SetFlags(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 4, 26, 12, 0, 0, 0, time.UTC)}
	repo := featureflags.NewInMemoryRepository()
	service := newService(repo, clock)
	ctx := context.Background()

	stored, err := service.SetFlags(ctx, map[string]interface{}{
		featureflags.FlagOfflineOnly:   true,
		featureflags.FlagDisableCharts: true,
	})
	if err != nil {
		t.Fatalf("failed to set flags: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored flags, got %d", len(stored))
	}
	if stored[0].Key != featureflags.FlagDisableCharts || stored[1].Key != featureflags.FlagOfflineOnly {
		t.Errorf("expected flags ordered by key, got %q, %q", stored[0].Key, stored[1].Key)
	}
	if !stored[0].UpdatedAt.Equal(clock.Now()) {
		t.Errorf("expected UpdatedAt %v, got %v", clock.Now(), stored[0].UpdatedAt)
	}

	if !service.IsOfflineOnly(ctx) {
		t.Error("expected offline_only to be on")
	}
	if !service.IsChartsDisabled(ctx) {
		t.Error("expected disable_charts to be on")
	}
	if service.IsNearbyDisabled(ctx) {
		t.Error("expected disable_nearby_search to stay off")
	}

	flag, err := repo.GetFlag(ctx, featureflags.FlagOfflineOnly)
	if err != nil {
		t.Fatalf("expected flag in repository: %v", err)
	}
	if !flag.BoolValue(false) {
		t.Error("expected repository value to be true")
	}
}

func TestService_SetFlagsRejects(t *testing.T) {
	clock := &testClock{now: time.Now()}
	service := newService(featureflags.NewInMemoryRepository(), clock)
	ctx := context.Background()

	_, err := service.SetFlags(ctx, map[string]interface{}{"enable_time_travel": true})
	if !errors.Is(err, featureflags.ErrUnknownFlag) {
		t.Errorf("expected ErrUnknownFlag, got %v", err)
	}

	_, err = service.SetFlags(ctx, map[string]interface{}{featureflags.FlagOfflineOnly: "yes"})
	if !errors.Is(err, featureflags.ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}

	if service.IsOfflineOnly(ctx) {
		t.Error("rejected update must not change flags")
	}
}

func TestService_ReadsThroughUncachedKeys(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 4, 26, 12, 0, 0, 0, time.UTC)}
	repo := featureflags.NewInMemoryRepository()
	service := newService(repo, clock)
	ctx := context.Background()

	// Prime the cache from an empty repository.
	all := service.GetAllFlags(ctx)
	if all[featureflags.FlagDisableCharts].BoolValue(true) {
		t.Fatal("expected charts enabled")
	}

	// Another replica flips the flag in the shared repository.
	err := repo.SetFlags(ctx, []*featureflags.Flag{{Key: featureflags.FlagDisableCharts, Value: true, UpdatedAt: clock.Now()}})
	if err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	if !service.IsChartsDisabled(ctx) {
		t.Error("expected a key missing from the cache to be read from the repository")
	}

	service.InvalidateCache()
	if !service.IsChartsDisabled(ctx) {
		t.Error("expected the flag to be read again after invalidation")
	}
}

func TestService_CachedValueHidesRemoteChange(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 4, 26, 12, 0, 0, 0, time.UTC)}
	repo := featureflags.NewInMemoryRepository()
	service := newService(repo, clock)
	ctx := context.Background()

	if _, err := service.SetFlags(ctx, map[string]interface{}{featureflags.FlagOfflineOnly: false}); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	err := repo.SetFlags(ctx, []*featureflags.Flag{{Key: featureflags.FlagOfflineOnly, Value: true, UpdatedAt: clock.Now()}})
	if err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	if service.IsOfflineOnly(ctx) {
		t.Error("expected the cached value until the cache expires")
	}

	clock.Advance(time.Minute + time.Second)
	if !service.IsOfflineOnly(ctx) {
		t.Error("expected the repository value after expiry")
	}
}

func TestService_RepositoryFailure(t *testing.T) {
	clock := &testClock{now: time.Now()}
	service := newService(failingRepository{}, clock)
	ctx := context.Background()

	if service.IsOfflineOnly(ctx) {
		t.Error("expected default value when the repository fails")
	}

	all := service.GetAllFlags(ctx)
	if len(all) != 3 {
		t.Errorf("expected 3 default flags, got %d", len(all))
	}

	if _, err := service.SetFlags(ctx, map[string]interface{}{featureflags.FlagOfflineOnly: true}); err == nil {
		t.Error("expected repository error")
	}
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := featureflags.NewInMemoryRepositoryWithFlags(featureflags.DefaultFlags())
	ctx := context.Background()

	flag, err := repo.GetFlag(ctx, featureflags.FlagOfflineOnly)
	if err != nil {
		t.Fatalf("expected flag: %v", err)
	}
	flag.Value = true

	again, _ := repo.GetFlag(ctx, featureflags.FlagOfflineOnly)
	if again.BoolValue(false) {
		t.Error("mutating a returned flag must not change the repository")
	}

	if _, err := repo.GetFlag(ctx, "missing"); !errors.Is(err, featureflags.ErrFlagNotFound) {
		t.Errorf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestFlag_BoolValue(t *testing.T) {
	var nilFlag *featureflags.Flag
	if !nilFlag.BoolValue(true) {
		t.Error("nil flag must return the default")
	}
	if !(&featureflags.Flag{Value: float64(1)}).BoolValue(false) {
		t.Error("non-zero number must be true")
	}
	if (&featureflags.Flag{Value: "on"}).BoolValue(false) {
		t.Error("string must fall back to the default")
	}
}
