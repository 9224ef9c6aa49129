package airquality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Provider fetches raw JSON payloads from the upstream air quality API.
type Provider interface {
	// Name identifies the provider in logs, metrics and the health registry.
	Name() string

	// FetchStations fetches the full station list.
	FetchStations(ctx context.Context) ([]byte, error)

	// FetchSensors fetches the sensors of a station.
	FetchSensors(ctx context.Context, stationID int) ([]byte, error)

	// FetchData fetches the measurement series of a sensor.
	FetchData(ctx context.Context, sensorID int) ([]byte, error)
}

// Codec decodes the payloads returned by a Provider. The same codec decodes
// fresh and cached payloads, so the store never needs to know their shape.
type Codec interface {
	DecodeStations(body []byte) ([]Station, error)
	DecodeSensors(body []byte) ([]Sensor, error)
	DecodeSeries(sensorID int, body []byte) (*Series, error)
}

// Store keeps the last successfully fetched payload per key. Save overwrites
// any previous payload for the key. Load returns ErrNotCached when nothing
// was stored.
type Store interface {
	Save(ctx context.Context, key CacheKey, body []byte, fetchedAt time.Time) error
	Load(ctx context.Context, key CacheKey) (*CachedPayload, error)
}

// Metrics receives provider call and offline fallback measurements.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ServiceConfig holds configuration for the air quality service.
type ServiceConfig struct {
	// Provider is the upstream data provider.
	Provider Provider

	// Codec decodes provider payloads.
	Codec Codec

	// Store holds the offline copies of provider payloads.
	Store Store

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics Metrics

	// FetchTimeout bounds a single shared upstream fetch (default: 30 seconds).
	FetchTimeout time.Duration

	// Clock stamps stored payloads (default: time.Now).
	Clock func() time.Time
}

// Service fetches stations, sensors and measurements, persisting every fresh
// payload and falling back to the stored copy when the network fails.
type Service struct {
	provider     Provider
	codec        Codec
	store        Store
	logger       zerolog.Logger
	metrics      Metrics
	fetchTimeout time.Duration
	clock        func() time.Time

	group singleflight.Group
}

// NewService creates a new air quality service.
func NewService(cfg ServiceConfig) *Service {
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 30 * time.Second
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Service{
		provider:     cfg.Provider,
		codec:        cfg.Codec,
		store:        cfg.Store,
		logger:       cfg.Logger,
		metrics:      metrics,
		fetchTimeout: fetchTimeout,
		clock:        clock,
	}
}

// ProviderName returns the name of the upstream provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Stations returns the stations located in the requested city. The city is
// matched exactly after trimming and upper-casing its first letter.
func (s *Service) Stations(ctx context.Context, req StationsRequest) (*StationsResult, error) {
	city := NormalizeCity(req.City)
	if city == "" {
		return nil, ErrEmptyCity
	}

	out, err := retrieve(ctx, s, StationsKey(), req.Offline, s.provider.FetchStations, s.codec.DecodeStations)
	if err != nil {
		return nil, fmt.Errorf("get stations for %s: %w", city, err)
	}

	stations := make([]Station, 0)
	for _, st := range out.value {
		if st.City == city {
			stations = append(stations, st)
		}
	}

	s.logger.Debug().
		Str("city", city).
		Int("stations", len(stations)).
		Str("source", string(out.source)).
		Msg("stations resolved")

	return &StationsResult{
		City:      city,
		Stations:  stations,
		Source:    out.source,
		FetchedAt: out.fetchedAt,
		FetchErr:  out.fetchErr,
	}, nil
}

// NearbyStations returns the stations closest to a point, searching the full
// station list. Finding none in range is not an error.
func (s *Service) NearbyStations(ctx context.Context, req NearbyRequest) (*NearbyResult, error) {
	out, err := retrieve(ctx, s, StationsKey(), req.Offline, s.provider.FetchStations, s.codec.DecodeStations)
	if err != nil {
		return nil, fmt.Errorf("get stations near %.4f,%.4f: %w", req.Lat, req.Lon, err)
	}

	nearby, err := Nearest(out.value, req.Lat, req.Lon, req.Config)
	if err != nil && !errors.Is(err, ErrNoStationsInRange) {
		return nil, err
	}
	if nearby == nil {
		nearby = make([]NearbyStation, 0)
	}

	return &NearbyResult{
		Lat:       req.Lat,
		Lon:       req.Lon,
		Stations:  nearby,
		Source:    out.source,
		FetchedAt: out.fetchedAt,
		FetchErr:  out.fetchErr,
	}, nil
}

// Sensors returns the sensors of a station.
func (s *Service) Sensors(ctx context.Context, req SensorsRequest) (*SensorsResult, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return s.provider.FetchSensors(ctx, req.StationID)
	}

	out, err := retrieve(ctx, s, SensorsKey(req.StationID), req.Offline, fetch, s.codec.DecodeSensors)
	if err != nil {
		return nil, fmt.Errorf("get sensors of station %d: %w", req.StationID, err)
	}

	return &SensorsResult{
		StationID: req.StationID,
		Sensors:   out.value,
		Source:    out.source,
		FetchedAt: out.fetchedAt,
		FetchErr:  out.fetchErr,
	}, nil
}

// Measurements returns the measurement series of a sensor. Missing data is
// not an error: with neither network nor offline copy the result carries an
// empty series, SourceNone and the reason in FetchErr. Only context
// cancellation fails the call.
func (s *Service) Measurements(ctx context.Context, req SeriesRequest) (*SeriesResult, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return s.provider.FetchData(ctx, req.SensorID)
	}
	decode := func(body []byte) (*Series, error) {
		return s.codec.DecodeSeries(req.SensorID, body)
	}

	out, err := retrieve(ctx, s, DataKey(req.SensorID), req.Offline, fetch, decode)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("get measurements of sensor %d: %w", req.SensorID, ctxErr)
		}
		s.logger.Warn().
			Err(err).
			Int("sensor_id", req.SensorID).
			Msg("no measurement data available")
		return &SeriesResult{
			SensorID: req.SensorID,
			Series:   &Series{SensorID: req.SensorID},
			Source:   SourceNone,
			FetchErr: err,
		}, nil
	}

	series := out.value
	if series == nil {
		series = &Series{SensorID: req.SensorID}
	}

	return &SeriesResult{
		SensorID:  req.SensorID,
		Series:    series,
		Source:    out.source,
		FetchedAt: out.fetchedAt,
		FetchErr:  out.fetchErr,
	}, nil
}

// NormalizeCity trims the input and upper-cases its first letter.
func NormalizeCity(city string) string {
	city = strings.TrimSpace(city)
	if city == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(city)
	return string(unicode.ToUpper(r)) + city[size:]
}

type outcome[T any] struct {
	value     T
	source    Source
	fetchedAt time.Time
	fetchErr  error
}

type fetched[T any] struct {
	value     T
	fetchedAt time.Time
}

// retrieve fetches and decodes a payload, persisting it on success. When the
// fetch or decode fails, or offline is set, the stored payload is decoded
// instead. ErrNoData is returned when neither is available.
func retrieve[T any](
	ctx context.Context,
	s *Service,
	key CacheKey,
	offline bool,
	fetch func(context.Context) ([]byte, error),
	decode func([]byte) (T, error),
) (outcome[T], error) {
	var fetchErr error

	if !offline {
		res, err := fetchShared(ctx, s, key, fetch, decode)
		if err == nil {
			return outcome[T]{value: res.value, source: SourceNetwork, fetchedAt: res.fetchedAt}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome[T]{}, ctxErr
		}
		fetchErr = err

		s.logger.Warn().
			Err(err).
			Str("key", key.String()).
			Msg("fetch failed, falling back to offline data")
	}

	operation := string(key.Kind)

	cached, err := s.store.Load(ctx, key)
	if err != nil {
		s.metrics.RecordCacheMiss(s.provider.Name(), operation)
		if !errors.Is(err, ErrNotCached) {
			s.logger.Error().Err(err).Str("key", key.String()).Msg("failed to load offline data")
		}
		return outcome[T]{fetchErr: fetchErr}, noData(fetchErr, err)
	}

	value, err := decode(cached.Body)
	if err != nil {
		s.metrics.RecordCacheMiss(s.provider.Name(), operation)
		s.logger.Error().Err(err).Str("key", key.String()).Msg("offline data is corrupt")
		return outcome[T]{fetchErr: fetchErr}, noData(fetchErr, fmt.Errorf("decode offline %s: %w", key, err))
	}

	s.metrics.RecordCacheHit(s.provider.Name(), operation)

	return outcome[T]{
		value:     value,
		source:    SourceOffline,
		fetchedAt: cached.FetchedAt,
		fetchErr:  fetchErr,
	}, nil
}

// fetchShared runs at most one upstream fetch per key at a time; concurrent
// callers share its result. The shared fetch is detached from any single
// caller's cancellation, but each caller stops waiting when its own context
// ends.
func fetchShared[T any](
	ctx context.Context,
	s *Service,
	key CacheKey,
	fetch func(context.Context) ([]byte, error),
	decode func([]byte) (T, error),
) (fetched[T], error) {
	ch := s.group.DoChan(key.String(), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		start := time.Now()
		body, err := fetch(fetchCtx)
		if err == nil && len(body) == 0 {
			err = ErrProviderUnavailable
		}
		s.metrics.RecordRequest(s.provider.Name(), string(key.Kind), time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", key, err)
		}

		value, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}

		fetchedAt := s.clock()
		if err := s.store.Save(fetchCtx, key, body, fetchedAt); err != nil {
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("failed to save offline data")
		}

		return fetched[T]{value: value, fetchedAt: fetchedAt}, nil
	})

	select {
	case <-ctx.Done():
		return fetched[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fetched[T]{}, res.Err
		}
		return res.Val.(fetched[T]), nil
	}
}

func noData(fetchErr, loadErr error) error {
	if fetchErr != nil {
		return fmt.Errorf("%w: %w; offline: %w", ErrNoData, fetchErr, loadErr)
	}
	return fmt.Errorf("%w: %w", ErrNoData, loadErr)
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(string, string, time.Duration, error) {}
func (noopMetrics) RecordCacheHit(string, string)                      {}
func (noopMetrics) RecordCacheMiss(string, string)                     {}
