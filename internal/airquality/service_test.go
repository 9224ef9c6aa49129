package airquality_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/airquality/gios"
	"github.com/airstat/airstat/internal/airquality/offline"
)

const (
	stationsBody = `[
		{"id": 114, "stationName": "Wrocław - Bartnicza", "gegrLat": "51.115933", "gegrLon": "17.141125",
		 "city": {"id": 1064, "name": "Wrocław", "commune": {"communeName": "Wrocław", "districtName": "Wrocław", "provinceName": "DOLNOŚLĄSKIE"}},
		 "addressStreet": "ul. Bartnicza"},
		{"id": 129, "stationName": "Wrocław - Wiśniowa", "gegrLat": "51.086225", "gegrLon": "17.012689",
		 "city": {"id": 1064, "name": "Wrocław", "commune": {"communeName": "Wrocław", "districtName": "Wrocław", "provinceName": "DOLNOŚLĄSKIE"}},
		 "addressStreet": "al. Wiśniowa"},
		{"id": 14, "stationName": "Działoszyn", "gegrLat": "50.972167", "gegrLon": "14.941319",
		 "city": {"id": 192, "name": "Działoszyn", "commune": {"communeName": "Bogatynia", "districtName": "zgorzelecki", "provinceName": "DOLNOŚLĄSKIE"}},
		 "addressStreet": null}
	]`
	sensorsBody = `[{"id": 92, "stationId": 14, "param": {"paramName": "pył zawieszony PM10", "paramFormula": "PM10", "paramCode": "PM10", "idParam": 3}}]`
	dataBody    = `{"key": "PM10", "values": [{"date": "2025-04-26 12:00:00", "value": 5.0}, {"date": "2025-04-26 11:00:00", "value": 15.0}]}`
)

var errNetwork = errors.New("dial tcp: network is unreachable")

// fakeProvider serves fixed bodies and counts calls.
type fakeProvider struct {
	err     error
	bodies  map[string]string
	delay   time.Duration
	calls   atomic.Int32
	release chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bodies: map[string]string{
			"stations": stationsBody,
			"sensors":  sensorsBody,
			"data":     dataBody,
		},
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) fetch(ctx context.Context, kind string) ([]byte, error) {
	p.calls.Add(1)
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, p.err
	}
	return []byte(p.bodies[kind]), nil
}

func (p *fakeProvider) FetchStations(ctx context.Context) ([]byte, error) {
	return p.fetch(ctx, "stations")
}

func (p *fakeProvider) FetchSensors(ctx context.Context, _ int) ([]byte, error) {
	return p.fetch(ctx, "sensors")
}

func (p *fakeProvider) FetchData(ctx context.Context, _ int) ([]byte, error) {
	return p.fetch(ctx, "data")
}

// recordingMetrics counts metric calls.
type recordingMetrics struct {
	mu       sync.Mutex
	requests int
	failures int
	hits     int
	misses   int
}

func (m *recordingMetrics) RecordRequest(_, _ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	if err != nil {
		m.failures++
	}
}

func (m *recordingMetrics) RecordCacheHit(_, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *recordingMetrics) RecordCacheMiss(_, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

// failingStore wraps a store and rejects saves.
type failingStore struct {
	airquality.Store
}

func (failingStore) Save(context.Context, airquality.CacheKey, []byte, time.Time) error {
	return errors.New("disk full")
}

var fixedNow = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newService(p airquality.Provider, store airquality.Store, metrics airquality.Metrics) *airquality.Service {
	return airquality.NewService(airquality.ServiceConfig{
		Provider: p,
		Codec:    gios.NewCodec(time.UTC),
		Store:    store,
		Logger:   zerolog.New(io.Discard),
		Metrics:  metrics,
		Clock:    func() time.Time { return fixedNow },
	})
}

func TestService_Stations_FiltersByCity(t *testing.T) {
	store := offline.NewMemoryStore()
	svc := newService(newFakeProvider(), store, nil)

	res, err := svc.Stations(context.Background(), airquality.StationsRequest{City: "  wrocław "})
	require.NoError(t, err)

	assert.Equal(t, "Wrocław", res.City)
	assert.Equal(t, airquality.SourceNetwork, res.Source)
	assert.Equal(t, fixedNow, res.FetchedAt)
	assert.NoError(t, res.FetchErr)
	require.Len(t, res.Stations, 2)
	assert.Equal(t, 114, res.Stations[0].ID)
	assert.Equal(t, 129, res.Stations[1].ID)

	// fresh payload persisted
	cached, err := store.Load(context.Background(), airquality.StationsKey())
	require.NoError(t, err)
	assert.JSONEq(t, stationsBody, string(cached.Body))
}

func TestService_Stations_UnknownCityIsEmpty(t *testing.T) {
	svc := newService(newFakeProvider(), offline.NewMemoryStore(), nil)

	res, err := svc.Stations(context.Background(), airquality.StationsRequest{City: "Gdańsk"})
	require.NoError(t, err)
	assert.NotNil(t, res.Stations)
	assert.Empty(t, res.Stations)
}

func TestService_Stations_EmptyCity(t *testing.T) {
	svc := newService(newFakeProvider(), offline.NewMemoryStore(), nil)

	_, err := svc.Stations(context.Background(), airquality.StationsRequest{City: "   "})
	assert.ErrorIs(t, err, airquality.ErrEmptyCity)
}

func TestService_FallsBackToOffline(t *testing.T) {
	store := offline.NewMemoryStore()
	metrics := &recordingMetrics{}
	ctx := context.Background()

	online := newService(newFakeProvider(), store, metrics)
	_, err := online.Sensors(ctx, airquality.SensorsRequest{StationID: 14})
	require.NoError(t, err)

	down := newFakeProvider()
	down.err = errNetwork
	svc := newService(down, store, metrics)

	res, err := svc.Sensors(ctx, airquality.SensorsRequest{StationID: 14})
	require.NoError(t, err)
	assert.Equal(t, airquality.SourceOffline, res.Source)
	assert.ErrorIs(t, res.FetchErr, errNetwork)
	assert.Equal(t, fixedNow, res.FetchedAt)
	require.Len(t, res.Sensors, 1)
	assert.Equal(t, "pył zawieszony PM10", res.Sensors[0].ParamName)

	assert.Equal(t, 2, metrics.requests)
	assert.Equal(t, 1, metrics.failures)
	assert.Equal(t, 1, metrics.hits)
}

func TestService_OfflineSkipsNetwork(t *testing.T) {
	store := offline.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), airquality.StationsKey(), []byte(stationsBody), fixedNow))

	p := newFakeProvider()
	svc := newService(p, store, nil)

	res, err := svc.Stations(context.Background(), airquality.StationsRequest{City: "Działoszyn", Offline: true})
	require.NoError(t, err)
	assert.Equal(t, airquality.SourceOffline, res.Source)
	assert.NoError(t, res.FetchErr)
	require.Len(t, res.Stations, 1)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestService_NoDataAnywhere(t *testing.T) {
	p := newFakeProvider()
	p.err = errNetwork
	metrics := &recordingMetrics{}
	svc := newService(p, offline.NewMemoryStore(), metrics)

	_, err := svc.Stations(context.Background(), airquality.StationsRequest{City: "Wrocław"})
	assert.ErrorIs(t, err, airquality.ErrNoData)
	assert.ErrorIs(t, err, errNetwork)
	assert.ErrorIs(t, err, airquality.ErrNotCached)

	_, err = svc.Sensors(context.Background(), airquality.SensorsRequest{StationID: 14, Offline: true})
	assert.ErrorIs(t, err, airquality.ErrNoData)

	assert.Equal(t, 2, metrics.misses)
}

func TestService_MalformedFreshPayloadFallsBack(t *testing.T) {
	store := offline.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), airquality.DataKey(92), []byte(dataBody), fixedNow))

	p := newFakeProvider()
	p.bodies["data"] = `<html>maintenance</html>`
	svc := newService(p, store, nil)

	res, err := svc.Measurements(context.Background(), airquality.SeriesRequest{SensorID: 92})
	require.NoError(t, err)
	assert.Equal(t, airquality.SourceOffline, res.Source)
	assert.ErrorIs(t, res.FetchErr, gios.ErrMalformedPayload)
	assert.Equal(t, 2, res.Series.Len())

	// the broken payload did not replace the good one
	cached, err := store.Load(context.Background(), airquality.DataKey(92))
	require.NoError(t, err)
	assert.JSONEq(t, dataBody, string(cached.Body))
}

func TestService_Measurements(t *testing.T) {
	svc := newService(newFakeProvider(), offline.NewMemoryStore(), nil)

	res, err := svc.Measurements(context.Background(), airquality.SeriesRequest{SensorID: 92})
	require.NoError(t, err)

	assert.Equal(t, 92, res.SensorID)
	assert.Equal(t, airquality.SourceNetwork, res.Source)
	assert.Equal(t, "PM10", res.Series.Key)
	assert.Equal(t, 92, res.Series.SensorID)
	require.Equal(t, 2, res.Series.Len())
	assert.Equal(t, 5.0, *res.Series.Measurements[0].Value)
}

func TestService_Measurements_NoDataIsGraceful(t *testing.T) {
	p := newFakeProvider()
	p.err = errNetwork
	svc := newService(p, offline.NewMemoryStore(), nil)

	res, err := svc.Measurements(context.Background(), airquality.SeriesRequest{SensorID: 92})
	require.NoError(t, err)

	assert.Equal(t, airquality.SourceNone, res.Source)
	require.NotNil(t, res.Series)
	assert.Equal(t, 0, res.Series.Len())
	assert.Equal(t, 92, res.Series.SensorID)
	assert.ErrorIs(t, res.FetchErr, airquality.ErrNoData)
}

func TestService_Measurements_CanceledContext(t *testing.T) {
	p := newFakeProvider()
	p.release = make(chan struct{})
	defer close(p.release)
	svc := newService(p, offline.NewMemoryStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Measurements(ctx, airquality.SeriesRequest{SensorID: 92})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_EmptyBodyFallsBack(t *testing.T) {
	p := newFakeProvider()
	p.bodies["stations"] = ""
	svc := newService(p, offline.NewMemoryStore(), nil)

	_, err := svc.Stations(context.Background(), airquality.StationsRequest{City: "Wrocław"})
	assert.ErrorIs(t, err, airquality.ErrProviderUnavailable)
	assert.ErrorIs(t, err, airquality.ErrNoData)
}

func TestService_SaveFailureDoesNotFailRequest(t *testing.T) {
	svc := newService(newFakeProvider(), failingStore{offline.NewMemoryStore()}, nil)

	res, err := svc.Sensors(context.Background(), airquality.SensorsRequest{StationID: 14})
	require.NoError(t, err)
	assert.Equal(t, airquality.SourceNetwork, res.Source)
	assert.Len(t, res.Sensors, 1)
}

func TestService_CoalescesConcurrentFetches(t *testing.T) {
	p := newFakeProvider()
	p.release = make(chan struct{})
	svc := newService(p, offline.NewMemoryStore(), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*airquality.SeriesResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Measurements(context.Background(), airquality.SeriesRequest{SensorID: 92})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	// let the callers pile up on the in-flight fetch
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 2, res.Series.Len())
	}
}

func TestService_NearbyStations(t *testing.T) {
	svc := newService(newFakeProvider(), offline.NewMemoryStore(), nil)

	res, err := svc.NearbyStations(context.Background(), airquality.NearbyRequest{
		Lat:    51.11,
		Lon:    17.03,
		Config: airquality.NearbyConfig{MaxDistance: 20000, MaxStations: 5},
	})
	require.NoError(t, err)
	require.Len(t, res.Stations, 2)
	assert.Equal(t, 129, res.Stations[0].Station.ID)
	assert.Equal(t, 114, res.Stations[1].Station.ID)
	assert.Less(t, res.Stations[0].Distance, res.Stations[1].Distance)

	res, err = svc.NearbyStations(context.Background(), airquality.NearbyRequest{Lat: 54.35, Lon: 18.65})
	require.NoError(t, err)
	assert.Empty(t, res.Stations)
}

func TestNormalizeCity(t *testing.T) {
	assert.Equal(t, "Łódź", airquality.NormalizeCity(" łódź"))
	assert.Equal(t, "Kraków", airquality.NormalizeCity("Kraków"))
	assert.Equal(t, "", airquality.NormalizeCity("  "))
}
