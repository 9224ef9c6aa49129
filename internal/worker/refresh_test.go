package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airstat/airstat/internal/airquality"
	"github.com/airstat/airstat/internal/worker"
)

var errUnreachable = errors.New("network is unreachable")

// fakeService serves two stations per city with two sensors each.
type fakeService struct {
	mu            sync.Mutex
	offlineSensor map[int]bool
	missingSensor map[int]bool
	failCity      map[string]bool
	offline       bool
	seriesCalls   int
}

func (f *fakeService) Stations(_ context.Context, req airquality.StationsRequest) (*airquality.StationsResult, error) {
	city := airquality.NormalizeCity(req.City)
	if f.failCity[city] {
		return nil, airquality.ErrNoData
	}
	base := len(city) * 100
	res := &airquality.StationsResult{
		City:     city,
		Stations: []airquality.Station{{ID: base + 1, City: city}, {ID: base + 2, City: city}},
		Source:   airquality.SourceNetwork,
	}
	if f.offline {
		res.Source = airquality.SourceOffline
		res.FetchErr = errUnreachable
	}
	return res, nil
}

func (f *fakeService) Sensors(_ context.Context, req airquality.SensorsRequest) (*airquality.SensorsResult, error) {
	return &airquality.SensorsResult{
		StationID: req.StationID,
		Sensors: []airquality.Sensor{
			{ID: req.StationID*10 + 1, StationID: req.StationID},
			{ID: req.StationID*10 + 2, StationID: req.StationID},
		},
		Source: airquality.SourceNetwork,
	}, nil
}

func (f *fakeService) Measurements(_ context.Context, req airquality.SeriesRequest) (*airquality.SeriesResult, error) {
	f.mu.Lock()
	f.seriesCalls++
	f.mu.Unlock()

	res := &airquality.SeriesResult{
		SensorID: req.SensorID,
		Series:   &airquality.Series{SensorID: req.SensorID},
		Source:   airquality.SourceNetwork,
	}
	switch {
	case f.offlineSensor[req.SensorID]:
		res.Source = airquality.SourceOffline
		res.FetchErr = errUnreachable
	case f.missingSensor[req.SensorID]:
		res.Source = airquality.SourceNone
		res.FetchErr = airquality.ErrNoData
	}
	return res, nil
}

func newJob(svc worker.AirQuality, cfg worker.RefreshConfig) *worker.RefreshJob {
	return worker.NewRefreshJob(worker.RefreshJobConfig{
		Config:  cfg,
		Logger:  zerolog.New(io.Discard),
		Service: svc,
	})
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.True(t, cfg.RefreshData)
	assert.Contains(t, cfg.Cities, "Wrocław")
}

func TestParseCities(t *testing.T) {
	assert.Equal(t, []string{"Kraków", "Łódź"}, worker.ParseCities(" Kraków, ,Łódź,"))
	assert.Empty(t, worker.ParseCities(""))
}

func TestRefreshJob_Run(t *testing.T) {
	svc := &fakeService{}
	job := newJob(svc, worker.RefreshConfig{Cities: []string{"Kraków", "Gdańsk"}, Concurrency: 2, RefreshData: true})

	result := job.Run(context.Background())

	assert.Equal(t, []string{"Kraków", "Gdańsk"}, result.Cities)
	assert.Equal(t, 4, result.TotalStations)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 8, result.SensorsRefreshed)
	assert.Equal(t, 8, result.SeriesRefreshed)
	assert.Empty(t, result.Errors)
	assert.NoError(t, worker.CheckResult(result))

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRuns)
	assert.Equal(t, int64(4), m.SuccessfulStations)
	assert.Equal(t, int64(8), m.SeriesRefreshed)
	assert.False(t, m.LastRunAt.IsZero())
}

func TestRefreshJob_SkipsData(t *testing.T) {
	svc := &fakeService{}
	job := newJob(svc, worker.RefreshConfig{Cities: []string{"Kraków"}, RefreshData: false})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.SeriesRefreshed)
	assert.Equal(t, 0, svc.seriesCalls)
}

func TestRefreshJob_Degraded(t *testing.T) {
	// Kraków (7 bytes) stations get ids 701/702, sensors 7011/7012/7021/7022.
	svc := &fakeService{
		offlineSensor: map[int]bool{7011: true},
		missingSensor: map[int]bool{7022: true},
		failCity:      map[string]bool{"Gdańsk": true},
	}
	job := newJob(svc, worker.RefreshConfig{Cities: []string{"Kraków", "gdańsk"}, RefreshData: true})

	result := job.Run(context.Background())

	assert.Equal(t, 2, result.TotalStations)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 2, result.SeriesRefreshed)
	assert.Equal(t, 1, result.OfflineFallbacks)
	require.Len(t, result.Errors, 3)

	stages := map[string]int{}
	for _, e := range result.Errors {
		stages[e.Stage]++
	}
	assert.Equal(t, 1, stages[worker.StageStations])
	assert.Equal(t, 2, stages[worker.StageData])
	assert.Error(t, worker.CheckResult(result))
}

func TestRefreshJob_RunCitiesOverride(t *testing.T) {
	job := newJob(&fakeService{}, worker.RefreshConfig{Cities: []string{"Kraków"}, RefreshData: true, MaxStationsPerCity: 1})

	result := job.RunCities(context.Background(), []string{"Poznań"})

	assert.Equal(t, []string{"Poznań"}, result.Cities)
	assert.Equal(t, 1, result.TotalStations)
	assert.Equal(t, []string{"Kraków"}, job.Cities())
}

func TestRefreshJob_CanceledContext(t *testing.T) {
	job := newJob(&fakeService{}, worker.RefreshConfig{Cities: []string{"Kraków"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, result.TotalStations, result.Failed)
}

func TestRefreshJob_HealthCheck(t *testing.T) {
	svc := &fakeService{}
	job := newJob(svc, worker.RefreshConfig{Cities: []string{"Kraków"}})
	require.NoError(t, job.HealthCheck(context.Background()))

	svc.offline = true
	err := job.HealthCheck(context.Background())
	var healthErr *worker.HealthError
	require.ErrorAs(t, err, &healthErr)
	assert.Equal(t, airquality.SourceOffline, healthErr.Source)
	assert.ErrorIs(t, err, errUnreachable)
}

func TestRefreshJob_Dispatch(t *testing.T) {
	job := newJob(&fakeService{}, worker.RefreshConfig{Cities: []string{"Kraków"}, RefreshData: true})
	ctx := context.Background()

	jobType, err := job.Dispatch(ctx, []byte(`{"job_type":"cache_refresh","cities":["Łódź"]}`))
	require.NoError(t, err)
	assert.Equal(t, worker.JobCacheRefresh, jobType)
	assert.Equal(t, int64(1), job.GetMetrics().TotalRuns)

	jobType, err = job.Dispatch(ctx, []byte(`{"job_type":"health_check"}`))
	require.NoError(t, err)
	assert.Equal(t, worker.JobHealthCheck, jobType)

	_, err = job.Dispatch(ctx, []byte(`{"job_type":"provider_refresh"}`))
	assert.ErrorIs(t, err, worker.ErrUnknownJob)

	_, err = job.Dispatch(ctx, []byte(`not json`))
	assert.ErrorIs(t, err, worker.ErrMalformedMessage)
}

func TestRefreshJob_MetricsSnapshot(t *testing.T) {
	job := newJob(&fakeService{}, worker.RefreshConfig{Cities: []string{"Kraków"}, RefreshData: true})
	job.Run(context.Background())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["total_runs"])
	assert.Equal(t, int64(2), snapshot["successful_stations"])
	assert.Contains(t, snapshot, "last_run_duration")
}

func TestScheduler_RunsImmediately(t *testing.T) {
	svc := &fakeService{}
	job := newJob(svc, worker.RefreshConfig{Cities: []string{"Kraków"}, RefreshData: true})

	s := worker.NewScheduler(job, time.Hour, zerolog.New(io.Discard))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return job.GetMetrics().TotalRuns == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.NextRun().After(time.Now()))
}

func TestScheduler_InvalidInterval(t *testing.T) {
	s := worker.NewScheduler(newJob(&fakeService{}, worker.RefreshConfig{}), 0, zerolog.New(io.Discard))
	assert.ErrorIs(t, s.Start(), worker.ErrInvalidInterval)
}
