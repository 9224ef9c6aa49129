package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airstat/airstat/internal/airquality"
)

// AirQuality is the subset of the air quality service the refresh job drives.
type AirQuality interface {
	Stations(ctx context.Context, req airquality.StationsRequest) (*airquality.StationsResult, error)
	Sensors(ctx context.Context, req airquality.SensorsRequest) (*airquality.SensorsResult, error)
	Measurements(ctx context.Context, req airquality.SeriesRequest) (*airquality.SeriesResult, error)
}

// Refresh stages, used in RefreshError.
const (
	StageStations = "stations"
	StageSensors  = "sensors"
	StageData     = "data"
)

// RefreshJob walks cities, their stations, the stations' sensors and the
// sensors' data so every payload lands in the offline store.
type RefreshJob struct {
	config  RefreshConfig
	logger  zerolog.Logger
	service AirQuality

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns          int64
	SuccessfulStations int64
	FailedStations     int64
	SensorsRefreshed   int64
	SeriesRefreshed    int64
	OfflineFallbacks   int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Logger  zerolog.Logger
	Service AirQuality
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		logger:  cfg.Logger,
		service: cfg.Service,
		metrics: &RefreshMetrics{},
	}
}

// Cities returns the cities refreshed by Run.
func (j *RefreshJob) Cities() []string {
	return append([]string(nil), j.config.Cities...)
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
	Cities           []string
	TotalStations    int
	Successful       int
	Failed           int
	SensorsRefreshed int
	SeriesRefreshed  int
	OfflineFallbacks int
	Errors           []RefreshError
}

// RefreshError describes one failed or degraded fetch.
type RefreshError struct {
	Stage     string
	City      string
	StationID int
	SensorID  int
	Error     string
}

// Run refreshes all configured cities.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.RunCities(ctx, j.config.Cities)
}

// RunCities refreshes the given cities, or the configured ones when empty.
// A station counts as successful only when its sensors and every series came
// from the network.
func (j *RefreshJob) RunCities(ctx context.Context, cities []string) *RefreshResult {
	if len(cities) == 0 {
		cities = j.config.Cities
	}

	startTime := time.Now()
	result := &RefreshResult{
		StartTime: startTime,
		Cities:    cities,
	}

	j.logger.Info().
		Strs("cities", cities).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache refresh job")

	stations := j.resolveStations(ctx, cities, result)
	result.TotalStations = len(stations)

	// Create work channels
	stationsChan := make(chan cityStation, len(stations))
	resultsChan := make(chan stationResult, len(stations))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, stationsChan, resultsChan)
		}()
	}

	for _, st := range stations {
		stationsChan <- st
	}
	close(stationsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for sr := range resultsChan {
		if sr.success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.SensorsRefreshed += sr.sensors
		result.SeriesRefreshed += sr.series
		result.OfflineFallbacks += sr.fallbacks
		result.Errors = append(result.Errors, sr.errors...)
	}

	// stations never handed to a worker because ctx ended
	if skipped := result.TotalStations - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("stations", result.TotalStations).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("series", result.SeriesRefreshed).
		Int("offline_fallbacks", result.OfflineFallbacks).
		Msg("cache refresh job completed")

	return result
}

type cityStation struct {
	city    string
	station airquality.Station
}

type stationResult struct {
	success   bool
	sensors   int
	series    int
	fallbacks int
	errors    []RefreshError
}

func (j *RefreshJob) resolveStations(ctx context.Context, cities []string, result *RefreshResult) []cityStation {
	var out []cityStation
	for _, city := range cities {
		if ctx.Err() != nil {
			break
		}

		res, err := j.service.Stations(ctx, airquality.StationsRequest{City: city})
		if err != nil {
			j.logger.Warn().Err(err).Str("city", city).Msg("failed to resolve stations")
			result.Errors = append(result.Errors, RefreshError{Stage: StageStations, City: city, Error: err.Error()})
			continue
		}
		if res.Source != airquality.SourceNetwork {
			result.OfflineFallbacks++
			result.Errors = append(result.Errors, RefreshError{Stage: StageStations, City: city, Error: fetchErrText(res.FetchErr)})
		}

		stations := res.Stations
		if j.config.MaxStationsPerCity > 0 && len(stations) > j.config.MaxStationsPerCity {
			stations = stations[:j.config.MaxStationsPerCity]
		}
		for _, st := range stations {
			out = append(out, cityStation{city: res.City, station: st})
		}
	}
	return out
}

func (j *RefreshJob) refreshWorker(ctx context.Context, stations <-chan cityStation, results chan<- stationResult) {
	for st := range stations {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.refreshStation(ctx, st)
		}
	}
}

func (j *RefreshJob) refreshStation(ctx context.Context, cs cityStation) stationResult {
	result := stationResult{success: true}

	// Create timeout context for this station
	stationCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	fail := func(stage string, sensorID int, msg string) {
		result.success = false
		result.errors = append(result.errors, RefreshError{
			Stage:     stage,
			City:      cs.city,
			StationID: cs.station.ID,
			SensorID:  sensorID,
			Error:     msg,
		})
	}

	sensors, err := j.service.Sensors(stationCtx, airquality.SensorsRequest{StationID: cs.station.ID})
	if err != nil {
		fail(StageSensors, 0, err.Error())
		return result
	}
	if sensors.Source != airquality.SourceNetwork {
		result.fallbacks++
		fail(StageSensors, 0, fetchErrText(sensors.FetchErr))
	} else {
		result.sensors = len(sensors.Sensors)
	}

	if !j.config.RefreshData {
		return result
	}

	for _, sensor := range sensors.Sensors {
		series, err := j.service.Measurements(stationCtx, airquality.SeriesRequest{SensorID: sensor.ID})
		if err != nil {
			fail(StageData, sensor.ID, err.Error())
			return result
		}
		if series.Source != airquality.SourceNetwork {
			if series.Source == airquality.SourceOffline {
				result.fallbacks++
			}
			fail(StageData, sensor.ID, fetchErrText(series.FetchErr))
			continue
		}
		result.series++
	}

	return result
}

// HealthCheck verifies upstream connectivity by fetching the stations of the
// first configured city from the network.
func (j *RefreshJob) HealthCheck(ctx context.Context) error {
	res, err := j.service.Stations(ctx, airquality.StationsRequest{City: j.config.Cities[0]})
	if err != nil {
		return err
	}
	if res.Source != airquality.SourceNetwork {
		return &HealthError{Source: res.Source, Err: res.FetchErr}
	}
	return nil
}

// HealthError reports that the upstream could not be reached.
type HealthError struct {
	Source airquality.Source
	Err    error
}

func (e *HealthError) Error() string {
	return "upstream unreachable, served from " + string(e.Source) + ": " + fetchErrText(e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

func fetchErrText(err error) string {
	if err == nil {
		return "served without network"
	}
	return err.Error()
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulStations += int64(result.Successful)
	j.metrics.FailedStations += int64(result.Failed)
	j.metrics.SensorsRefreshed += int64(result.SensorsRefreshed)
	j.metrics.SeriesRefreshed += int64(result.SeriesRefreshed)
	j.metrics.OfflineFallbacks += int64(result.OfflineFallbacks)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:          j.metrics.TotalRuns,
		SuccessfulStations: j.metrics.SuccessfulStations,
		FailedStations:     j.metrics.FailedStations,
		SensorsRefreshed:   j.metrics.SensorsRefreshed,
		SeriesRefreshed:    j.metrics.SeriesRefreshed,
		OfflineFallbacks:   j.metrics.OfflineFallbacks,
		LastRunAt:          j.metrics.LastRunAt,
		LastRunDuration:    j.metrics.LastRunDuration,
		TotalDuration:      j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":          m.TotalRuns,
		"successful_stations": m.SuccessfulStations,
		"failed_stations":     m.FailedStations,
		"sensors_refreshed":   m.SensorsRefreshed,
		"series_refreshed":    m.SeriesRefreshed,
		"offline_fallbacks":   m.OfflineFallbacks,
		"last_run_at":         m.LastRunAt,
		"last_run_duration":   m.LastRunDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
