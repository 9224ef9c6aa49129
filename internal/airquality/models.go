// Package airquality provides GIOS station, sensor and measurement access with
// an offline fallback to the last successfully fetched payloads.
package airquality

import (
	"errors"
	"strconv"
	"time"
)

// Service errors.
var (
	ErrEmptyCity           = errors.New("city name is required")
	ErrNotCached           = errors.New("no offline payload cached")
	ErrNoData              = errors.New("no data available online or offline")
	ErrProviderUnavailable = errors.New("air quality provider unavailable")
)

// Station represents a GIOS monitoring station.
type Station struct {
	ID       int
	Name     string
	City     string
	Commune  string
	District string
	Province string
	Street   string
	Lat      float64
	Lon      float64
}

// Sensor represents a single measuring position at a station.
type Sensor struct {
	ID           int
	StationID    int
	ParamName    string
	ParamFormula string
	ParamCode    string
	ParamID      int
}

// Measurement is one timestamped reading of a sensor.
// Timestamp is the zero time when the source date could not be parsed.
// Value is nil when the source reported no value for the slot.
type Measurement struct {
	Timestamp time.Time
	Value     *float64
}

// HasTimestamp reports whether the source date parsed successfully.
func (m Measurement) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}

// HasValue reports whether the measurement carries a value.
func (m Measurement) HasValue() bool {
	return m.Value != nil
}

// Series is the ordered list of measurements for one sensor, in source order.
type Series struct {
	SensorID     int
	Key          string
	Measurements []Measurement
}

// Len returns the number of measurements in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Measurements)
}

// Kind identifies one of the three GIOS endpoints whose payloads are cached.
type Kind string

const (
	KindStations Kind = "stations"
	KindSensors  Kind = "sensors"
	KindData     Kind = "data"
)

// CacheKey addresses one cached payload: the station list (ID 0), the sensors
// of a station, or the data of a sensor.
type CacheKey struct {
	Kind Kind
	ID   int
}

// StationsKey returns the key of the station list payload.
func StationsKey() CacheKey { return CacheKey{Kind: KindStations} }

// SensorsKey returns the key of a station's sensor list payload.
func SensorsKey(stationID int) CacheKey { return CacheKey{Kind: KindSensors, ID: stationID} }

// DataKey returns the key of a sensor's measurement payload.
func DataKey(sensorID int) CacheKey { return CacheKey{Kind: KindData, ID: sensorID} }

func (k CacheKey) String() string {
	if k.Kind == KindStations {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + strconv.Itoa(k.ID)
}

// CachedPayload is a raw JSON body as last stored for a key.
type CachedPayload struct {
	Key       CacheKey
	Body      []byte
	FetchedAt time.Time
}

// Source tells where a result's data came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceOffline Source = "offline"
	SourceNone    Source = "none"
)

// StationsRequest asks for the stations of a city.
type StationsRequest struct {
	City    string
	Offline bool
}

// StationsResult carries the stations of the requested city.
type StationsResult struct {
	City      string
	Stations  []Station
	Source    Source
	FetchedAt time.Time
	// FetchErr is the network error that forced an offline fallback, if any.
	FetchErr error
}

// SensorsRequest asks for the sensors of a station.
type SensorsRequest struct {
	StationID int
	Offline   bool
}

// SensorsResult carries the sensors of the requested station.
type SensorsResult struct {
	StationID int
	Sensors   []Sensor
	Source    Source
	FetchedAt time.Time
	FetchErr  error
}

// SeriesRequest asks for the measurement series of a sensor.
type SeriesRequest struct {
	SensorID int
	Offline  bool
}

// SeriesResult carries the measurement series of the requested sensor.
// Series is never nil; it is empty when Source is SourceNone.
type SeriesResult struct {
	SensorID  int
	Series    *Series
	Source    Source
	FetchedAt time.Time
	FetchErr  error
}
