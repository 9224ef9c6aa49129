package models

// Station is a GIOS monitoring station.
type Station struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	City     string  `json:"city"`
	Commune  string  `json:"commune,omitempty"`
	District string  `json:"district,omitempty"`
	Province string  `json:"province,omitempty"`
	Street   string  `json:"street,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// StationList is the response of GET /v1/stations.
type StationList struct {
	City     string     `json:"city"`
	Stations []Station  `json:"stations"`
	Data     DataSource `json:"data"`
}

// NearbyStation is a station with its distance from the query point.
type NearbyStation struct {
	Station
	DistanceMeters float64 `json:"distanceMeters"`
}

// NearbyStationList is the response of GET /v1/stations/nearby.
type NearbyStationList struct {
	Lat      float64         `json:"lat"`
	Lon      float64         `json:"lon"`
	Stations []NearbyStation `json:"stations"`
	Data     DataSource      `json:"data"`
}

// Sensor is one measuring position of a station.
type Sensor struct {
	ID           int    `json:"id"`
	StationID    int    `json:"stationId"`
	ParamName    string `json:"paramName"`
	ParamFormula string `json:"paramFormula"`
	ParamCode    string `json:"paramCode"`
	ParamID      int    `json:"paramId"`
}

// SensorList is the response of GET /v1/stations/{stationId}/sensors.
type SensorList struct {
	StationID int        `json:"stationId"`
	Sensors   []Sensor   `json:"sensors"`
	Data      DataSource `json:"data"`
}

// ReportEntry is one retained measurement. Value is null for "no data".
type ReportEntry struct {
	Timestamp Timestamp `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// Extreme is a minimum or maximum with the time it was measured.
type Extreme struct {
	Value     float64   `json:"value"`
	Timestamp Timestamp `json:"timestamp"`
}

// Statistics is present only when at least one valued entry survived.
type Statistics struct {
	Count   int     `json:"count"`
	Minimum Extreme `json:"minimum"`
	Maximum Extreme `json:"maximum"`
	Average float64 `json:"average"`
}

// MeasurementReport is the response of GET /v1/sensors/{sensorId}/measurements.
type MeasurementReport struct {
	SensorID         int           `json:"sensorId"`
	Key              string        `json:"key,omitempty"`
	Range            string        `json:"range"`
	Entries          []ReportEntry `json:"entries"`
	Statistics       *Statistics   `json:"statistics,omitempty"`
	Trend            string        `json:"trend"`
	TrendDescription string        `json:"trendDescription"`
	Data             DataSource    `json:"data"`
}
