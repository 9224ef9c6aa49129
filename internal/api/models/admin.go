package models

// CacheRefreshRequest is the optional body of POST /v1/admin/cache/refresh.
// An empty city list refreshes the configured default cities.
type CacheRefreshRequest struct {
	Cities []string `json:"cities" validate:"omitempty,max=32,dive,required,max=64"`
}

// CacheRefreshError describes one failed step of a refresh run.
type CacheRefreshError struct {
	Stage     string `json:"stage"`
	City      string `json:"city,omitempty"`
	StationID int    `json:"stationId,omitempty"`
	SensorID  int    `json:"sensorId,omitempty"`
	Error     string `json:"error"`
}

// CacheRefreshSummary is the response of POST /v1/admin/cache/refresh.
type CacheRefreshSummary struct {
	StartedAt        Timestamp           `json:"startedAt"`
	FinishedAt       Timestamp           `json:"finishedAt"`
	DurationMs       int64               `json:"durationMs"`
	Cities           []string            `json:"cities"`
	TotalStations    int                 `json:"totalStations"`
	Successful       int                 `json:"successful"`
	Failed           int                 `json:"failed"`
	SensorsRefreshed int                 `json:"sensorsRefreshed"`
	SeriesRefreshed  int                 `json:"seriesRefreshed"`
	OfflineFallbacks int                 `json:"offlineFallbacks"`
	Errors           []CacheRefreshError `json:"errors,omitempty"`
}

// FeatureFlag is one runtime switch.
type FeatureFlag struct {
	Key       string     `json:"key"`
	Enabled   bool       `json:"enabled"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// FeatureFlagList is the response of the feature flag endpoints.
type FeatureFlagList struct {
	Items []FeatureFlag `json:"items"`
}

// FeatureFlagUpdateRequest is the body of PATCH /v1/admin/flags.
type FeatureFlagUpdateRequest struct {
	Flags  map[string]bool `json:"flags" validate:"required,min=1,max=16"`
	Reason string          `json:"reason" validate:"max=256"`
}
