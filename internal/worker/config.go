// Package worker keeps the offline cache warm by periodically fetching the
// stations, sensors and measurement series of configured cities.
package worker

import (
	"strings"
	"time"
)

// RefreshConfig holds configuration for the cache refresh job.
type RefreshConfig struct {
	// Cities whose stations are refreshed.
	// If empty, uses DefaultCities.
	Cities []string

	// Concurrency is the number of stations refreshed in parallel.
	// Default: 3
	Concurrency int

	// Timeout bounds the refresh of a single station and all its sensors.
	// Default: 60 seconds
	Timeout time.Duration

	// RefreshData enables fetching each sensor's measurement series.
	// Default: true
	RefreshData bool

	// MaxStationsPerCity caps the stations refreshed per city (0 = all).
	MaxStationsPerCity int
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Cities:      DefaultCities(),
		Concurrency: 3,
		Timeout:     60 * time.Second,
		RefreshData: true,
	}
}

// DefaultCities returns the largest Polish cities by population.
func DefaultCities() []string {
	return []string{
		"Warszawa",
		"Kraków",
		"Wrocław",
		"Łódź",
		"Poznań",
		"Gdańsk",
	}
}

// ParseCities splits a comma separated city list, dropping blanks.
func ParseCities(s string) []string {
	var cities []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	return cities
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	defaults := DefaultRefreshConfig()
	if len(c.Cities) == 0 {
		c.Cities = defaults.Cities
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}
