package airquality

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoStationsInRange is returned when no station lies within the radius.
var ErrNoStationsInRange = errors.New("no stations within range")

// NearbyConfig bounds a nearest-station search.
type NearbyConfig struct {
	// MaxDistance is the search radius in meters. Default: 25000 (25km).
	MaxDistance float64

	// MaxStations caps the number of stations returned. Default: 5.
	MaxStations int
}

// DefaultNearbyConfig returns the default search bounds.
func DefaultNearbyConfig() NearbyConfig {
	return NearbyConfig{
		MaxDistance: 25000,
		MaxStations: 5,
	}
}

// NearbyStation pairs a station with its distance from the query point.
type NearbyStation struct {
	Station  Station
	Distance float64 // meters
}

// NearbyRequest asks for the stations closest to a point.
type NearbyRequest struct {
	Lat     float64
	Lon     float64
	Config  NearbyConfig
	Offline bool
}

// NearbyResult carries the stations closest to the requested point.
type NearbyResult struct {
	Lat       float64
	Lon       float64
	Stations  []NearbyStation
	Source    Source
	FetchedAt time.Time
	FetchErr  error
}

// Nearest returns the stations within cfg.MaxDistance of (lat, lon), closest
// first, at most cfg.MaxStations of them. Stations at equal distance keep
// their input order.
func Nearest(stations []Station, lat, lon float64, cfg NearbyConfig) ([]NearbyStation, error) {
	defaults := DefaultNearbyConfig()
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = defaults.MaxDistance
	}
	if cfg.MaxStations <= 0 {
		cfg.MaxStations = defaults.MaxStations
	}

	var nearby []NearbyStation
	for _, st := range stations {
		dist := haversineDistance(lat, lon, st.Lat, st.Lon)
		if dist <= cfg.MaxDistance {
			nearby = append(nearby, NearbyStation{Station: st, Distance: dist})
		}
	}

	if len(nearby) == 0 {
		return nil, ErrNoStationsInRange
	}

	sort.SliceStable(nearby, func(a, b int) bool {
		return nearby[a].Distance < nearby[b].Distance
	})

	if len(nearby) > cfg.MaxStations {
		nearby = nearby[:cfg.MaxStations]
	}
	return nearby, nil
}

// haversineDistance calculates the distance between two points in meters
// using the Haversine formula.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000 // meters

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}
