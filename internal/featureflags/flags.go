// Package featureflags provides runtime switches for the API, read through a
// short-lived cache in front of a memory or PostgreSQL repository.
package featureflags

import (
	"errors"
	"sort"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagOfflineOnly serves every read from the offline store without
	// contacting GIOS.
	FlagOfflineOnly = "offline_only"

	// FlagDisableCharts turns off PNG chart rendering.
	FlagDisableCharts = "disable_charts"

	// FlagDisableNearby turns off the nearby station search.
	FlagDisableNearby = "disable_nearby_search"
)

// Update errors.
var (
	ErrUnknownFlag  = errors.New("unknown feature flag")
	ErrInvalidValue = errors.New("feature flag value must be a boolean")
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

func (f *Flag) clone() *Flag {
	c := *f
	return &c
}

// DefaultFlags returns the default feature flags, all off.
func DefaultFlags() map[string]*Flag {
	var zero time.Time
	return map[string]*Flag{
		FlagOfflineOnly:   {Key: FlagOfflineOnly, Value: false, UpdatedAt: zero},
		FlagDisableCharts: {Key: FlagDisableCharts, Value: false, UpdatedAt: zero},
		FlagDisableNearby: {Key: FlagDisableNearby, Value: false, UpdatedAt: zero},
	}
}

// Sorted returns the flags ordered by key.
func Sorted(flags map[string]*Flag) []*Flag {
	out := make([]*Flag, 0, len(flags))
	for _, f := range flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
