package analysis_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airstat/airstat/internal/analysis"
)

func TestSelection_CustomBoundsInclusive(t *testing.T) {
	sel, err := analysis.ParseSelection("custom", "2025-04-10", "2025-04-12")
	require.NoError(t, err)

	keep := sel.Predicate(time.Now())

	assert.True(t, keep(at("2025-04-10T00:00")), "from date included")
	assert.True(t, keep(at("2025-04-12T23:59")), "to date included regardless of time")
	assert.False(t, keep(at("2025-04-09T23:59")), "day before from excluded")
	assert.False(t, keep(at("2025-04-13T00:00")), "day after to excluded")
}

func TestSelection_CustomUsesTimestampLocation(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	sel := analysis.NewCustom(at("2025-04-10T00:00"), at("2025-04-10T00:00"))
	keep := sel.Predicate(time.Now())

	// 00:30 local on the 10th is still the 9th in UTC.
	assert.True(t, keep(time.Date(2025, 4, 10, 0, 30, 0, 0, warsaw)))
}

func TestSelection_RollingCutoffs(t *testing.T) {
	now := at("2025-03-31T12:00")

	tests := []struct {
		name string
		kind analysis.RangeKind
		want time.Time
	}{
		{"day", analysis.LastDay, at("2025-03-30T12:00")},
		{"week", analysis.LastWeek, at("2025-03-24T12:00")},
		{"month", analysis.LastMonth, at("2025-03-03T12:00")}, // Feb 31 normalises
		{"year", analysis.LastYear, at("2024-03-31T12:00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := analysis.Selection{Kind: tt.kind}
			assert.Equal(t, tt.want, sel.Cutoff(now))

			keep := sel.Predicate(now)
			assert.True(t, keep(tt.want))
			assert.False(t, keep(tt.want.Add(-time.Second)))
		})
	}
}

func TestSelection_UnknownKindPanics(t *testing.T) {
	sel := analysis.Selection{Kind: analysis.RangeKind(42)}
	assert.Panics(t, func() { sel.Predicate(time.Now()) })
}

func TestParseSelection(t *testing.T) {
	sel, err := analysis.ParseSelection(" Week ", "", "")
	require.NoError(t, err)
	assert.Equal(t, analysis.LastWeek, sel.Kind)

	_, err = analysis.ParseSelection("fortnight", "", "")
	assert.ErrorIs(t, err, analysis.ErrUnknownRange)

	_, err = analysis.ParseSelection("custom", "2025-04-10", "")
	assert.ErrorIs(t, err, analysis.ErrMissingBounds)

	_, err = analysis.ParseSelection("custom", "10.04.2025", "2025-04-12")
	assert.ErrorIs(t, err, analysis.ErrMalformedBounds)

	_, err = analysis.ParseSelection("custom", "2025-04-12", "2025-04-10")
	assert.ErrorIs(t, err, analysis.ErrInvertedBounds)
}

func TestSelection_AxisDateFormat(t *testing.T) {
	assert.Equal(t, "01.2006", analysis.Selection{Kind: analysis.LastYear}.AxisDateFormat())
	assert.Equal(t, "02.01.2006", analysis.Selection{Kind: analysis.LastMonth}.AxisDateFormat())
	assert.Equal(t, "custom 2025-04-10..2025-04-12",
		analysis.NewCustom(at("2025-04-10T08:00"), at("2025-04-12T09:00")).String())
}
