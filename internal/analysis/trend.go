package analysis

import (
	"github.com/montanaflynn/stats"
)

// Trend is the qualitative direction of a series.
type Trend string

const (
	TrendRising       Trend = "rising"
	TrendFalling      Trend = "falling"
	TrendStable       Trend = "stable"
	TrendInsufficient Trend = "insufficient"
)

// SlopeThreshold is the per-second slope beyond which a series counts as
// rising or falling.
const SlopeThreshold = 0.01

// Description is the human-readable trend label used in text reports.
func (t Trend) Description() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	case TrendStable:
		return "stable"
	default:
		return "not enough data to analyze trend"
	}
}

// ClassifyTrend fits an ordinary least-squares line of value against time
// (seconds since the Unix epoch) and classifies its slope.
func ClassifyTrend(points []Point) Trend {
	slope, ok := Slope(points)
	if !ok {
		if len(points) < 2 {
			return TrendInsufficient
		}
		// all points share one instant
		return TrendStable
	}

	switch {
	case slope > SlopeThreshold:
		return TrendRising
	case slope < -SlopeThreshold:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Slope returns the least-squares slope in value units per second. It is the
// closed-form estimator (nΣxy − ΣxΣy)/(nΣx² − (Σx)²) written around the means,
// which avoids cancellation with epoch-sized x values. ok is false with fewer
// than two points or when every point has the same timestamp.
func Slope(points []Point) (slope float64, ok bool) {
	if len(points) < 2 {
		return 0, false
	}

	xs := make(stats.Float64Data, len(points))
	ys := make(stats.Float64Data, len(points))
	for i, p := range points {
		xs[i] = float64(p.Timestamp.UnixMilli()) / 1000.0
		ys[i] = p.Value
	}

	meanX, err := xs.Mean()
	if err != nil {
		return 0, false
	}
	meanY, err := ys.Mean()
	if err != nil {
		return 0, false
	}

	var num, den float64
	for i := range xs {
		dx := xs[i] - meanX
		num += dx * (ys[i] - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}
