package analysis

import (
	"time"

	"github.com/airstat/airstat/internal/airquality"
)

// Point is one charted (timestamp, value) pair.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Extreme is a minimum or maximum together with the time it was measured.
type Extreme struct {
	Value     float64
	Timestamp time.Time
}

// Report is the outcome of filtering a series by a selection.
//
// Entries holds every measurement that passed the filter, including those
// without a value. Points holds only valued entries, in the same order, and is
// what gets charted. Min, Max and Average are meaningful only when Count > 0.
type Report struct {
	SensorID  int
	Key       string
	Selection Selection
	Entries   []airquality.Measurement
	Points    []Point
	Count     int
	Min       Extreme
	Max       Extreme
	Average   float64
	Trend     Trend
}

// HasStatistics reports whether the statistics section is defined.
func (r Report) HasStatistics() bool {
	return r.Count > 0
}

// Compute filters series by sel as of now and aggregates the survivors.
// A nil or empty series yields an empty report with an insufficient trend.
func Compute(series *airquality.Series, sel Selection, now time.Time) Report {
	report := Report{
		Selection: sel,
		Trend:     TrendInsufficient,
	}
	if series == nil {
		return report
	}
	report.SensorID = series.SensorID
	report.Key = series.Key

	keep := sel.Predicate(now)
	var sum float64

	for _, m := range series.Measurements {
		if !m.HasTimestamp() || !keep(m.Timestamp) {
			continue
		}
		report.Entries = append(report.Entries, m)
		if !m.HasValue() {
			continue
		}

		v := *m.Value
		if report.Count == 0 || v < report.Min.Value {
			report.Min = Extreme{Value: v, Timestamp: m.Timestamp}
		}
		if report.Count == 0 || v > report.Max.Value {
			report.Max = Extreme{Value: v, Timestamp: m.Timestamp}
		}
		sum += v
		report.Count++
		report.Points = append(report.Points, Point{Timestamp: m.Timestamp, Value: v})
	}

	if report.Count == 0 {
		return report
	}
	report.Average = sum / float64(report.Count)
	report.Trend = ClassifyTrend(report.Points)
	return report
}

// Engine computes reports against a clock that is read on every call, so a
// rolling window always ends at the current instant.
type Engine struct {
	Clock func() time.Time
}

// NewEngine creates an Engine on the wall clock.
func NewEngine() *Engine {
	return &Engine{Clock: time.Now}
}

// Compute filters and aggregates series as of the engine's current time.
func (e *Engine) Compute(series *airquality.Series, sel Selection) Report {
	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}
	return Compute(series, sel, clock())
}
