// Package chart renders measurement series as PNG line charts.
package chart

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/airstat/airstat/internal/analysis"
)

// ErrNotEnoughPoints is returned when fewer than two distinct instants are
// available to draw a line.
var ErrNotEnoughPoints = errors.New("not enough points to draw a chart")

// Options controls chart labels and size.
type Options struct {
	Title      string
	YAxisName  string
	DateFormat string // Go time layout for X axis labels
	Width      int
	Height     int
}

// movingAveragePeriod is the window of the smoothing line, drawn once the
// series is longer than it.
const movingAveragePeriod = 24

// Render writes a PNG line chart of points to w. Points are drawn in time
// order regardless of their input order.
func Render(w io.Writer, opts Options, points []analysis.Point) error {
	if len(points) < 2 {
		return ErrNotEnoughPoints
	}

	sorted := make([]analysis.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if sorted[0].Timestamp.Equal(sorted[len(sorted)-1].Timestamp) {
		return ErrNotEnoughPoints
	}

	xs := make([]time.Time, len(sorted))
	ys := make([]float64, len(sorted))
	minY, maxY := sorted[0].Value, sorted[0].Value
	for i, p := range sorted {
		xs[i] = p.Timestamp
		ys[i] = p.Value
		minY = min(minY, p.Value)
		maxY = max(maxY, p.Value)
	}

	if opts.Width == 0 {
		opts.Width = 1200
	}
	if opts.Height == 0 {
		opts.Height = 400
	}
	layout := opts.DateFormat
	if layout == "" {
		layout = "02.01.2006"
	}

	yAxis := gochart.YAxis{
		Name: opts.YAxisName,
		NameStyle: gochart.Style{
			FontSize: 12,
		},
		Style: gochart.Style{
			StrokeColor: drawing.ColorBlack,
			FontSize:    10,
		},
		GridMajorStyle: gochart.Style{
			StrokeColor: drawing.Color{R: 200, G: 200, B: 200, A: 255},
			StrokeWidth: 1.0,
		},
		ValueFormatter: func(v interface{}) string {
			return gochart.FloatValueFormatterWithFormat(v, "%.1f")
		},
	}
	// go-chart cannot scale a zero-height range
	if minY == maxY {
		yAxis.Range = &gochart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}

	ts := gochart.TimeSeries{
		Name: opts.YAxisName,
		Style: gochart.Style{
			StrokeColor: gochart.GetDefaultColor(0),
			StrokeWidth: 2,
		},
		XValues: xs,
		YValues: ys,
	}

	graph := gochart.Chart{
		Title: opts.Title,
		TitleStyle: gochart.Style{
			FontSize: 16,
		},
		Background: gochart.Style{
			Padding: gochart.Box{
				Top:    20,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: gochart.XAxis{
			Name: "Date",
			NameStyle: gochart.Style{
				FontSize: 12,
			},
			Style: gochart.Style{
				StrokeColor: drawing.ColorBlack,
				FontSize:    10,
			},
			ValueFormatter: gochart.TimeValueFormatterWithFormat(layout),
		},
		YAxis:  yAxis,
		Series: []gochart.Series{ts},
	}

	if len(ys) > movingAveragePeriod {
		graph.Series = append(graph.Series, gochart.SMASeries{
			Name: "Moving Avg",
			Style: gochart.Style{
				StrokeColor:     gochart.GetDefaultColor(1),
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 5},
			},
			InnerSeries: ts,
			Period:      movingAveragePeriod,
		})
	}

	if err := graph.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// ReportOptions derives chart options from a report: the parameter key as
// title and Y axis label and the selection's date layout.
func ReportOptions(r analysis.Report) Options {
	title := r.Key
	if title == "" {
		title = fmt.Sprintf("Sensor %d", r.SensorID)
	}
	return Options{
		Title:      title + " (" + r.Selection.String() + ")",
		YAxisName:  r.Key,
		DateFormat: r.Selection.AxisDateFormat(),
	}
}
