// Package analysis filters a measurement series by a time range and derives
// its statistics and trend. Everything here is pure: no I/O, no shared state.
package analysis

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RangeKind enumerates the selectable time windows.
type RangeKind int

const (
	LastDay RangeKind = iota
	LastWeek
	LastMonth
	LastYear
	Custom
)

// DateLayout is the layout of custom range bounds.
const DateLayout = "2006-01-02"

// Selection errors.
var (
	ErrUnknownRange    = errors.New("unknown range")
	ErrMissingBounds   = errors.New("custom range requires from and to dates")
	ErrInvertedBounds  = errors.New("custom range from date is after to date")
	ErrMalformedBounds = errors.New("custom range dates must be YYYY-MM-DD")
)

var rangeNames = map[string]RangeKind{
	"day":    LastDay,
	"week":   LastWeek,
	"month":  LastMonth,
	"year":   LastYear,
	"custom": Custom,
}

// Selection is the active time window. From and To are only meaningful for
// Custom and hold calendar dates; any time-of-day component is ignored.
type Selection struct {
	Kind RangeKind
	From time.Time
	To   time.Time
}

// NewCustom returns an inclusive calendar-date range.
func NewCustom(from, to time.Time) Selection {
	return Selection{Kind: Custom, From: civil(from), To: civil(to)}
}

// ParseSelection maps a user-facing range name (day, week, month, year,
// custom) and optional YYYY-MM-DD bounds to a Selection.
func ParseSelection(name, from, to string) (Selection, error) {
	kind, ok := rangeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnknownRange, name)
	}
	if kind != Custom {
		return Selection{Kind: kind}, nil
	}

	if from == "" || to == "" {
		return Selection{}, ErrMissingBounds
	}
	fromDate, err := time.Parse(DateLayout, from)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %q", ErrMalformedBounds, from)
	}
	toDate, err := time.Parse(DateLayout, to)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %q", ErrMalformedBounds, to)
	}
	if fromDate.After(toDate) {
		return Selection{}, ErrInvertedBounds
	}
	return NewCustom(fromDate, toDate), nil
}

// Predicate returns the filter for this selection evaluated against now.
// Rolling windows keep timestamps at or after the cutoff; Custom compares the
// calendar date of the timestamp in its own location against From and To.
func (s Selection) Predicate(now time.Time) func(time.Time) bool {
	if s.Kind == Custom {
		from, to := civil(s.From), civil(s.To)
		return func(ts time.Time) bool {
			d := civil(ts)
			return !d.Before(from) && !d.After(to)
		}
	}

	cutoff := s.Cutoff(now)
	return func(ts time.Time) bool {
		return !ts.Before(cutoff)
	}
}

// Cutoff returns the earliest accepted instant for a rolling window.
// It panics for Custom and unknown kinds.
func (s Selection) Cutoff(now time.Time) time.Time {
	switch s.Kind {
	case LastDay:
		return now.AddDate(0, 0, -1)
	case LastWeek:
		return now.AddDate(0, 0, -7)
	case LastMonth:
		return now.AddDate(0, -1, 0)
	case LastYear:
		return now.AddDate(-1, 0, 0)
	default:
		panic(fmt.Sprintf("analysis: no cutoff for range kind %d", s.Kind))
	}
}

// AxisDateFormat is the chart X axis layout suited to the window.
func (s Selection) AxisDateFormat() string {
	if s.Kind == LastYear {
		return "01.2006"
	}
	return "02.01.2006"
}

func (s Selection) String() string {
	switch s.Kind {
	case LastDay:
		return "day"
	case LastWeek:
		return "week"
	case LastMonth:
		return "month"
	case LastYear:
		return "year"
	case Custom:
		return "custom " + s.From.Format(DateLayout) + ".." + s.To.Format(DateLayout)
	default:
		return fmt.Sprintf("range(%d)", int(s.Kind))
	}
}

// civil strips the time of day, keeping the calendar date as seen in t's
// own location.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
