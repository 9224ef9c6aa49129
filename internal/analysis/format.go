package analysis

import (
	"strconv"
	"strings"
)

// EntryTimeLayout is the timestamp layout of text report lines.
const EntryTimeLayout = "02.01.2006 15:04"

// NoData marks an entry whose value is missing.
const NoData = "no data"

// FormatValue renders a measurement value with up to six significant digits.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Format renders the report as plain text: one line per retained entry, then
// a statistics block when at least one valued entry survived.
func Format(r Report) string {
	var b strings.Builder

	for _, m := range r.Entries {
		value := NoData
		if m.HasValue() {
			value = FormatValue(*m.Value)
		}
		b.WriteString(m.Timestamp.Format(EntryTimeLayout))
		b.WriteString(" → ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	if !r.HasStatistics() {
		return b.String()
	}

	b.WriteString("\nStatistics:\n")
	b.WriteString("Maximum: " + FormatValue(r.Max.Value) + " (" + r.Max.Timestamp.Format(EntryTimeLayout) + ")\n")
	b.WriteString("Minimum: " + FormatValue(r.Min.Value) + " (" + r.Min.Timestamp.Format(EntryTimeLayout) + ")\n")
	b.WriteString("Average: " + strconv.FormatFloat(r.Average, 'f', 2, 64) + "\n")
	b.WriteString("Trend: " + r.Trend.Description() + "\n")
	return b.String()
}
