package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is how series timestamps are written: local wall clock plus offset.
const TimestampLayout = "2006-01-02 15:04:05-07:00"

// FractionalTimestampLayout is used instead of TimestampLayout when the time
// has a sub-second part, so the written value round trips exactly.
const FractionalTimestampLayout = "2006-01-02 15:04:05.999999999-07:00"

var zonedLayouts = []string{
	TimestampLayout,
	FractionalTimestampLayout,
	time.RFC3339Nano,
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FormatTimestamp renders t in its own location. Whole seconds use
// TimestampLayout; anything finer keeps its fraction.
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format(FractionalTimestampLayout)
	}
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a series timestamp. Values carrying an offset keep it;
// naive values are interpreted as wall clock time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatValue renders a numeric cell; missing values become empty cells.
func FormatValue(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.String()
}

// IsHeaderField reports whether s is the label of the timestamp column.
func IsHeaderField(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "datetime", "date":
		return true
	}
	return false
}
