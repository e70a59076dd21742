package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Column is a header path as delivered by a provider. Level 0 is the field
// name ("Close"); deeper levels (e.g. the ticker) are dropped on flattening.
type Column []string

// Name returns the level 0 label of the column.
func (c Column) Name() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Observation is a single timestamped row. Values line up with Batch.Columns;
// a null value means the provider had no data for that field.
type Observation struct {
	Time   time.Time
	Values []decimal.NullDecimal
}

// Batch is a set of observations returned by one provider call.
type Batch struct {
	Ticker  Ticker
	Columns []Column
	Rows    []Observation
	// Naive is set when the provider timestamps carry no zone information.
	// Their wall clock must then be read as UTC.
	Naive bool
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// IsEmpty reports whether the batch has no rows.
func (b *Batch) IsEmpty() bool {
	return b.Len() == 0
}

// FlatColumns returns single-level column names (level 0 of each column path).
func (b *Batch) FlatColumns() []string {
	names := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		names[i] = c.Name()
	}
	return names
}

// Flatten replaces multi-level columns with their level 0 label.
func (b *Batch) Flatten() {
	for i, c := range b.Columns {
		b.Columns[i] = Column{c.Name()}
	}
}

// InLocation returns a copy of the batch with every timestamp expressed in loc.
// Naive batches are first re-read as UTC wall clock times.
func (b *Batch) InLocation(loc *time.Location) *Batch {
	out := &Batch{Ticker: b.Ticker, Columns: b.Columns, Rows: make([]Observation, len(b.Rows))}
	for i, row := range b.Rows {
		t := row.Time
		if b.Naive {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		}
		out.Rows[i] = Observation{Time: t.In(loc), Values: row.Values}
	}
	return out
}

// After returns a copy holding only rows strictly later than t.
// The comparison is between instants, so the zones of t and the rows may differ.
func (b *Batch) After(t time.Time) *Batch {
	out := &Batch{Ticker: b.Ticker, Columns: b.Columns, Naive: b.Naive}
	for _, row := range b.Rows {
		if row.Time.After(t) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Normalize sorts rows ascending by time and drops repeated timestamps,
// keeping the first occurrence.
func (b *Batch) Normalize() {
	sort.SliceStable(b.Rows, func(i, j int) bool { return b.Rows[i].Time.Before(b.Rows[j].Time) })
	if len(b.Rows) < 2 {
		return
	}
	kept := b.Rows[:1]
	for _, row := range b.Rows[1:] {
		if row.Time.Equal(kept[len(kept)-1].Time) {
			continue
		}
		kept = append(kept, row)
	}
	b.Rows = kept
}

// Last returns the latest observation time, or the zero time for an empty batch.
func (b *Batch) Last() time.Time {
	if b.IsEmpty() {
		return time.Time{}
	}
	return b.Rows[len(b.Rows)-1].Time
}

// FetchRequest describes what to ask a provider for.
// Exactly one of Period or Start is meaningful: a positive Period requests the
// provider's maximum lookback, otherwise rows are requested from Start onward.
type FetchRequest struct {
	Interval string
	Period   time.Duration
	Start    time.Time
	End      time.Time
}

// IsMaxWindow reports whether the request asks for the full retention window.
func (r FetchRequest) IsMaxWindow() bool {
	return r.Period > 0
}
