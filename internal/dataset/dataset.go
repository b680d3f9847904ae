// Package dataset defines the raw and canonical post tables shared by the
// normalizer, the aggregator and the HTTP surface.
package dataset

import (
	"slices"
	"time"
)

// Column labels recognized in uploaded workbooks. Matching is case-sensitive.
const (
	ColumnID        = "Tweet_ID"
	ColumnAuthor    = "Author_ID"
	ColumnDate      = "Date"
	ColumnText      = "Tweet_Text"
	ColumnTweet     = "Tweet"
	ColumnEmoji     = "Emoji"
	ColumnFestival  = "Festival"
	ColumnSentiment = "Sentiment"
	ColumnEmotion   = "Emotion"
)

// TimestampLayout is used whenever a timestamp is written back out as text.
const TimestampLayout = "2006-01-02 15:04:05"

// RawTable is an uploaded sheet: a header row and string cells.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of a column, or -1.
func (r *RawTable) Index(name string) int {
	return slices.Index(r.Columns, name)
}

// Has reports whether the column exists.
func (r *RawTable) Has(name string) bool {
	return r.Index(name) >= 0
}

// Column returns a copy of every cell in the named column.
func (r *RawTable) Column(name string) ([]string, bool) {
	idx := r.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, true
}

// Record is one canonical post. An empty string (or zero Timestamp) is a
// null cell and is ignored by every grouping.
type Record struct {
	ID        string            `json:"id"`
	Author    string            `json:"author"`
	Timestamp time.Time         `json:"timestamp"`
	Text      string            `json:"text"`
	Emoji     string            `json:"emoji"`
	Festival  string            `json:"festival,omitempty"`
	Sentiment string            `json:"sentiment,omitempty"`
	Emotion   string            `json:"emotion,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Date truncates the timestamp to its calendar date.
func (r *Record) Date() time.Time {
	y, m, d := r.Timestamp.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.Timestamp.Location())
}

// HasTimestamp reports whether the timestamp cell was populated.
func (r *Record) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// Table is the canonical in-memory dataset. It is never mutated after
// normalization; filters produce new tables.
type Table struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
	// Filled lists the columns the normalizer synthesized or aliased.
	Filled []string `json:"filled,omitempty"`
}

// Has reports whether the table carries the column.
func (t *Table) Has(name string) bool {
	return slices.Contains(t.Columns, name)
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.Records)
}

// Value returns the cell of rec under the given column label.
func (t *Table) Value(rec *Record, column string) string {
	switch column {
	case ColumnID:
		return rec.ID
	case ColumnAuthor:
		return rec.Author
	case ColumnDate:
		if !rec.HasTimestamp() {
			return ""
		}
		return rec.Timestamp.Format(TimestampLayout)
	case ColumnText:
		return rec.Text
	case ColumnEmoji:
		return rec.Emoji
	case ColumnFestival:
		return rec.Festival
	case ColumnSentiment:
		return rec.Sentiment
	case ColumnEmotion:
		return rec.Emotion
	}
	return rec.Fields[column]
}

// Raw writes the table back out as string cells.
func (t *Table) Raw() *RawTable {
	raw := &RawTable{
		Columns: slices.Clone(t.Columns),
		Rows:    make([][]string, len(t.Records)),
	}
	for i := range t.Records {
		row := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			row[j] = t.Value(&t.Records[i], col)
		}
		raw.Rows[i] = row
	}
	return raw
}

// Select returns a new table with the records for which keep returns true.
// Records are copied by value; Fields maps are shared and must be treated as
// read-only.
func (t *Table) Select(keep func(*Record) bool) *Table {
	out := &Table{
		Columns: slices.Clone(t.Columns),
		Filled:  slices.Clone(t.Filled),
		Records: make([]Record, 0, len(t.Records)),
	}
	for i := range t.Records {
		if keep(&t.Records[i]) {
			out.Records = append(out.Records, t.Records[i])
		}
	}
	return out
}

// Clone returns a copy of the table.
func (t *Table) Clone() *Table {
	return t.Select(func(*Record) bool { return true })
}
