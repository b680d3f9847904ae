// Package normalize turns an uploaded sheet into the canonical post table,
// filling the identifier, author, timestamp, text and emoji columns when the
// upload lacks them.
package normalize

import (
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/emojidash/internal/dataset"
)

const (
	// PlaceholderText fills Tweet_Text when no text column exists.
	PlaceholderText = "No text available"
	// PlaceholderEmoji fills Emoji when the column is absent.
	PlaceholderEmoji = "🙂"

	minSyntheticID   = 1_000_000
	syntheticIDRange = 9_000_000 // IDs land in [1,000,000, 9,999,999]
	windowDays       = 30
	maxOffsetHours   = 23
)

// Authors is the label set synthesized authors are drawn from.
var Authors = []string{
	"Ananya_Rao", "Rohan_M", "Priya_Singh", "Arjun_K",
	"Vikram_P", "Meera_N", "Suresh_Eats",
}

// Rand is the random source used for synthesized columns. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Normalizer fills canonical columns on raw tables.
type Normalizer struct {
	rng Rand
	now func() time.Time
	loc *time.Location
	log *zap.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides time.Now for the synthesized timestamp window.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLocation sets the zone naive Date cells are read in and synthesized
// timestamps are placed in.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) { n.loc = loc }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(n *Normalizer) { n.log = log }
}

// New creates a Normalizer drawing synthesized values from rng.
func New(rng Rand, opts ...Option) *Normalizer {
	n := &Normalizer{
		rng: rng,
		now: time.Now,
		loc: time.Local,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the canonical table. Every column is filled
// independently and only when absent; everything else passes through. The
// only failure is an unparseable Date cell, reported as a *dataset.LoadError.
func (n *Normalizer) Normalize(raw *dataset.RawTable) (*dataset.Table, error) {
	rows := len(raw.Rows)
	t := &dataset.Table{
		Columns: slices.Clone(raw.Columns),
		Records: make([]dataset.Record, rows),
	}
	for i, row := range raw.Rows {
		t.Records[i] = recordFromRow(raw.Columns, row)
	}

	if !raw.Has(dataset.ColumnID) {
		for i := range t.Records {
			t.Records[i].ID = strconv.Itoa(minSyntheticID + n.rng.IntN(syntheticIDRange))
		}
		n.fill(t, dataset.ColumnID)
	}

	if !raw.Has(dataset.ColumnAuthor) {
		for i := range t.Records {
			t.Records[i].Author = Authors[n.rng.IntN(len(Authors))]
		}
		n.fill(t, dataset.ColumnAuthor)
	}

	if cells, ok := raw.Column(dataset.ColumnDate); ok {
		for i, cell := range cells {
			ts, err := parseDate(cell, n.loc)
			if err != nil {
				return nil, &dataset.LoadError{
					Source: dataset.ColumnDate + " row " + strconv.Itoa(i+2),
					Err:    err,
				}
			}
			t.Records[i].Timestamp = ts
		}
	} else {
		start := n.now().In(n.loc).AddDate(0, 0, -windowDays)
		for i := range t.Records {
			days := n.rng.IntN(windowDays)
			hours := n.rng.IntN(maxOffsetHours)
			t.Records[i].Timestamp = start.AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour)
		}
		n.fill(t, dataset.ColumnDate)
	}

	switch {
	case raw.Has(dataset.ColumnText):
	case raw.Has(dataset.ColumnTweet):
		for i := range t.Records {
			t.Records[i].Text = t.Records[i].Fields[dataset.ColumnTweet]
		}
		n.fill(t, dataset.ColumnText)
	default:
		for i := range t.Records {
			t.Records[i].Text = PlaceholderText
		}
		n.fill(t, dataset.ColumnText)
	}

	if !raw.Has(dataset.ColumnEmoji) {
		for i := range t.Records {
			t.Records[i].Emoji = PlaceholderEmoji
		}
		n.fill(t, dataset.ColumnEmoji)
	}

	n.log.Debug("normalized table",
		zap.Int("rows", rows),
		zap.Strings("filled", t.Filled))
	return t, nil
}

func (n *Normalizer) fill(t *dataset.Table, column string) {
	t.Columns = append(t.Columns, column)
	t.Filled = append(t.Filled, column)
}

func recordFromRow(columns, row []string) dataset.Record {
	var rec dataset.Record
	for j, col := range columns {
		var cell string
		if j < len(row) {
			cell = row[j]
		}
		switch col {
		case dataset.ColumnID:
			rec.ID = cell
		case dataset.ColumnAuthor:
			rec.Author = cell
		case dataset.ColumnDate:
			// parsed separately
		case dataset.ColumnText:
			rec.Text = cell
		case dataset.ColumnEmoji:
			rec.Emoji = cell
		case dataset.ColumnFestival:
			rec.Festival = cell
		case dataset.ColumnSentiment:
			rec.Sentiment = cell
		case dataset.ColumnEmotion:
			rec.Emotion = cell
		default:
			if rec.Fields == nil {
				rec.Fields = make(map[string]string)
			}
			rec.Fields[col] = cell
		}
	}
	return rec
}
