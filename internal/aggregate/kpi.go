package aggregate

import (
	"github.com/TobiSchelling/emojidash/internal/dataset"
)

// NotAvailable is shown for a "top" metric that cannot be computed.
const NotAvailable = "N/A"

// PositiveLabel is the sentiment counted by the positive rate.
const PositiveLabel = "Positive"

// KPI is the summary row.
type KPI struct {
	TotalCount       int     `json:"total_count"`
	UniqueEmojiCount int     `json:"unique_emoji_count"`
	TopEmotion       string  `json:"top_emotion"`
	TopEmoji         string  `json:"top_emoji"`
	PositiveRate     float64 `json:"positive_rate"`
}

// Summarize computes the KPI row. It never fails.
func Summarize(t *dataset.Table) KPI {
	return KPI{
		TotalCount:       t.Len(),
		UniqueEmojiCount: UniqueEmojiCount(t),
		TopEmotion:       TopValue(t, dataset.ColumnEmotion),
		TopEmoji:         TopValue(t, dataset.ColumnEmoji),
		PositiveRate:     PositiveRate(t),
	}
}

// UniqueEmojiCount is the number of distinct non-empty emoji, 0 without the
// column.
func UniqueEmojiCount(t *dataset.Table) int {
	if !t.Has(dataset.ColumnEmoji) {
		return 0
	}
	return countValues(t, dataset.ColumnEmoji).size()
}

// TopValue returns the most frequent value of column, ties going to the value
// seen first. Absent or empty columns give NotAvailable.
func TopValue(t *dataset.Table, column string) string {
	if !t.Has(column) {
		return NotAvailable
	}
	top := countValues(t, column).top(1)
	if len(top) == 0 {
		return NotAvailable
	}
	return top[0].key
}

// PositiveRate is the percentage of rows labelled Positive. It is 0 for an
// empty table or one without a Sentiment column.
func PositiveRate(t *dataset.Table) float64 {
	total := t.Len()
	if total == 0 || !t.Has(dataset.ColumnSentiment) {
		return 0
	}
	positive := 0
	for i := range t.Records {
		if t.Records[i].Sentiment == PositiveLabel {
			positive++
		}
	}
	return 100 * float64(positive) / float64(total)
}

func countValues(t *dataset.Table, column string) *tally[string] {
	counts := newTally[string]()
	for i := range t.Records {
		if v := t.Value(&t.Records[i], column); v != "" {
			counts.add(v)
		}
	}
	return counts
}
