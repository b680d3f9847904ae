// Package aggregate derives the dashboard's named views from a canonical
// table and a filter selection. Every derivation is a pure function of the
// filtered table and top-N.
package aggregate

import (
	"slices"

	"github.com/TobiSchelling/emojidash/internal/dataset"
)

// All disables a festival or sentiment filter.
const All = "All"

// Top-N bounds for ranking-style derivations.
const (
	MinTopN     = 5
	MaxTopN     = 50
	DefaultTopN = 10
)

// Filter is the user's control selection.
type Filter struct {
	Festival  string `json:"festival"`
	Sentiment string `json:"sentiment"`
	TopN      int    `json:"top_n"`
}

// DefaultFilter selects everything with the default top-N.
func DefaultFilter() Filter {
	return Filter{Festival: All, Sentiment: All, TopN: DefaultTopN}
}

// Validate checks the top-N bound. Blank selections are treated as All.
func (f Filter) Validate() error {
	if f.TopN < MinTopN || f.TopN > MaxTopN {
		return ErrInvalidTopN
	}
	return nil
}

func selected(v string) bool {
	return v != "" && v != All
}

// Apply returns the rows matching the selection. A filter on a column the
// table lacks never excludes anything.
func (f Filter) Apply(t *dataset.Table) *dataset.Table {
	byFestival := selected(f.Festival) && t.Has(dataset.ColumnFestival)
	bySentiment := selected(f.Sentiment) && t.Has(dataset.ColumnSentiment)
	return t.Select(func(r *dataset.Record) bool {
		if byFestival && r.Festival != f.Festival {
			return false
		}
		if bySentiment && r.Sentiment != f.Sentiment {
			return false
		}
		return true
	})
}

// FilterOptions lists the selector choices for a table.
type FilterOptions struct {
	Festivals  []string `json:"festivals"`
	Sentiments []string `json:"sentiments"`
	MinTopN    int      `json:"min_top_n"`
	MaxTopN    int      `json:"max_top_n"`
}

// Options returns All followed by the sorted distinct values of each
// selector column. Absent columns only offer All.
func Options(t *dataset.Table) FilterOptions {
	opts := FilterOptions{
		Festivals:  []string{All},
		Sentiments: []string{All},
		MinTopN:    MinTopN,
		MaxTopN:    MaxTopN,
	}
	if t.Has(dataset.ColumnFestival) {
		opts.Festivals = append(opts.Festivals, distinct(t, func(r *dataset.Record) string { return r.Festival })...)
	}
	if t.Has(dataset.ColumnSentiment) {
		opts.Sentiments = append(opts.Sentiments, distinct(t, func(r *dataset.Record) string { return r.Sentiment })...)
	}
	return opts
}

func distinct(t *dataset.Table, value func(*dataset.Record) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range t.Records {
		v := value(&t.Records[i])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
