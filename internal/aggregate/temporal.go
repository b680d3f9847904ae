package aggregate

import (
	"cmp"
	"time"

	"github.com/TobiSchelling/emojidash/internal/dataset"
)

// DateLayout renders calendar dates; lexical order is chronological.
const DateLayout = "2006-01-02"

func dateKey(r *dataset.Record) string {
	return r.Timestamp.Format(DateLayout)
}

// DateCount is the row count of one calendar date.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func dailyTally(t *dataset.Table) *tally[string] {
	days := newTally[string]()
	for i := range t.Records {
		if r := &t.Records[i]; r.HasTimestamp() {
			days.add(dateKey(r))
		}
	}
	return days
}

// DailyCounts counts rows per date, oldest first.
func DailyCounts(t *dataset.Table) ([]DateCount, error) {
	if !t.Has(dataset.ColumnDate) {
		return nil, missing(NameDailyCounts, dataset.ColumnDate)
	}
	days := dailyTally(t).byKey(cmp.Compare[string])
	if len(days) == 0 {
		return nil, empty(NameDailyCounts)
	}
	out := make([]DateCount, len(days))
	for i, d := range days {
		out[i] = DateCount{Date: d.key, Count: d.count}
	}
	return out, nil
}

// ScatterPoint is one row placed on the date/emoji plane.
type ScatterPoint struct {
	Date      string `json:"date"`
	Emoji     string `json:"emoji"`
	Sentiment string `json:"sentiment,omitempty"`
}

// EmojiOverTime emits one point per dated row with an emoji. Sentiment is
// carried when the table has it.
func EmojiOverTime(t *dataset.Table) ([]ScatterPoint, error) {
	if cols := absent(t, dataset.ColumnDate, dataset.ColumnEmoji); len(cols) > 0 {
		return nil, missing(NameEmojiScatter, cols...)
	}
	var out []ScatterPoint
	for i := range t.Records {
		r := &t.Records[i]
		if !r.HasTimestamp() || r.Emoji == "" {
			continue
		}
		out = append(out, ScatterPoint{Date: dateKey(r), Emoji: r.Emoji, Sentiment: r.Sentiment})
	}
	if len(out) == 0 {
		return nil, empty(NameEmojiScatter)
	}
	return out, nil
}

// DateSentimentCount is one cell of the stacked area chart.
type DateSentimentCount struct {
	Date      string `json:"date"`
	Sentiment string `json:"sentiment"`
	Count     int    `json:"count"`
}

// SentimentOverTime counts rows per (date, sentiment).
func SentimentOverTime(t *dataset.Table) ([]DateSentimentCount, error) {
	if cols := absent(t, dataset.ColumnDate, dataset.ColumnSentiment); len(cols) > 0 {
		return nil, missing(NameSentimentArea, cols...)
	}
	cells := newTally[pair]()
	for i := range t.Records {
		r := &t.Records[i]
		if r.HasTimestamp() && r.Sentiment != "" {
			cells.add(pair{dateKey(r), r.Sentiment})
		}
	}
	sorted := cells.byKey(comparePair)
	if len(sorted) == 0 {
		return nil, empty(NameSentimentArea)
	}
	out := make([]DateSentimentCount, len(sorted))
	for i, c := range sorted {
		out[i] = DateSentimentCount{Date: c.key.a, Sentiment: c.key.b, Count: c.count}
	}
	return out, nil
}

// DateEmojiCount is one bubble of the animated popularity chart.
type DateEmojiCount struct {
	Date  string `json:"date"`
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// EmojiPopularityByDay counts (date, emoji) for the topN emoji of the whole
// table, ordered by date so each date is one animation frame.
func EmojiPopularityByDay(t *dataset.Table, topN int) ([]DateEmojiCount, error) {
	if cols := absent(t, dataset.ColumnDate, dataset.ColumnEmoji); len(cols) > 0 {
		return nil, missing(NamePopularityByDay, cols...)
	}
	keep := make(map[string]bool)
	for _, e := range topEmoji(t, topN) {
		keep[e] = true
	}
	cells := newTally[pair]()
	for i := range t.Records {
		r := &t.Records[i]
		if r.HasTimestamp() && keep[r.Emoji] {
			cells.add(pair{dateKey(r), r.Emoji})
		}
	}
	sorted := cells.byKey(comparePair)
	if len(sorted) == 0 {
		return nil, empty(NamePopularityByDay)
	}
	out := make([]DateEmojiCount, len(sorted))
	for i, c := range sorted {
		out[i] = DateEmojiCount{Date: c.key.a, Emoji: c.key.b, Count: c.count}
	}
	return out, nil
}

// CalendarDay is one cell of the calendar heatmap.
type CalendarDay struct {
	Date    string `json:"date"`
	Count   int    `json:"count"`
	Weekday int    `json:"weekday"` // Monday=0 .. Sunday=6
	ISOYear int    `json:"iso_year"`
	ISOWeek int    `json:"iso_week"`
}

// CalendarHeatmap counts rows per date with weekday and ISO week.
func CalendarHeatmap(t *dataset.Table) ([]CalendarDay, error) {
	if !t.Has(dataset.ColumnDate) {
		return nil, missing(NameCalendarHeatmap, dataset.ColumnDate)
	}
	days := newTally[string]()
	dates := make(map[string]time.Time)
	for i := range t.Records {
		r := &t.Records[i]
		if !r.HasTimestamp() {
			continue
		}
		key := dateKey(r)
		days.add(key)
		dates[key] = r.Date()
	}
	sorted := days.byKey(cmp.Compare[string])
	if len(sorted) == 0 {
		return nil, empty(NameCalendarHeatmap)
	}
	out := make([]CalendarDay, len(sorted))
	for i, d := range sorted {
		day := dates[d.key]
		year, week := day.ISOWeek()
		out[i] = CalendarDay{
			Date:    d.key,
			Count:   d.count,
			Weekday: mondayFirst(day.Weekday()),
			ISOYear: year,
			ISOWeek: week,
		}
	}
	return out, nil
}

func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}
