package aggregate

import (
	"errors"

	"github.com/TobiSchelling/emojidash/internal/dataset"
)

// Skipped records a derivation that was left out of the dashboard.
type Skipped struct {
	Derivation string     `json:"derivation"`
	Reason     SkipReason `json:"reason"`
	Message    string     `json:"message"`
}

// Dashboard holds every derivation for one filter selection. A nil field
// means the derivation was skipped; Skipped says why.
type Dashboard struct {
	Filter             Filter                `json:"filter"`
	KPI                KPI                   `json:"kpi"`
	EmojiRanking       []Count               `json:"emoji_ranking,omitempty"`
	SentimentSplit     []Count               `json:"sentiment_split,omitempty"`
	EmotionEmojiTree   []EmotionBranch       `json:"emotion_emoji_tree,omitempty"`
	DailyCounts        []DateCount           `json:"daily_counts,omitempty"`
	EmojiSentimentBars []EmojiSentimentCount `json:"emoji_sentiment_bars,omitempty"`
	TweetLengths       []SentimentLength     `json:"tweet_length_by_sentiment,omitempty"`
	EmojiScatter       []ScatterPoint        `json:"emoji_over_time_scatter,omitempty"`
	RadarAvgLength     []SentimentMean       `json:"radar_avg_length_by_sentiment,omitempty"`
	SentimentArea      []DateSentimentCount  `json:"area_sentiment_over_time,omitempty"`
	SentimentGauge     *float64              `json:"sentiment_gauge,omitempty"`
	Sankey             *Sankey               `json:"sankey_edges,omitempty"`
	Cooccurrence       *CorrMatrix           `json:"emoji_cooccurrence_matrix,omitempty"`
	PopularityByDay    []DateEmojiCount      `json:"emoji_popularity_by_day,omitempty"`
	CalendarHeatmap    []CalendarDay         `json:"calendar_heatmap,omitempty"`
	Skipped            []Skipped             `json:"skipped,omitempty"`
}

// Skip returns the skip entry for a derivation, if any.
func (d *Dashboard) Skip(derivation string) (Skipped, bool) {
	for _, s := range d.Skipped {
		if s.Derivation == derivation {
			return s, true
		}
	}
	return Skipped{}, false
}

// Build filters t and computes every derivation. Only an invalid filter is
// an error; missing columns and empty results are recorded in Skipped.
func Build(t *dataset.Table, f Filter) (*Dashboard, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ft := f.Apply(t)
	n := f.TopN

	d := &Dashboard{Filter: f, KPI: Summarize(ft)}
	d.EmojiRanking = derive(d, func() ([]Count, error) { return EmojiRanking(ft, n) })
	d.SentimentSplit = derive(d, func() ([]Count, error) { return SentimentSplit(ft) })
	d.EmotionEmojiTree = derive(d, func() ([]EmotionBranch, error) { return EmotionEmojiTree(ft) })
	d.DailyCounts = derive(d, func() ([]DateCount, error) { return DailyCounts(ft) })
	d.EmojiSentimentBars = derive(d, func() ([]EmojiSentimentCount, error) { return EmojiSentimentBars(ft, n) })
	d.TweetLengths = derive(d, func() ([]SentimentLength, error) { return TweetLengthBySentiment(ft) })
	d.EmojiScatter = derive(d, func() ([]ScatterPoint, error) { return EmojiOverTime(ft) })
	d.RadarAvgLength = derive(d, func() ([]SentimentMean, error) { return AvgLengthBySentiment(ft) })
	d.SentimentArea = derive(d, func() ([]DateSentimentCount, error) { return SentimentOverTime(ft) })
	d.SentimentGauge = derive(d, func() (*float64, error) {
		rate, err := SentimentGauge(ft)
		if err != nil {
			return nil, err
		}
		return &rate, nil
	})
	d.Sankey = derive(d, func() (*Sankey, error) { return SankeyFlow(ft, n) })
	d.Cooccurrence = derive(d, func() (*CorrMatrix, error) { return EmojiCooccurrence(ft, n) })
	d.PopularityByDay = derive(d, func() ([]DateEmojiCount, error) { return EmojiPopularityByDay(ft, n) })
	d.CalendarHeatmap = derive(d, func() ([]CalendarDay, error) { return CalendarHeatmap(ft) })
	return d, nil
}

func derive[T any](d *Dashboard, fn func() (T, error)) T {
	v, err := fn()
	if err == nil {
		return v
	}
	var skip *SkipError
	if errors.As(err, &skip) {
		d.Skipped = append(d.Skipped, Skipped{
			Derivation: skip.Derivation,
			Reason:     skip.Reason(),
			Message:    skip.Error(),
		})
	}
	var zero T
	return zero
}
