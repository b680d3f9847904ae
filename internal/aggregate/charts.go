package aggregate

import (
	"cmp"
	"unicode/utf8"

	"github.com/TobiSchelling/emojidash/internal/dataset"
)

// Derivation names, as reported in skips and used as JSON keys.
const (
	NameEmojiRanking       = "emoji_ranking"
	NameSentimentSplit     = "sentiment_split"
	NameEmotionEmojiTree   = "emotion_emoji_tree"
	NameDailyCounts        = "daily_counts"
	NameEmojiSentimentBars = "emoji_sentiment_bars"
	NameTweetLengths       = "tweet_length_by_sentiment"
	NameEmojiScatter       = "emoji_over_time_scatter"
	NameRadarAvgLength     = "radar_avg_length_by_sentiment"
	NameSentimentArea      = "area_sentiment_over_time"
	NameSentimentGauge     = "sentiment_gauge"
	NameSankey             = "sankey_edges"
	NameCooccurrence       = "emoji_cooccurrence_matrix"
	NamePopularityByDay    = "emoji_popularity_by_day"
	NameCalendarHeatmap    = "calendar_heatmap"
)

// Count is one value and how many rows carry it.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

func toCounts(entries []entry[string]) []Count {
	out := make([]Count, len(entries))
	for i, e := range entries {
		out[i] = Count{Value: e.key, Count: e.count}
	}
	return out
}

// EmojiRanking returns the topN most frequent emoji.
func EmojiRanking(t *dataset.Table, topN int) ([]Count, error) {
	if !t.Has(dataset.ColumnEmoji) {
		return nil, missing(NameEmojiRanking, dataset.ColumnEmoji)
	}
	out := toCounts(countValues(t, dataset.ColumnEmoji).top(topN))
	if len(out) == 0 {
		return nil, empty(NameEmojiRanking)
	}
	return out, nil
}

// topEmoji returns the keys of the topN ranking, or nil.
func topEmoji(t *dataset.Table, topN int) []string {
	entries := countValues(t, dataset.ColumnEmoji).top(topN)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// SentimentSplit counts rows per sentiment, ordered by sentiment.
func SentimentSplit(t *dataset.Table) ([]Count, error) {
	if !t.Has(dataset.ColumnSentiment) {
		return nil, missing(NameSentimentSplit, dataset.ColumnSentiment)
	}
	out := toCounts(countValues(t, dataset.ColumnSentiment).byKey(cmp.Compare[string]))
	if len(out) == 0 {
		return nil, empty(NameSentimentSplit)
	}
	return out, nil
}

// EmotionBranch is one emotion of the treemap with its emoji leaves.
type EmotionBranch struct {
	Emotion string  `json:"emotion"`
	Count   int     `json:"count"`
	Emoji   []Count `json:"emoji"`
}

// EmotionEmojiTree counts (emotion, emoji) pairs grouped by emotion, both
// levels ordered by label.
func EmotionEmojiTree(t *dataset.Table) ([]EmotionBranch, error) {
	if cols := absent(t, dataset.ColumnEmotion, dataset.ColumnEmoji); len(cols) > 0 {
		return nil, missing(NameEmotionEmojiTree, cols...)
	}
	pairs := newTally[pair]()
	for i := range t.Records {
		r := &t.Records[i]
		if r.Emotion != "" && r.Emoji != "" {
			pairs.add(pair{r.Emotion, r.Emoji})
		}
	}

	var out []EmotionBranch
	for _, e := range pairs.byKey(comparePair) {
		if len(out) == 0 || out[len(out)-1].Emotion != e.key.a {
			out = append(out, EmotionBranch{Emotion: e.key.a})
		}
		branch := &out[len(out)-1]
		branch.Count += e.count
		branch.Emoji = append(branch.Emoji, Count{Value: e.key.b, Count: e.count})
	}
	if len(out) == 0 {
		return nil, empty(NameEmotionEmojiTree)
	}
	return out, nil
}

// EmojiSentimentCount is one bar of the grouped emoji/sentiment chart.
type EmojiSentimentCount struct {
	Emoji     string `json:"emoji"`
	Sentiment string `json:"sentiment"`
	Count     int    `json:"count"`
}

// EmojiSentimentBars returns the 3*topN most frequent (emoji, sentiment)
// pairs.
func EmojiSentimentBars(t *dataset.Table, topN int) ([]EmojiSentimentCount, error) {
	if cols := absent(t, dataset.ColumnEmoji, dataset.ColumnSentiment); len(cols) > 0 {
		return nil, missing(NameEmojiSentimentBars, cols...)
	}
	pairs := newTally[pair]()
	for i := range t.Records {
		r := &t.Records[i]
		if r.Emoji != "" && r.Sentiment != "" {
			pairs.add(pair{r.Emoji, r.Sentiment})
		}
	}
	top := pairs.top(3 * topN)
	if len(top) == 0 {
		return nil, empty(NameEmojiSentimentBars)
	}
	out := make([]EmojiSentimentCount, len(top))
	for i, e := range top {
		out[i] = EmojiSentimentCount{Emoji: e.key.a, Sentiment: e.key.b, Count: e.count}
	}
	return out, nil
}

// TextLength is the character count used by the length charts.
func TextLength(s string) int {
	return utf8.RuneCountInString(s)
}

// SentimentLength is one point of the length distribution.
type SentimentLength struct {
	Sentiment string `json:"sentiment"`
	Length    int    `json:"length"`
}

// TweetLengthBySentiment emits one (sentiment, text length) point per row
// that has a sentiment.
func TweetLengthBySentiment(t *dataset.Table) ([]SentimentLength, error) {
	if cols := absent(t, dataset.ColumnText, dataset.ColumnSentiment); len(cols) > 0 {
		return nil, missing(NameTweetLengths, cols...)
	}
	var out []SentimentLength
	for i := range t.Records {
		r := &t.Records[i]
		if r.Sentiment == "" {
			continue
		}
		out = append(out, SentimentLength{Sentiment: r.Sentiment, Length: TextLength(r.Text)})
	}
	if len(out) == 0 {
		return nil, empty(NameTweetLengths)
	}
	return out, nil
}

// SentimentMean is the mean text length of one sentiment.
type SentimentMean struct {
	Sentiment  string  `json:"sentiment"`
	MeanLength float64 `json:"mean_length"`
}

// AvgLengthBySentiment averages text length per sentiment, ordered by
// sentiment.
func AvgLengthBySentiment(t *dataset.Table) ([]SentimentMean, error) {
	if cols := absent(t, dataset.ColumnText, dataset.ColumnSentiment); len(cols) > 0 {
		return nil, missing(NameRadarAvgLength, cols...)
	}
	rows := newTally[string]()
	totals := make(map[string]int)
	for i := range t.Records {
		r := &t.Records[i]
		if r.Sentiment == "" {
			continue
		}
		rows.add(r.Sentiment)
		totals[r.Sentiment] += TextLength(r.Text)
	}
	groups := rows.byKey(cmp.Compare[string])
	if len(groups) == 0 {
		return nil, empty(NameRadarAvgLength)
	}
	out := make([]SentimentMean, len(groups))
	for i, g := range groups {
		out[i] = SentimentMean{
			Sentiment:  g.key,
			MeanLength: float64(totals[g.key]) / float64(g.count),
		}
	}
	return out, nil
}

// SentimentGauge returns the positive rate for the gauge widget. Unlike the
// KPI value it is skipped when there is nothing to measure.
func SentimentGauge(t *dataset.Table) (float64, error) {
	if !t.Has(dataset.ColumnSentiment) {
		return 0, missing(NameSentimentGauge, dataset.ColumnSentiment)
	}
	if t.Len() == 0 {
		return 0, empty(NameSentimentGauge)
	}
	return PositiveRate(t), nil
}

func absent(t *dataset.Table, columns ...string) []string {
	var out []string
	for _, c := range columns {
		if !t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
