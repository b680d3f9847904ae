package aggregate

import (
	"math"
	"strconv"

	"github.com/TobiSchelling/emojidash/internal/dataset"
)

// SankeyLink is a weighted edge between two node labels.
type SankeyLink struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	SourceIndex int    `json:"source_index"`
	TargetIndex int    `json:"target_index"`
	Value       int    `json:"value"`
}

// Sankey is the Festival -> Sentiment -> Emoji flow.
type Sankey struct {
	Nodes []string     `json:"nodes"`
	Links []SankeyLink `json:"links"`
}

// SankeyFlow builds the three-tier flow over the rows whose emoji is among
// the topN. Nodes are festivals, then sentiments, then emoji, each label
// kept once at its first position.
func SankeyFlow(t *dataset.Table, topN int) (*Sankey, error) {
	if cols := absent(t, dataset.ColumnFestival, dataset.ColumnSentiment, dataset.ColumnEmoji); len(cols) > 0 {
		return nil, missing(NameSankey, cols...)
	}

	top := topEmoji(t, topN)
	keep := make(map[string]bool, len(top))
	for _, e := range top {
		keep[e] = true
	}
	rows := t.Select(func(r *dataset.Record) bool { return keep[r.Emoji] })

	s := &Sankey{}
	index := make(map[string]int)
	addNode := func(label string) {
		if _, ok := index[label]; !ok {
			index[label] = len(s.Nodes)
			s.Nodes = append(s.Nodes, label)
		}
	}
	for _, f := range encountered(rows, func(r *dataset.Record) string { return r.Festival }) {
		addNode(f)
	}
	for _, v := range encountered(rows, func(r *dataset.Record) string { return r.Sentiment }) {
		addNode(v)
	}
	for _, e := range top {
		addNode(e)
	}

	festivalSentiment := newTally[pair]()
	sentimentEmoji := newTally[pair]()
	for i := range rows.Records {
		r := &rows.Records[i]
		if r.Sentiment == "" {
			continue
		}
		if r.Festival != "" {
			festivalSentiment.add(pair{r.Festival, r.Sentiment})
		}
		sentimentEmoji.add(pair{r.Sentiment, r.Emoji})
	}
	for _, tier := range []*tally[pair]{festivalSentiment, sentimentEmoji} {
		for _, e := range tier.byKey(comparePair) {
			s.Links = append(s.Links, SankeyLink{
				Source:      e.key.a,
				Target:      e.key.b,
				SourceIndex: index[e.key.a],
				TargetIndex: index[e.key.b],
				Value:       e.count,
			})
		}
	}

	if len(s.Links) == 0 {
		return nil, empty(NameSankey)
	}
	return s, nil
}

// encountered returns distinct non-empty values in row order.
func encountered(t *dataset.Table, value func(*dataset.Record) string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range t.Records {
		v := value(&t.Records[i])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Corr is a correlation coefficient. NaN marks an undefined coefficient and
// encodes as JSON null.
type Corr float64

// MarshalJSON implements json.Marshaler.
func (c Corr) MarshalJSON() ([]byte, error) {
	f := float64(c)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// CorrMatrix is a symmetric Pearson correlation matrix.
type CorrMatrix struct {
	Labels []string `json:"labels"`
	Values [][]Corr `json:"values"`
}

// EmojiCooccurrence one-hot encodes the topN emoji per row and correlates
// the indicator columns. Rows carry a single emoji, so distinct emoji always
// correlate negatively.
func EmojiCooccurrence(t *dataset.Table, topN int) (*CorrMatrix, error) {
	if !t.Has(dataset.ColumnEmoji) {
		return nil, missing(NameCooccurrence, dataset.ColumnEmoji)
	}
	labels := topEmoji(t, topN)
	if len(labels) == 0 {
		return nil, empty(NameCooccurrence)
	}

	indicators := make([][]float64, len(labels))
	for j, e := range labels {
		col := make([]float64, t.Len())
		for i := range t.Records {
			if t.Records[i].Emoji == e {
				col[i] = 1
			}
		}
		indicators[j] = col
	}

	m := &CorrMatrix{Labels: labels, Values: make([][]Corr, len(labels))}
	for a := range labels {
		m.Values[a] = make([]Corr, len(labels))
	}
	for a := range labels {
		for b := a; b < len(labels); b++ {
			r := pearson(indicators[a], indicators[b])
			if a == b && !math.IsNaN(r) {
				r = 1
			}
			m.Values[a][b] = Corr(r)
			m.Values[b][a] = Corr(r)
		}
	}
	return m, nil
}

// pearson returns NaN when either series has no variance.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n < 2 {
		return math.NaN()
	}
	var sx, sy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
	}
	mx, my := sx/n, sy/n

	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}
