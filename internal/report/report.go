// Package report renders a dashboard as markdown. Tables are padded by
// display width so emoji columns line up in a terminal.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/TobiSchelling/emojidash/internal/aggregate"
)

const title = "# Festival Emoji Dashboard"

// Markdown renders the KPI row, the ranking and grouped views, and the list
// of skipped derivations.
func Markdown(d *aggregate.Dashboard) string {
	sections := []string{
		title + "\n\n" + filterLine(d.Filter),
		summarySection(d.KPI),
	}

	if len(d.EmojiRanking) > 0 {
		sections = append(sections, countSection("Top emoji", "Emoji", d.EmojiRanking))
	}
	if len(d.SentimentSplit) > 0 {
		sections = append(sections, countSection("Sentiment split", "Sentiment", d.SentimentSplit))
	}
	if len(d.EmotionEmojiTree) > 0 {
		sections = append(sections, emotionSection(d.EmotionEmojiTree))
	}
	if len(d.RadarAvgLength) > 0 {
		rows := make([][]string, len(d.RadarAvgLength))
		for i, m := range d.RadarAvgLength {
			rows[i] = []string{m.Sentiment, strconv.FormatFloat(m.MeanLength, 'f', 1, 64)}
		}
		sections = append(sections, "## Average post length\n\n"+table([]string{"Sentiment", "Characters"}, rows))
	}
	if len(d.DailyCounts) > 0 {
		rows := make([][]string, len(d.DailyCounts))
		for i, c := range d.DailyCounts {
			rows[i] = []string{c.Date, strconv.Itoa(c.Count)}
		}
		sections = append(sections, "## Posts per day\n\n"+table([]string{"Date", "Posts"}, rows))
	}
	if len(d.Skipped) > 0 {
		rows := make([][]string, len(d.Skipped))
		for i, s := range d.Skipped {
			rows[i] = []string{s.Derivation, string(s.Reason), s.Message}
		}
		sections = append(sections, "## Skipped\n\n"+table([]string{"View", "Reason", "Detail"}, rows))
	}

	return strings.Join(sections, "\n\n") + "\n"
}

func filterLine(f aggregate.Filter) string {
	festival, sentiment := f.Festival, f.Sentiment
	if festival == "" {
		festival = aggregate.All
	}
	if sentiment == "" {
		sentiment = aggregate.All
	}
	return fmt.Sprintf("Festival: **%s** · Sentiment: **%s** · Top N: **%d**", festival, sentiment, f.TopN)
}

func summarySection(k aggregate.KPI) string {
	rows := [][]string{
		{"Total posts", strconv.Itoa(k.TotalCount)},
		{"Unique emoji", strconv.Itoa(k.UniqueEmojiCount)},
		{"Top emotion", k.TopEmotion},
		{"Top emoji", k.TopEmoji},
		{"Positive", strconv.FormatFloat(k.PositiveRate, 'f', 1, 64) + "%"},
	}
	return "## Summary\n\n" + table([]string{"Metric", "Value"}, rows)
}

func countSection(heading, label string, counts []aggregate.Count) string {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Value, strconv.Itoa(c.Count)}
	}
	return "## " + heading + "\n\n" + table([]string{label, "Count"}, rows)
}

func emotionSection(tree []aggregate.EmotionBranch) string {
	var rows [][]string
	for _, b := range tree {
		for _, e := range b.Emoji {
			rows = append(rows, []string{b.Emotion, e.Value, strconv.Itoa(e.Count)})
		}
	}
	return "## Emotions\n\n" + table([]string{"Emotion", "Emoji", "Count"}, rows)
}

// table renders a pipe table whose columns are padded to the widest cell.
func table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	measure := func(row []string) {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := runewidth.StringWidth(escape(row[i])); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}
	// Separators need at least three dashes.
	for i := range widths {
		widths[i] = max(widths[i], 3)
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, renderRow(header, widths))
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	lines = append(lines, renderRow(sep, widths))
	for _, row := range rows {
		lines = append(lines, renderRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func renderRow(cells []string, widths []int) string {
	var sb strings.Builder
	sb.WriteString("|")
	for i, w := range widths {
		var content string
		if i < len(cells) {
			content = escape(cells[i])
		}
		sb.WriteString(" ")
		sb.WriteString(content)
		if pad := w - runewidth.StringWidth(content); pad > 0 {
			sb.WriteString(strings.Repeat(" ", pad))
		}
		sb.WriteString(" |")
	}
	return sb.String()
}

func escape(cell string) string {
	cell = strings.ReplaceAll(cell, "\n", " ")
	return strings.ReplaceAll(cell, "|", `\|`)
}
