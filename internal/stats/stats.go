// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/timer"
)

const (
	sparkChars          = " .:-=+*#%@"
	terminalWidthBackup = 80
	sparkLabelWidth     = 14
)

// Summary totals a set of records.
type Summary struct {
	Records      int
	Notes        int
	EditedTimes  int
	EditedWords  int
	AddedWords   int
	DeletedWords int
	EditTime     time.Duration
	ReadTime     time.Duration
}

// Summarize totals records.
func Summarize(records []model.Record) Summary {
	var s Summary
	notes := map[string]struct{}{}
	for _, r := range records {
		s.Records++
		notes[r.Path] = struct{}{}
		s.EditedTimes += r.EditedTimes
		s.EditedWords += r.EditedWords
		s.AddedWords += r.AddedWords
		s.DeletedWords += r.DeletedWords
		s.EditTime += r.EditTime
		s.ReadTime += r.ReadTime
	}
	s.Notes = len(notes)
	return s
}

// WordsPerHour is the edited words per hour of edit time.
func (s Summary) WordsPerHour() float64 {
	if s.EditTime <= 0 {
		return 0
	}
	return float64(s.EditedWords) / s.EditTime.Hours()
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints a summary block for records.
func RenderSummary(w io.Writer, s Summary) error {
	if s.Records == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Records: %d", s.Records),
		fmt.Sprintf("Notes: %d", s.Notes),
		fmt.Sprintf("Edits: %d", s.EditedTimes),
		fmt.Sprintf("Edited words: %d (+%d / -%d)", s.EditedWords, s.AddedWords, s.DeletedWords),
		fmt.Sprintf("Edit time: %s", timer.FormatDuration(s.EditTime, false)),
		fmt.Sprintf("Read time: %s", timer.FormatDuration(s.ReadTime, false)),
		fmt.Sprintf("Words per hour: %.1f", s.WordsPerHour()),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderNoteTable prints per-note totals.
func RenderNoteTable(w io.Writer, aggs []model.NoteAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Per-Note"); err != nil {
		return err
	}
	cols := []column{
		{title: "Note", maxWidth: 40},
		{title: "Records", right: true},
		{title: "Edits", right: true},
		{title: "Edited", right: true},
		{title: "Added", right: true},
		{title: "Deleted", right: true},
		{title: "Edit time", right: true},
		{title: "Read time", right: true},
		{title: "Last modified"},
	}
	rows := make([][]string, 0, len(aggs))
	for _, agg := range aggs {
		modified := ""
		if !agg.LastModified.IsZero() {
			modified = agg.LastModified.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			agg.Path,
			fmt.Sprintf("%d", agg.Records),
			fmt.Sprintf("%d", agg.EditedTimes),
			fmt.Sprintf("%d", agg.EditedWords),
			fmt.Sprintf("%d", agg.AddedWords),
			fmt.Sprintf("%d", agg.DeletedWords),
			timer.FormatDuration(agg.EditTime, false),
			timer.FormatDuration(agg.ReadTime, false),
			modified,
		})
	}
	for _, line := range formatTable(cols, rows) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderDaily prints sparklines of edited words and edit minutes per day,
// each followed by its moving average. Only the most recent days that fit
// in width are drawn.
func RenderDaily(w io.Writer, days []model.DailyAggregate, window, width int) error {
	if len(days) == 0 {
		return nil
	}
	if width <= 0 {
		width = terminalWidth()
	}
	span := width - sparkLabelWidth
	if span < 1 {
		span = 1
	}
	if len(days) > span {
		days = days[len(days)-span:]
	}

	words := make([]float64, len(days))
	minutes := make([]float64, len(days))
	for i, d := range days {
		words[i] = float64(d.EditedWords)
		minutes[i] = d.EditTime.Minutes()
	}

	first := days[0].Day.Format(time.DateOnly)
	last := days[len(days)-1].Day.Format(time.DateOnly)
	lines := []string{
		fmt.Sprintf("Daily (%s .. %s, %d days)", first, last, len(days)),
		label("Words") + Sparkline(words),
		label(fmt.Sprintf("Words avg%d", window)) + Sparkline(MovingAverage(words, window)),
		label("Edit min") + Sparkline(minutes),
		label(fmt.Sprintf("Edit avg%d", window)) + Sparkline(MovingAverage(minutes, window)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func label(s string) string {
	return runewidth.FillRight(s, sparkLabelWidth-1) + " "
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}
