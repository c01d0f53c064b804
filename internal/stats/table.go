package stats

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// column describes one table column. A positive maxWidth truncates longer
// cells with an ellipsis.
type column struct {
	title    string
	right    bool
	maxWidth int
}

// formatTable lays out rows under cols, separated by single spaces, with a
// dashed rule under the titles. Width is measured in terminal cells.
func formatTable(cols []column, rows [][]string) []string {
	if len(cols) == 0 {
		return nil
	}
	widths := make([]int, len(cols))
	cells := make([][]string, len(rows))
	for i, col := range cols {
		widths[i] = runewidth.StringWidth(col.title)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(cols))
		for i, col := range cols {
			if i >= len(row) {
				continue
			}
			cell := row[i]
			if col.maxWidth > 0 && runewidth.StringWidth(cell) > col.maxWidth {
				cell = runewidth.Truncate(cell, col.maxWidth, "…")
			}
			cells[r][i] = cell
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	titles := make([]string, len(cols))
	rule := make([]string, len(cols))
	for i, col := range cols {
		titles[i] = col.title
		rule[i] = strings.Repeat("-", widths[i])
	}
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, joinCells(cols, titles, widths), joinCells(cols, rule, widths))
	for _, row := range cells {
		lines = append(lines, joinCells(cols, row, widths))
	}
	return lines
}

func joinCells(cols []column, cells []string, widths []int) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		pad := strings.Repeat(" ", widths[i]-runewidth.StringWidth(cells[i]))
		if col.right {
			parts[i] = pad + cells[i]
		} else {
			parts[i] = cells[i] + pad
		}
	}
	return strings.TrimRight(strings.Join(parts, " "), " ")
}
