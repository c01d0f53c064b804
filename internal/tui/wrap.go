package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

type styledRune struct {
	s       string
	width   int
	isSpace bool
	newline bool
	cursor  bool
}

// buildStyledRunes styles text for display. A cursor past the last rune is
// drawn as an extra blank cell; cursorIndex < 0 hides the cursor.
func buildStyledRunes(text []rune, cursorIndex int, base lipgloss.Style) []styledRune {
	out := make([]styledRune, 0, len(text)+1)
	for i, r := range text {
		atCursor := i == cursorIndex
		if r == '\n' {
			if atCursor {
				out = append(out, styledRune{s: cursorStyle.Render(" "), width: 1, cursor: true})
			}
			out = append(out, styledRune{newline: true})
			continue
		}
		displayed := r
		if r == '\t' {
			displayed = ' '
		}
		style := base
		if atCursor {
			style = cursorStyle
		}
		out = append(out, styledRune{
			s:       style.Render(string(displayed)),
			width:   runewidth.RuneWidth(displayed),
			isSpace: displayed == ' ',
			cursor:  atCursor,
		})
	}
	if cursorIndex >= len(text) {
		out = append(out, styledRune{s: cursorStyle.Render(" "), width: 1, isSpace: true, cursor: true})
	}
	return out
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks runes into display lines no wider than width. Lines
// break at newlines, then at the last space that fits, then mid-word.
func wrapStyledRunes(runes []styledRune, width int) [][]styledRune {
	lines := [][]styledRune{}
	line := make([]styledRune, 0, 64)
	lineWidth := 0
	lastSpaceIdx := -1

	flush := func(l []styledRune) {
		lines = append(lines, append([]styledRune(nil), l...))
	}

	for i := 0; i < len(runes); {
		item := runes[i]
		if item.newline {
			flush(line)
			line = line[:0]
			lineWidth = 0
			lastSpaceIdx = -1
			i++
			continue
		}
		if width > 0 && lineWidth+item.width > width && len(line) > 0 {
			if lastSpaceIdx >= 0 {
				// The space stays on the upper line so the cursor on it
				// remains visible.
				flush(line[:lastSpaceIdx+1])
				line = append([]styledRune{}, line[lastSpaceIdx+1:]...)
				lineWidth = lineWidthOf(line)
				lastSpaceIdx = lastSpaceIndex(line)
			} else {
				flush(line)
				line = line[:0]
				lineWidth = 0
				lastSpaceIdx = -1
			}
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpaceIdx = len(line) - 1
		}
		i++
	}
	flush(line)
	return lines
}

func cursorLine(lines [][]styledRune) int {
	for i, line := range lines {
		for _, item := range line {
			if item.cursor {
				return i
			}
		}
	}
	return len(lines) - 1
}

func renderLines(lines [][]styledRune) string {
	parts := make([]string, len(lines))
	for i, line := range lines {
		parts[i] = renderStyledRunes(line)
	}
	return strings.Join(parts, "\n")
}

func lineWidthOf(line []styledRune) int {
	total := 0
	for _, item := range line {
		total += item.width
	}
	return total
}

func lastSpaceIndex(line []styledRune) int {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i].isSpace {
			return i
		}
	}
	return -1
}
