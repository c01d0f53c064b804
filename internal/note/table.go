package note

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidSyntax reports a record template that cannot be parsed back.
var ErrInvalidSyntax = errors.New("invalid record syntax")

// rowBlock is a note section holding one entry per tracked note.
type rowBlock interface {
	extract(content string, o RenderOptions) map[string]Row
	render(rows []Row, o RenderOptions) string
	replace(content, block string, o RenderOptions) string
}

// tableSyntax is a parsed table template: header, separator and row lines.
type tableSyntax struct {
	header    string
	separator string
	row       string
	headerRe  *regexp.Regexp
	sepRe     *regexp.Regexp
	rowRe     *rowPattern
}

func parseTableSyntax(syntax string) (*tableSyntax, error) {
	var lines []string
	for _, l := range strings.Split(syntax, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: need a header, a separator and a row", ErrInvalidSyntax)
	}
	ts := &tableSyntax{
		header:    lines[0],
		separator: lines[1],
		row:       strings.Join(lines[2:], "\n"),
	}

	var cols []string
	for _, part := range strings.Split(ts.header, "|") {
		if p := strings.TrimSpace(part); p != "" {
			cols = append(cols, regexp.QuoteMeta(p))
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: header has no columns", ErrInvalidSyntax)
	}
	ts.headerRe = regexp.MustCompile(`(?i)^\s*\|\s*` + strings.Join(cols, `\s*\|\s*`) + `\s*\|\s*$`)
	ts.sepRe = regexp.MustCompile(fmt.Sprintf(`^\s*\|(?:\s*:?-+:?\s*\|){%d}\s*$`, len(cols)))

	rowRe, err := compileRowPattern(ts.row)
	if err != nil {
		return nil, err
	}
	ts.rowRe = rowRe
	return ts, nil
}

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|")
}

// locate returns the first and last line index of the last matching table
// in lines, or -1, -1 when there is none.
func (ts *tableSyntax) locate(lines []string) (int, int) {
	start, end := -1, -1
	for i := 0; i+1 < len(lines); i++ {
		if !ts.headerRe.MatchString(lines[i]) || !ts.sepRe.MatchString(lines[i+1]) {
			continue
		}
		start = i
		end = i + 1
		for j := i + 2; j < len(lines); j++ {
			if !isTableRow(lines[j]) {
				break
			}
			if j+1 < len(lines) && ts.headerRe.MatchString(lines[j]) && ts.sepRe.MatchString(lines[j+1]) {
				break
			}
			end = j
		}
		i = end
	}
	return start, end
}

// extract reads the rows of the existing table, keyed by note path.
func (ts *tableSyntax) extract(content string, o RenderOptions) map[string]Row {
	lines := strings.Split(content, "\n")
	start, end := ts.locate(lines)
	rows := map[string]Row{}
	if start < 0 {
		return rows
	}
	for _, line := range lines[start+2 : end+1] {
		if r, ok := ts.rowRe.parse(line, o); ok {
			rows[r.Path] = r
		}
	}
	return rows
}

// render builds the table for rows.
func (ts *tableSyntax) render(rows []Row, o RenderOptions) string {
	out := make([]string, 0, len(rows)+2)
	out = append(out, ts.header, ts.separator)
	for _, r := range rows {
		out = append(out, Expand(ts.row, r, o))
	}
	return strings.Join(out, "\n")
}

func (ts *tableSyntax) replace(content, table string, _ RenderOptions) string {
	start, end := ts.locate(strings.Split(content, "\n"))
	return replaceLines(content, start, end, table)
}

// replaceLines swaps lines start..end of content for block, or appends
// block after a blank line when start < 0.
func replaceLines(content string, start, end int, block string) string {
	if start >= 0 {
		lines := strings.Split(content, "\n")
		out := make([]string, 0, len(lines))
		out = append(out, lines[:start]...)
		out = append(out, block)
		out = append(out, lines[end+1:]...)
		return strings.Join(out, "\n")
	}
	switch {
	case content == "":
		return block + "\n"
	case strings.HasSuffix(content, "\n\n"):
		return content + block + "\n"
	case strings.HasSuffix(content, "\n"):
		return content + "\n" + block + "\n"
	default:
		return content + "\n\n" + block + "\n"
	}
}
