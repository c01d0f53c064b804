package note

import (
	"fmt"
	"strings"
)

// listSyntax is a parsed bullet-list template. Each tracked note renders as
// one group of lines, one line per template line.
type listSyntax struct {
	lines    []string
	patterns []*rowPattern
}

func parseListSyntax(syntax string) (*listSyntax, error) {
	lines := strings.Split(strings.TrimRight(syntax, "\n"), "\n")
	ls := &listSyntax{lines: lines}
	hasPath := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			return nil, fmt.Errorf("%w: list groups cannot contain blank lines", ErrInvalidSyntax)
		}
		p, err := compileRowPattern(line)
		if err != nil {
			return nil, err
		}
		for _, name := range p.names {
			if name == "modifiedNote" || name == "filePath" {
				hasPath = true
			}
		}
		ls.patterns = append(ls.patterns, p)
	}
	if !hasPath {
		return nil, fmt.Errorf("%w: list syntax needs ${modifiedNote}", ErrInvalidSyntax)
	}
	return ls, nil
}

func indented(s string) bool {
	return s != "" && (s[0] == ' ' || s[0] == '\t')
}

// group parses the group starting at lines[i].
func (ls *listSyntax) group(lines []string, i int, o RenderOptions) (Row, bool) {
	if i+len(ls.lines) > len(lines) {
		return Row{}, false
	}
	var r Row
	for j, p := range ls.patterns {
		line := lines[i+j]
		if indented(line) != indented(ls.lines[j]) || !p.fill(line, &r, o) {
			return Row{}, false
		}
	}
	return r, r.Path != ""
}

// locate returns the first and last line of the first run of adjacent
// groups, or -1, -1.
func (ls *listSyntax) locate(lines []string, o RenderOptions) (int, int) {
	for i := range lines {
		if _, ok := ls.group(lines, i, o); !ok {
			continue
		}
		end := i - 1
		for {
			if _, ok := ls.group(lines, end+1, o); !ok {
				return i, end
			}
			end += len(ls.lines)
		}
	}
	return -1, -1
}

func (ls *listSyntax) extract(content string, o RenderOptions) map[string]Row {
	lines := strings.Split(content, "\n")
	rows := map[string]Row{}
	start, end := ls.locate(lines, o)
	if start < 0 {
		return rows
	}
	for i := start; i <= end; i += len(ls.lines) {
		if r, ok := ls.group(lines, i, o); ok {
			rows[r.Path] = r
		}
	}
	return rows
}

func (ls *listSyntax) render(rows []Row, o RenderOptions) string {
	out := make([]string, 0, len(rows)*len(ls.lines))
	for _, r := range rows {
		for _, line := range ls.lines {
			out = append(out, Expand(line, r, o))
		}
	}
	return strings.Join(out, "\n")
}

func (ls *listSyntax) replace(content, list string, o RenderOptions) string {
	start, end := ls.locate(strings.Split(content, "\n"), o)
	return replaceLines(content, start, end, list)
}
