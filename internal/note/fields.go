package note

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/timer"
)

// Row is one note's line in a record note, or the source of a status line.
type Row struct {
	Path          string
	LastModified  time.Time
	EditedWords   int
	EditedTimes   int
	AddedWords    int
	DeletedWords  int
	ChangedWords  int
	DocWords      int
	OriginalWords int
	EditTime      time.Duration
	ReadTime      time.Duration
	Comment       string
}

// RowFromSnapshot converts tracker statistics into a row.
func RowFromSnapshot(s model.Snapshot) Row {
	return Row{
		Path:          s.Path,
		LastModified:  s.LastModified,
		EditedWords:   s.EditedWords,
		EditedTimes:   s.EditedTimes,
		AddedWords:    s.AddedWords,
		DeletedWords:  s.DeletedWords,
		ChangedWords:  s.ChangedWords,
		DocWords:      s.DocWords,
		OriginalWords: s.OriginalWords,
		EditTime:      s.EditTime,
		ReadTime:      s.ReadTime,
	}
}

// Percentage is the edited share of the note.
func (r Row) Percentage() int {
	return model.EditedPercentage(r.OriginalWords, r.AddedWords, r.DeletedWords)
}

// Title is the note's file name without extension.
func (r Row) Title() string {
	base := filepath.Base(r.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RenderOptions controls how field values are written.
type RenderOptions struct {
	TimeFormat string
	Seconds    bool
}

type field struct {
	render func(r Row, o RenderOptions) string
	// parse is nil for derived fields that cannot be read back.
	parse func(r *Row, v string, o RenderOptions) error
}

var (
	percentSpan = regexp.MustCompile(`data-percentage="(\d+)"[^>]*data-origin-words="(\d+)"[^>]*data-deleted-words="(\d+)"[^>]*data-added-words="(\d+)"`)
	statBarSpan = regexp.MustCompile(`data-origin-words="(\d+)"[^>]*data-deleted-words="(\d+)"[^>]*data-added-words="(\d+)"`)
)

func intField(get func(Row) int, set func(*Row, int)) field {
	return field{
		render: func(r Row, _ RenderOptions) string { return strconv.Itoa(get(r)) },
		parse: func(r *Row, v string, _ RenderOptions) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return err
			}
			set(r, n)
			return nil
		},
	}
}

func durationField(get func(Row) time.Duration, set func(*Row, time.Duration)) field {
	return field{
		render: func(r Row, o RenderOptions) string { return timer.FormatDuration(get(r), o.Seconds) },
		parse: func(r *Row, v string, _ RenderOptions) error {
			d, err := timer.ParseDuration(v)
			if err != nil {
				return err
			}
			set(r, d)
			return nil
		},
	}
}

func parseOrigin(r *Row, v string, re *regexp.Regexp, originGroup int) error {
	m := re.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("no word counts in %q", v)
	}
	n, err := strconv.Atoi(m[originGroup])
	if err != nil {
		return err
	}
	r.OriginalWords = n
	return nil
}

var fields = map[string]field{
	"modifiedNote": {
		render: func(r Row, _ RenderOptions) string { return r.Path },
		parse: func(r *Row, v string, _ RenderOptions) error {
			r.Path = strings.TrimSpace(v)
			return nil
		},
	},
	"noteTitle": {render: func(r Row, _ RenderOptions) string { return r.Title() }},
	"lastModifiedTime": {
		render: func(r Row, o RenderOptions) string {
			if r.LastModified.IsZero() {
				return ""
			}
			return FormatDate(r.LastModified.Local(), o.TimeFormat)
		},
		parse: func(r *Row, v string, o RenderOptions) error {
			if strings.TrimSpace(v) == "" {
				return nil
			}
			t, err := ParseDate(v, o.TimeFormat)
			if err != nil {
				return err
			}
			r.LastModified = t
			return nil
		},
	},
	"editedWords":  intField(func(r Row) int { return r.EditedWords }, func(r *Row, n int) { r.EditedWords = n }),
	"editedTimes":  intField(func(r Row) int { return r.EditedTimes }, func(r *Row, n int) { r.EditedTimes = n }),
	"addedWords":   intField(func(r Row) int { return r.AddedWords }, func(r *Row, n int) { r.AddedWords = n }),
	"deletedWords": intField(func(r Row) int { return r.DeletedWords }, func(r *Row, n int) { r.DeletedWords = n }),
	"changedWords": intField(func(r Row) int { return r.ChangedWords }, func(r *Row, n int) { r.ChangedWords = n }),
	"docWords":     intField(func(r Row) int { return r.DocWords }, func(r *Row, n int) { r.DocWords = n }),
	"editedPercentage": {
		render: func(r Row, _ RenderOptions) string {
			return fmt.Sprintf(`<span class="edited-percentage" data-percentage="%d" data-origin-words="%d" data-deleted-words="%d" data-added-words="%d"></span>`,
				r.Percentage(), r.OriginalWords, r.DeletedWords, r.AddedWords)
		},
		parse: func(r *Row, v string, _ RenderOptions) error { return parseOrigin(r, v, percentSpan, 2) },
	},
	"statBar": {
		render: func(r Row, _ RenderOptions) string {
			bar := model.NewStatBar(r.OriginalWords, r.AddedWords, r.DeletedWords)
			return fmt.Sprintf(`<span class="stat-bar-container" data-origin-words="%d" data-deleted-words="%d" data-added-words="%d">`+
				`<span class="stat-bar origin" style="width: %d%%"></span>`+
				`<span class="stat-bar deleted" style="width: %d%%"></span>`+
				`<span class="stat-bar added" style="width: %d%%"></span></span>`,
				r.OriginalWords, r.DeletedWords, r.AddedWords, bar.Origin, bar.Deleted, bar.Added)
		},
		parse: func(r *Row, v string, _ RenderOptions) error { return parseOrigin(r, v, statBarSpan, 1) },
	},
	"editTime": durationField(func(r Row) time.Duration { return r.EditTime }, func(r *Row, d time.Duration) { r.EditTime = d }),
	"readTime": durationField(func(r Row) time.Duration { return r.ReadTime }, func(r *Row, d time.Duration) { r.ReadTime = d }),
	"readEditTime": {render: func(r Row, o RenderOptions) string {
		return timer.FormatDuration(r.EditTime+r.ReadTime, o.Seconds)
	}},
	"comment": {
		render: func(r Row, _ RenderOptions) string { return r.Comment },
		parse: func(r *Row, v string, _ RenderOptions) error {
			r.Comment = strings.TrimSpace(v)
			return nil
		},
	},
}

func init() {
	fields["filePath"] = fields["modifiedNote"]
	fields["fileName"] = fields["noteTitle"]
}

var placeholder = regexp.MustCompile(`\$\{(\w+)\}`)

// Expand replaces ${field} placeholders with the row's values. Unknown
// fields expand to the empty string.
func Expand(tpl string, r Row, o RenderOptions) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		f, ok := fields[name]
		if !ok {
			return ""
		}
		return f.render(r, o)
	})
}

// Fields lists the placeholder names templates may use.
func Fields() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	return names
}

// rowPattern matches lines rendered from a row template and reads the
// parseable fields back.
type rowPattern struct {
	re    *regexp.Regexp
	names []string
}

func compileRowPattern(tpl string) (*rowPattern, error) {
	tpl = strings.TrimSpace(tpl)
	locs := placeholder.FindAllStringSubmatchIndex(tpl, -1)
	var b strings.Builder
	b.WriteString(`^`)
	names := make([]string, 0, len(locs))
	prev := 0
	for _, loc := range locs {
		b.WriteString(literalPattern(tpl[prev:loc[0]]))
		b.WriteString(`(.*?)`)
		names = append(names, tpl[loc[2]:loc[3]])
		prev = loc[1]
	}
	b.WriteString(literalPattern(tpl[prev:]))
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile row template: %w", err)
	}
	return &rowPattern{re: re, names: names}, nil
}

// Whitespace in literal template text matches any amount of whitespace, so
// that editors reformatting table padding do not break parsing.
func literalPattern(s string) string {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		if s == "" {
			return ""
		}
		return `\s*`
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	out := strings.Join(quoted, `\s*`)
	if strings.TrimLeft(s, " \t") != s {
		out = `\s*` + out
	}
	if strings.TrimRight(s, " \t") != s {
		out += `\s*`
	}
	return out
}

// fill reads the fields of line into r. It reports false when line does
// not match or a field fails to parse.
func (p *rowPattern) fill(line string, r *Row, o RenderOptions) bool {
	m := p.re.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return false
	}
	for i, name := range p.names {
		f, ok := fields[name]
		if !ok || f.parse == nil {
			continue
		}
		if err := f.parse(r, m[i+1], o); err != nil {
			return false
		}
	}
	return true
}

func (p *rowPattern) parse(line string, o RenderOptions) (Row, bool) {
	var r Row
	if !p.fill(line, &r, o) || r.Path == "" {
		return Row{}, false
	}
	return r, true
}
