// Package note writes flushed statistics into periodic markdown notes, as a
// table or bullet list of per-note entries or as day totals in the YAML
// frontmatter.
package note

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/wordflow/internal/fsutil"
	"github.com/verte-zerg/wordflow/internal/model"
)

// ErrMarkersNotFound reports a custom insert place missing from the note.
var ErrMarkersNotFound = errors.New("insert markers not found")

// Kind selects what a recorder writes.
type Kind string

const (
	KindTable    Kind = "table"
	KindList     Kind = "list"
	KindMetadata Kind = "metadata"
)

// Insert selects where a table or list is written.
type Insert string

const (
	InsertBottom Insert = "bottom"
	InsertCustom Insert = "custom"
	InsertYAML   Insert = "yaml"
)

// Sort keys for per-note entries.
const (
	SortLastModified = "lastModifiedTime"
	SortEditedWords  = "editedWords"
	SortEditedTimes  = "editedTimes"
	SortPercentage   = "editedPercentage"
	SortNote         = "modifiedNote"
	SortEditTime     = "editTime"
)

const (
	DefaultNoteFormat  = "YYYY-MM-DD"
	DefaultTimeFormat  = "YYYY-MM-DD HH:mm"
	DefaultTableSyntax = "| Note | Edited Words | Last Modified Time |\n" +
		"| --- | --- | --- |\n" +
		"| [[${modifiedNote}\\|${noteTitle}]] | ${editedWords} | ${lastModifiedTime} |"
	DefaultListSyntax = "- [[${modifiedNote}]]\n" +
		"    - Edits: ${editedTimes}\n" +
		"    - Edited words: ${editedWords}\n" +
		"    - Last modified: ${lastModifiedTime}"
	DefaultMetadataSyntax = "Total edits: ${totalEdits}\nTotal words: ${totalWords}\nTotal edit time: ${totalEditTime}"
)

// Config describes one periodic note target.
type Config struct {
	ID            string
	Name          string
	Kind          Kind
	Folder        string
	NoteFormat    string
	DynamicFolder bool
	Syntax        string
	TimeFormat    string
	SortBy        string
	Descending    bool
	Insert        Insert
	InsertStart   string
	InsertEnd     string
	// Template is a file copied into new notes; {{date}} and {{time}} are
	// replaced with the creation date and time.
	Template string
	Seconds  bool
}

func (c *Config) applyDefaults() {
	if c.Kind == "" {
		c.Kind = KindTable
	}
	if c.NoteFormat == "" {
		c.NoteFormat = DefaultNoteFormat
	}
	if c.TimeFormat == "" {
		c.TimeFormat = DefaultTimeFormat
	}
	if c.SortBy == "" {
		c.SortBy = SortLastModified
	}
	if c.Insert == "" {
		c.Insert = InsertBottom
		if c.Kind == KindMetadata {
			c.Insert = InsertYAML
		}
	}
	if c.Syntax == "" {
		switch c.Kind {
		case KindList:
			c.Syntax = DefaultListSyntax
		case KindMetadata:
			c.Syntax = DefaultMetadataSyntax
		default:
			c.Syntax = DefaultTableSyntax
		}
	}
}

// Recorder is a record target writing into notes under a root directory.
type Recorder struct {
	root     string
	cfg      Config
	rows     rowBlock
	metadata []metadataLine
	now      func() time.Time
	log      *slog.Logger

	mu sync.Mutex
}

// New validates cfg and creates a recorder writing below root.
func New(root string, cfg Config, logger *slog.Logger) (*Recorder, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{root: root, cfg: cfg, now: time.Now, log: logger}
	switch cfg.Kind {
	case KindTable, KindList:
		if cfg.Insert == InsertYAML {
			return nil, fmt.Errorf("%w: %s recorders cannot insert into yaml", ErrInvalidSyntax, cfg.Kind)
		}
		if cfg.Insert == InsertCustom && (cfg.InsertStart == "" || cfg.InsertEnd == "") {
			return nil, fmt.Errorf("%w: custom insert needs start and end markers", ErrMarkersNotFound)
		}
		var err error
		if cfg.Kind == KindList {
			r.rows, err = parseListSyntax(cfg.Syntax)
		} else {
			r.rows, err = parseTableSyntax(cfg.Syntax)
		}
		if err != nil {
			return nil, err
		}
	case KindMetadata:
		lines, err := parseMetadataSyntax(cfg.Syntax)
		if err != nil {
			return nil, err
		}
		r.metadata = lines
	default:
		return nil, fmt.Errorf("unknown recorder kind %q", cfg.Kind)
	}
	return r, nil
}

// Name identifies the recorder in logs and metrics.
func (r *Recorder) Name() string {
	if r.cfg.Name != "" {
		return r.cfg.Name
	}
	return "note:" + r.cfg.ID
}

// Config returns the recorder's effective configuration.
func (r *Recorder) Config() Config {
	return r.cfg
}

// NotePath resolves the periodic note for the given day.
func (r *Recorder) NotePath(day time.Time) string {
	folder := r.cfg.Folder
	if r.cfg.DynamicFolder {
		folder = FormatDate(day, folder)
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "." {
		folder = ""
	}
	name := FormatDate(day, r.cfg.NoteFormat) + ".md"
	return filepath.Join(r.root, filepath.FromSlash(folder), name)
}

// Record merges snaps into the periodic note of the day tracking started.
func (r *Recorder) Record(ctx context.Context, snaps []model.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	day := snaps[0].ResetAt
	now := r.now()
	if day.IsZero() {
		day = now
	}
	if !sameDay(day, now) {
		r.log.Warn("recording statistics tracked on another day", "day", day.Format(time.DateOnly))
	}

	path := r.NotePath(day.Local())
	content, err := r.readOrCreate(path, now)
	if err != nil {
		return err
	}

	var updated string
	if r.cfg.Kind == KindMetadata {
		var add Totals
		for _, s := range snaps {
			add.Add(s)
		}
		updated, err = mergeFrontmatter(content, r.metadata, add, r.cfg.Seconds)
	} else {
		updated, err = r.updateRows(content, snaps)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(updated)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.log.Debug("note recorded", "recorder", r.Name(), "path", path, "snapshots", len(snaps))
	return nil
}

func (r *Recorder) readOrCreate(path string, now time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create note folder: %w", err)
	}
	if r.cfg.Template == "" {
		return "", nil
	}
	tpl, err := os.ReadFile(r.cfg.Template)
	if err != nil {
		return "", fmt.Errorf("failed to read note template: %w", err)
	}
	content := strings.ReplaceAll(string(tpl), "{{date}}", FormatDate(now, DefaultNoteFormat))
	content = strings.ReplaceAll(content, "{{time}}", FormatDate(now, "HH:mm"))
	return content, nil
}

func (r *Recorder) renderOptions() RenderOptions {
	return RenderOptions{TimeFormat: r.cfg.TimeFormat, Seconds: r.cfg.Seconds}
}

func (r *Recorder) updateRows(content string, snaps []model.Snapshot) (string, error) {
	opts := r.renderOptions()
	var existing map[string]Row
	if r.cfg.Insert == InsertCustom {
		inner, ok := between(content, r.cfg.InsertStart, r.cfg.InsertEnd)
		if !ok {
			return "", ErrMarkersNotFound
		}
		existing = r.rows.extract(inner, opts)
	} else {
		existing = r.rows.extract(content, opts)
	}

	rows := mergeRows(existing, snaps)
	sortRows(rows, r.cfg.SortBy, r.cfg.Descending)
	block := r.rows.render(rows, opts)

	if r.cfg.Insert == InsertCustom {
		return replaceBetween(content, r.cfg.InsertStart, r.cfg.InsertEnd, block)
	}
	return r.rows.replace(content, block, opts), nil
}

// mergeRows adds new statistics to the rows already in the note. Counters
// are summed, the note's original size is kept from the existing row and
// the newest modification time and document size win.
func mergeRows(existing map[string]Row, snaps []model.Snapshot) []Row {
	merged := make(map[string]Row, len(existing)+len(snaps))
	for path, row := range existing {
		merged[path] = row
	}
	for _, s := range snaps {
		incoming := RowFromSnapshot(s)
		old, ok := merged[s.Path]
		if !ok {
			merged[s.Path] = incoming
			continue
		}
		incoming.EditedWords += old.EditedWords
		incoming.EditedTimes += old.EditedTimes
		incoming.AddedWords += old.AddedWords
		incoming.DeletedWords += old.DeletedWords
		incoming.ChangedWords += old.ChangedWords
		incoming.EditTime += old.EditTime
		incoming.ReadTime += old.ReadTime
		if old.OriginalWords > 0 {
			incoming.OriginalWords = old.OriginalWords
		}
		incoming.Comment = old.Comment
		if old.LastModified.After(incoming.LastModified) {
			incoming.LastModified = old.LastModified
		}
		merged[s.Path] = incoming
	}
	rows := make([]Row, 0, len(merged))
	for _, row := range merged {
		rows = append(rows, row)
	}
	return rows
}

func sortRows(rows []Row, by string, desc bool) {
	less := func(a, b Row) bool {
		switch by {
		case SortLastModified:
			return a.LastModified.Before(b.LastModified)
		case SortEditedWords:
			return a.EditedWords < b.EditedWords
		case SortEditedTimes:
			return a.EditedTimes < b.EditedTimes
		case SortPercentage:
			return a.Percentage() < b.Percentage()
		case SortEditTime:
			return a.EditTime < b.EditTime
		default:
			return a.Path < b.Path
		}
	}
	// Path order first keeps ties stable between writes.
	sort.Slice(rows, func(i, j int) bool { return rows[i].Path < rows[j].Path })
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

func sameDay(a, b time.Time) bool {
	a, b = a.Local(), b.Local()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func between(content, start, end string) (string, bool) {
	i := strings.Index(content, start)
	if i < 0 {
		return "", false
	}
	from := i + len(start)
	j := strings.Index(content[from:], end)
	if j < 0 {
		return "", false
	}
	return content[from : from+j], true
}

func replaceBetween(content, start, end, inner string) (string, error) {
	i := strings.Index(content, start)
	if i < 0 {
		return "", ErrMarkersNotFound
	}
	from := i + len(start)
	j := strings.Index(content[from:], end)
	if j < 0 {
		return "", ErrMarkersNotFound
	}
	return content[:from] + "\n" + inner + "\n" + content[from+j:], nil
}
