package note

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/wordflow/internal/model"
)

var day = time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)

func snap(path string, added, deleted, times int, modified time.Time) model.Snapshot {
	return model.Snapshot{
		Path:          path,
		AddedWords:    added,
		DeletedWords:  deleted,
		EditedWords:   added + deleted,
		ChangedWords:  added - deleted,
		EditedTimes:   times,
		EditTime:      2 * time.Minute,
		DocWords:      50,
		OriginalWords: 40,
		LastModified:  modified,
		ResetAt:       day,
	}
}

func newRecorder(t *testing.T, cfg Config) (*Recorder, string) {
	t.Helper()
	root := t.TempDir()
	r, err := New(root, cfg, nil)
	require.NoError(t, err)
	r.now = func() time.Time { return day }
	return r, root
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2024-03-05", FormatDate(day, "YYYY-MM-DD"))
	assert.Equal(t, "2024-03-05 14:07", FormatDate(day, "YYYY-MM-DD HH:mm"))
	assert.Equal(t, "Tue, Mar 5th 2:07:09 PM", FormatDate(day, "ddd, MMM Do h:mm:ss A"))
	assert.Equal(t, "2024-W10", FormatDate(day, "gggg-[W]ww"))
	assert.Equal(t, "Journal/2024/March", FormatDate(day, "[Journal]/YYYY/MMMM"))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-05 14:07", "YYYY-MM-DD HH:mm")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 5, 14, 7, 0, 0, time.Local)))

	_, err = ParseDate("2024-10", "gggg-ww")
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	row := Row{
		Path:          "notes/draft.md",
		EditedWords:   7,
		AddedWords:    5,
		DeletedWords:  2,
		OriginalWords: 13,
		EditTime:      65 * time.Second,
		ReadTime:      time.Minute,
	}
	opts := RenderOptions{TimeFormat: DefaultTimeFormat}
	assert.Equal(t, "draft: 7 words, 1 min", Expand("${noteTitle}: ${editedWords} words, ${editTime}", row, opts))
	assert.Equal(t, "notes/draft.md | 2 min", Expand("${filePath} | ${readEditTime}${unknown}", row, opts))
	assert.Equal(t, "1 min 5 s", Expand("${editTime}", row, RenderOptions{Seconds: true}))
	assert.Contains(t, Expand("${editedPercentage}", row, opts), `data-percentage="35"`)
	assert.Contains(t, Expand("${statBar}", row, opts), `style="width: 65%"`)
}

func TestRowPatternRoundTrip(t *testing.T) {
	ts, err := parseTableSyntax(DefaultTableSyntax + " ${editedPercentage} | ${comment} |")
	require.NoError(t, err)
	opts := RenderOptions{TimeFormat: DefaultTimeFormat}
	row := Row{
		Path:          "a/b.md",
		EditedWords:   9,
		AddedWords:    6,
		DeletedWords:  3,
		OriginalWords: 21,
		LastModified:  time.Date(2024, 3, 5, 9, 30, 0, 0, time.Local),
		Comment:       "needs review",
	}
	line := Expand(ts.row, row, opts)
	// Editors may re-pad table cells.
	line = strings.ReplaceAll(line, " | ", "   |  ")

	got, ok := ts.rowRe.parse(line, opts)
	require.True(t, ok, line)
	assert.Equal(t, "a/b.md", got.Path)
	assert.Equal(t, 9, got.EditedWords)
	assert.Equal(t, 21, got.OriginalWords)
	assert.Equal(t, "needs review", got.Comment)
	assert.True(t, got.LastModified.Equal(row.LastModified))
}

func TestInvalidSyntax(t *testing.T) {
	_, err := New(t.TempDir(), Config{Syntax: "| Note |\n| --- |"}, nil)
	assert.ErrorIs(t, err, ErrInvalidSyntax)

	_, err = New(t.TempDir(), Config{Kind: KindMetadata, Syntax: "Total: 5"}, nil)
	assert.ErrorIs(t, err, ErrInvalidSyntax)

	_, err = New(t.TempDir(), Config{Insert: InsertCustom}, nil)
	assert.ErrorIs(t, err, ErrMarkersNotFound)

	_, err = New(t.TempDir(), Config{Kind: "chart"}, nil)
	assert.Error(t, err)

	_, err = New(t.TempDir(), Config{Kind: KindList, Syntax: "- ${editedWords}"}, nil)
	assert.ErrorIs(t, err, ErrInvalidSyntax)

	_, err = New(t.TempDir(), Config{Kind: KindList, Syntax: "- ${modifiedNote}\n\n  - ${editedWords}"}, nil)
	assert.ErrorIs(t, err, ErrInvalidSyntax)

	_, err = New(t.TempDir(), Config{Kind: KindList, Insert: InsertYAML}, nil)
	assert.ErrorIs(t, err, ErrInvalidSyntax)
}

func TestNotePath(t *testing.T) {
	r, root := newRecorder(t, Config{Folder: "/[Daily]/YYYY/", DynamicFolder: true})
	assert.Equal(t, filepath.Join(root, "Daily", "2024", "2024-03-05.md"), r.NotePath(day))

	r, root = newRecorder(t, Config{Folder: "Daily/YYYY", NoteFormat: "gggg-[W]ww"})
	assert.Equal(t, filepath.Join(root, "Daily", "YYYY", "2024-W10.md"), r.NotePath(day))

	r, root = newRecorder(t, Config{Folder: "."})
	assert.Equal(t, filepath.Join(root, "2024-03-05.md"), r.NotePath(day))
}

func TestRecordCreatesAndMergesTable(t *testing.T) {
	r, _ := newRecorder(t, Config{Name: "daily", SortBy: SortEditedWords, Descending: true})
	ctx := context.Background()
	path := r.NotePath(day)
	assert.Equal(t, "daily", r.Name())

	early := time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local)
	late := time.Date(2024, 3, 5, 11, 0, 0, 0, time.Local)
	require.NoError(t, r.Record(ctx, []model.Snapshot{
		snap("a.md", 2, 0, 1, early),
		snap("b.md", 5, 1, 3, early),
	}))
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("a.md", 4, 2, 2, late)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| [[a.md\\|a]] | 8 | 2024-03-05 11:00 |", lines[2])
	assert.Equal(t, "| [[b.md\\|b]] | 6 | 2024-03-05 09:00 |", lines[3])
}

func TestRecordKeepsSurroundingText(t *testing.T) {
	r, _ := newRecorder(t, Config{SortBy: SortNote})
	path := r.NotePath(day)
	require.NoError(t, os.WriteFile(path, []byte("# Today\n\nNotes first.\n"), 0o644))

	require.NoError(t, r.Record(context.Background(), []model.Snapshot{snap("z.md", 1, 0, 1, day)}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Today\n\nNotes first.\n\n| Note |"))

	require.NoError(t, os.WriteFile(path, append(data, []byte("\nAfter the table.\n")...), 0o644))
	require.NoError(t, r.Record(context.Background(), []model.Snapshot{snap("y.md", 3, 0, 1, day)}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, 1, strings.Count(text, "| Note |"))
	assert.Less(t, strings.Index(text, "y.md"), strings.Index(text, "z.md"))
	assert.True(t, strings.HasSuffix(text, "\nAfter the table.\n"))
}

func TestRecordCustomInsert(t *testing.T) {
	r, _ := newRecorder(t, Config{Insert: InsertCustom, InsertStart: "<!-- start -->", InsertEnd: "<!-- end -->"})
	path := r.NotePath(day)
	ctx := context.Background()

	err := r.Record(ctx, []model.Snapshot{snap("a.md", 1, 0, 1, day)})
	assert.ErrorIs(t, err, ErrMarkersNotFound)

	require.NoError(t, os.WriteFile(path, []byte("top\n<!-- start -->\n<!-- end -->\nbottom\n"), 0o644))
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("a.md", 1, 0, 1, day)}))
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("a.md", 2, 0, 1, day)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "top\n<!-- start -->\n| Note |"))
	assert.True(t, strings.HasSuffix(text, "|\n<!-- end -->\nbottom\n"))
	assert.Contains(t, text, "| [[a.md\\|a]] | 3 |")
}

func TestRecordCreatesAndMergesList(t *testing.T) {
	r, _ := newRecorder(t, Config{Kind: KindList, SortBy: SortNote})
	path := r.NotePath(day)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(path, []byte("# Day\n"), 0o644))

	early := time.Date(2024, 3, 5, 9, 0, 0, 0, time.Local)
	late := time.Date(2024, 3, 5, 11, 0, 0, 0, time.Local)
	require.NoError(t, r.Record(ctx, []model.Snapshot{
		snap("b.md", 5, 1, 3, early),
		snap("a.md", 2, 0, 1, early),
	}))
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("a.md", 4, 2, 2, late)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "# Day\n\n" +
		"- [[a.md]]\n" +
		"    - Edits: 3\n" +
		"    - Edited words: 8\n" +
		"    - Last modified: 2024-03-05 11:00\n" +
		"- [[b.md]]\n" +
		"    - Edits: 3\n" +
		"    - Edited words: 6\n" +
		"    - Last modified: 2024-03-05 09:00\n"
	assert.Equal(t, want, string(data))

	// Text after the list survives and the groups are rewritten in place.
	require.NoError(t, os.WriteFile(path, append(data, []byte("\n- unrelated item\n")...), 0o644))
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("c.md", 1, 0, 1, late)}))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Equal(t, 1, strings.Count(text, "- [[a.md]]"))
	assert.Less(t, strings.Index(text, "- [[b.md]]"), strings.Index(text, "- [[c.md]]"))
	assert.True(t, strings.HasSuffix(text, "\n\n- unrelated item\n"))
}

func TestRecordListCustomInsert(t *testing.T) {
	r, _ := newRecorder(t, Config{
		Kind:        KindList,
		Syntax:      "- ${modifiedNote}: ${editedWords} words",
		Insert:      InsertCustom,
		InsertStart: "<!-- start -->",
		InsertEnd:   "<!-- end -->",
	})
	path := r.NotePath(day)
	require.NoError(t, os.WriteFile(path, []byte("<!-- start -->\n<!-- end -->\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("a.md", 1, 0, 1, day)}))
	require.NoError(t, r.Record(ctx, []model.Snapshot{snap("a.md", 2, 1, 1, day)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<!-- start -->\n- a.md: 4 words\n<!-- end -->\n", string(data))
}

func TestRecordFrontmatterTotals(t *testing.T) {
	r, _ := newRecorder(t, Config{Kind: KindMetadata})
	path := r.NotePath(day)
	require.NoError(t, os.WriteFile(path, []byte("---\ntags:\n  - daily\nTotal edits: 4\n---\nBody\n"), 0o644))

	require.NoError(t, r.Record(context.Background(), []model.Snapshot{
		snap("a.md", 3, 1, 2, day),
		snap("b.md", 1, 0, 1, day),
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "tags:\n  - daily\n")
	assert.Contains(t, text, "Total edits: 7\n")
	assert.Contains(t, text, "Total words: 5\n")
	assert.Contains(t, text, "Total edit time: 4 min\n")
	assert.True(t, strings.HasSuffix(text, "---\nBody\n"))

	lines, err := parseMetadataSyntax(DefaultMetadataSyntax)
	require.NoError(t, err)
	totals := readTotals(text, lines)
	assert.Equal(t, 7, totals.Edits)
	assert.Equal(t, 4*time.Minute, totals.EditTime)
}

func TestRecordFrontmatterCreatesBlock(t *testing.T) {
	r, _ := newRecorder(t, Config{Kind: KindMetadata})
	require.NoError(t, r.Record(context.Background(), []model.Snapshot{snap("a.md", 1, 0, 1, day)}))
	data, err := os.ReadFile(r.NotePath(day))
	require.NoError(t, err)
	assert.Equal(t, "---\nTotal edits: 1\nTotal words: 1\nTotal edit time: 2 min\n---\n", string(data))
}

func TestRecordUsesTemplateForNewNotes(t *testing.T) {
	tpl := filepath.Join(t.TempDir(), "daily.md")
	require.NoError(t, os.WriteFile(tpl, []byte("# {{date}}\n"), 0o644))
	r, _ := newRecorder(t, Config{Template: tpl, Folder: "journal"})

	require.NoError(t, r.Record(context.Background(), []model.Snapshot{snap("a.md", 1, 0, 1, day)}))
	data, err := os.ReadFile(r.NotePath(day))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# 2024-03-05\n\n| Note |"))
}

func TestSortRows(t *testing.T) {
	rows := []Row{
		{Path: "b", EditTime: time.Minute, OriginalWords: 1, AddedWords: 1},
		{Path: "a", EditTime: time.Hour, OriginalWords: 9, AddedWords: 1},
		{Path: "c", EditTime: time.Minute},
	}
	sortRows(rows, SortEditTime, true)
	assert.Equal(t, []string{"a", "b", "c"}, []string{rows[0].Path, rows[1].Path, rows[2].Path})

	sortRows(rows, SortPercentage, false)
	assert.Equal(t, []string{"c", "a", "b"}, []string{rows[0].Path, rows[1].Path, rows[2].Path})
}
