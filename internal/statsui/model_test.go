package statsui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/wordflow/internal/model"
)

type fakeQuerier struct {
	records []model.Record
	err     error
	filters []model.RecordFilter
}

func (f *fakeQuerier) ListRecords(_ context.Context, filter model.RecordFilter) ([]model.Record, error) {
	f.filters = append(f.filters, filter)
	return f.records, f.err
}

func (f *fakeQuerier) NoteTotals(_ context.Context, _ model.RecordFilter) ([]model.NoteAggregate, error) {
	if len(f.records) == 0 {
		return nil, f.err
	}
	return []model.NoteAggregate{{Path: "journal.md", Records: len(f.records), EditedWords: 12}}, f.err
}

func (f *fakeQuerier) DailyTotals(_ context.Context, _ model.RecordFilter) ([]model.DailyAggregate, error) {
	if len(f.records) == 0 {
		return nil, f.err
	}
	return []model.DailyAggregate{{Day: time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local), EditedWords: 12}}, f.err
}

func sampleRecords() []model.Record {
	return []model.Record{{
		ID:         1,
		RecordedAt: time.Date(2024, 6, 1, 9, 30, 0, 0, time.Local),
		Snapshot: model.Snapshot{
			Path:         "journal.md",
			EditedWords:  12,
			AddedWords:   10,
			DeletedWords: 2,
			EditedTimes:  4,
			EditTime:     20 * time.Minute,
		},
	}}
}

func TestViewShowsOverview(t *testing.T) {
	q := &fakeQuerier{records: sampleRecords()}
	m := NewModel(q, model.StatsConfig{Window: 7})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	out := m.View()
	for _, want := range []string{"Overview", "Records", "Edited words", "12 (+10 / -2)", "window=7"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in view", want)
		}
	}
}

func TestTabsCycle(t *testing.T) {
	m := NewModel(&fakeQuerier{records: sampleRecords()}, model.StatsConfig{Window: 7})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabNotes {
		t.Fatalf("expected notes tab, got %d", m.activeTab)
	}
	if !strings.Contains(m.View(), "journal.md") {
		t.Fatalf("expected note row in notes tab")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m.Update(tea.KeyMsg{Type: tea.KeyRight})
	if m.activeTab != tabOverview {
		t.Fatalf("expected wrap to overview, got %d", m.activeTab)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.activeTab != tabRecords {
		t.Fatalf("expected wrap to records, got %d", m.activeTab)
	}
}

func TestFilterAppliesToQueries(t *testing.T) {
	q := &fakeQuerier{records: sampleRecords()}
	m := NewModel(q, model.StatsConfig{Window: 7})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.filterMode {
		t.Fatalf("expected filter mode")
	}
	m.filterInputs[filterPath].SetValue("journal.md")
	m.filterInputs[filterLast].SetValue("5")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.filterMode {
		t.Fatalf("expected filter mode to close, error %q", m.filterError)
	}
	last := q.filters[len(q.filters)-1]
	if last.Path != "journal.md" || last.Last != 5 {
		t.Fatalf("unexpected filter %+v", last)
	}
}

func TestFilterRejectsBadInput(t *testing.T) {
	m := NewModel(&fakeQuerier{}, model.StatsConfig{Window: 7})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m.filterInputs[filterSince].SetValue("June")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.filterMode || m.filterError == "" {
		t.Fatalf("expected filter error, got mode=%v err=%q", m.filterMode, m.filterError)
	}
}

func TestLoadErrorIsShown(t *testing.T) {
	m := NewModel(&fakeQuerier{err: errors.New("db locked")}, model.StatsConfig{Window: 7})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	if !strings.Contains(m.View(), "db locked") {
		t.Fatalf("expected load error in footer")
	}
}

func TestWindowKeys(t *testing.T) {
	if nextWindow(1) != 7 || nextWindow(7) != 14 {
		t.Fatalf("unexpected next window")
	}
	if prevWindow(14) != 7 || prevWindow(7) != 1 {
		t.Fatalf("unexpected previous window")
	}
}
