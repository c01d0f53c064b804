// Package stats contains statistics calculations and reporting.
package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/wordflow/internal/model"
)

// Querier reads persisted records.
type Querier interface {
	ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.Record, error)
	NoteTotals(ctx context.Context, filter model.RecordFilter) ([]model.NoteAggregate, error)
	DailyTotals(ctx context.Context, filter model.RecordFilter) ([]model.DailyAggregate, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Records []model.Record
	Summary Summary
	Notes   []model.NoteAggregate
	Days    []model.DailyAggregate
	Window  int
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, q Querier, cfg model.StatsConfig) (Report, error) {
	records, err := q.ListRecords(ctx, cfg.RecordFilter)
	if err != nil {
		return Report{}, err
	}

	// Per-note and per-day totals cover the same records as the summary.
	filter := cfg.RecordFilter
	filter.Last = 0
	if cfg.Last > 0 && len(records) > 0 {
		since := records[0].RecordedAt
		filter.Since = &since
	}
	notes, err := q.NoteTotals(ctx, filter)
	if err != nil {
		return Report{}, err
	}
	days, err := q.DailyTotals(ctx, filter)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Records: records,
		Summary: Summarize(records),
		Notes:   notes,
		Days:    days,
		Window:  cfg.Window,
	}, nil
}

// Render prints the whole report; width 0 uses the terminal width.
func Render(w io.Writer, r Report, width int) error {
	if err := RenderSummary(w, r.Summary); err != nil {
		return err
	}
	if r.Summary.Records == 0 {
		return nil
	}
	if err := RenderNoteTable(w, r.Notes); err != nil {
		return err
	}
	return RenderDaily(w, r.Days, r.Window, width)
}
