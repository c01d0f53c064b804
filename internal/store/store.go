// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/wordflow/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for flushed records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			path TEXT NOT NULL,
			added_words INTEGER NOT NULL,
			deleted_words INTEGER NOT NULL,
			edited_times INTEGER NOT NULL,
			edit_ms INTEGER NOT NULL,
			read_ms INTEGER NOT NULL,
			doc_words INTEGER NOT NULL,
			original_words INTEGER NOT NULL,
			last_modified TEXT NOT NULL,
			reset_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_recorded_at ON records(recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_records_path ON records(path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Name identifies the store as a record target.
func (s *Store) Name() string {
	return "sqlite"
}

// Record stores one row per snapshot in a single transaction.
func (s *Store) Record(ctx context.Context, snaps []model.Snapshot) error {
	_, err := s.InsertRecords(ctx, s.now(), snaps)
	return err
}

// InsertRecords stores snapshots flushed at recordedAt and returns their ids.
func (s *Store) InsertRecords(ctx context.Context, recordedAt time.Time, snaps []model.Snapshot) ([]int64, error) {
	if len(snaps) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (recorded_at, path, added_words, deleted_words, edited_times, edit_ms, read_ms, doc_words, original_words, last_modified, reset_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()

	ids := make([]int64, 0, len(snaps))
	for _, snap := range snaps {
		var res sql.Result
		res, err = stmt.ExecContext(ctx,
			formatTime(recordedAt),
			snap.Path,
			snap.AddedWords,
			snap.DeletedWords,
			snap.EditedTimes,
			snap.EditTime.Milliseconds(),
			snap.ReadTime.Milliseconds(),
			snap.DocWords,
			snap.OriginalWords,
			formatTime(snap.LastModified),
			formatTime(snap.ResetAt),
		)
		if err != nil {
			return nil, err
		}
		var id int64
		id, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListRecords returns records filtered by path and time, oldest first.
// Last keeps only the most recent records.
func (s *Store) ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.Record, error) {
	where, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT id, recorded_at, path, added_words, deleted_words, edited_times, edit_ms, read_ms, doc_words, original_words, last_modified, reset_at
		FROM records
		WHERE %s
		ORDER BY recorded_at DESC, id DESC`, where)
	if filter.Last > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Last)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.Record
	for rows.Next() {
		var rec model.Record
		var recordedAt, lastModified, resetAt string
		var editMs, readMs int64
		if err := rows.Scan(&rec.ID, &recordedAt, &rec.Path, &rec.AddedWords, &rec.DeletedWords, &rec.EditedTimes,
			&editMs, &readMs, &rec.DocWords, &rec.OriginalWords, &lastModified, &resetAt); err != nil {
			return nil, err
		}
		if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		if rec.LastModified, err = parseTime(lastModified); err != nil {
			return nil, err
		}
		if rec.ResetAt, err = parseTime(resetAt); err != nil {
			return nil, err
		}
		rec.EditTime = time.Duration(editMs) * time.Millisecond
		rec.ReadTime = time.Duration(readMs) * time.Millisecond
		rec.EditedWords = rec.AddedWords + rec.DeletedWords
		rec.ChangedWords = rec.AddedWords - rec.DeletedWords
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first for reporting.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// NoteTotals sums records per document, most edited first.
func (s *Store) NoteTotals(ctx context.Context, filter model.RecordFilter) ([]model.NoteAggregate, error) {
	where, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT path, COUNT(*), SUM(added_words), SUM(deleted_words), SUM(edited_times),
			SUM(edit_ms), SUM(read_ms), MAX(last_modified)
		FROM records
		WHERE %s
		GROUP BY path
		ORDER BY SUM(added_words) + SUM(deleted_words) DESC, path ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.NoteAggregate
	for rows.Next() {
		var agg model.NoteAggregate
		var editMs, readMs int64
		var lastModified string
		if err := rows.Scan(&agg.Path, &agg.Records, &agg.AddedWords, &agg.DeletedWords, &agg.EditedTimes,
			&editMs, &readMs, &lastModified); err != nil {
			return nil, err
		}
		if agg.LastModified, err = parseTime(lastModified); err != nil {
			return nil, err
		}
		agg.EditedWords = agg.AddedWords + agg.DeletedWords
		agg.EditTime = time.Duration(editMs) * time.Millisecond
		agg.ReadTime = time.Duration(readMs) * time.Millisecond
		result = append(result, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DailyTotals sums records per local calendar day, oldest first.
func (s *Store) DailyTotals(ctx context.Context, filter model.RecordFilter) ([]model.DailyAggregate, error) {
	records, err := s.ListRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	var result []model.DailyAggregate
	for _, rec := range records {
		local := rec.RecordedAt.Local()
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
		if n := len(result); n == 0 || !result[n-1].Day.Equal(day) {
			result = append(result, model.DailyAggregate{Day: day})
		}
		agg := &result[len(result)-1]
		agg.EditedWords += rec.EditedWords
		agg.EditedTimes += rec.EditedTimes
		agg.EditTime += rec.EditTime
		agg.ReadTime += rec.ReadTime
	}
	return result, nil
}

func filterClauses(filter model.RecordFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Path != "" {
		clauses = append(clauses, "path = ?")
		args = append(args, filter.Path)
	}
	if filter.Since != nil {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	return strings.Join(clauses, " AND "), args
}

// Times are stored in UTC so that text ordering matches time ordering.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
