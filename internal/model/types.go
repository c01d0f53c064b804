// Package model defines shared data structures.
package model

import (
	"errors"
	"time"
)

// ErrStale is returned by a document whose view or state is gone.
var ErrStale = errors.New("stale document reference")

// ViewMode is the presentation mode of an open document.
type ViewMode int

const (
	// ModeEdit is the editable source view.
	ModeEdit ViewMode = iota
	// ModeRead is the rendered, read-only view.
	ModeRead
)

func (m ViewMode) String() string {
	if m == ModeRead {
		return "read"
	}
	return "edit"
}

// Replacement is one contiguous substitution inside a history entry.
// Src addresses the document the entry reverts to, Dst the current document.
// Inserted is the text that reverting the entry puts back at Src.
type Replacement struct {
	SrcStart int
	SrcEnd   int
	DstStart int
	DstEnd   int
	Inserted string
}

// Entry is one reversible group of replacements.
type Entry struct {
	Replacements []Replacement
}

// ChangeLog is a read-only view of a document's undo/redo history.
type ChangeLog struct {
	Done   []Entry
	Undone []Entry
	// LastChange is zero when the host does not track it.
	LastChange time.Time
}

// Snapshot is a point-in-time copy of a tracker's statistics.
type Snapshot struct {
	Path          string
	EditedWords   int
	AddedWords    int
	DeletedWords  int
	ChangedWords  int
	EditedTimes   int
	EditTime      time.Duration
	ReadTime      time.Duration
	DocWords      int
	OriginalWords int
	LastModified  time.Time
	ResetAt       time.Time
	Active        bool
	Mode          ViewMode
}

// EditedPercentage returns the share of edited words in the document.
func EditedPercentage(original, added, deleted int) int {
	total := original + added + deleted
	if total <= 0 {
		return 0
	}
	return (added + deleted) * 100 / total
}

// StatBar splits a document into origin, deleted and added portions (percent).
type StatBar struct {
	Origin  int
	Deleted int
	Added   int
}

// NewStatBar builds the bar portions for the given word counts.
func NewStatBar(original, added, deleted int) StatBar {
	total := original + added + deleted
	if total <= 0 {
		return StatBar{}
	}
	bar := StatBar{
		Deleted: deleted * 100 / total,
		Added:   added * 100 / total,
	}
	bar.Origin = 100 - bar.Deleted - bar.Added
	return bar
}

// Record is a snapshot persisted by a record target.
type Record struct {
	ID         int64
	RecordedAt time.Time
	Snapshot
}

// RecordFilter narrows record queries.
type RecordFilter struct {
	Path  string
	Since *time.Time
	Last  int
}

// NoteAggregate sums records for one document.
type NoteAggregate struct {
	Path         string
	Records      int
	EditedWords  int
	AddedWords   int
	DeletedWords int
	EditedTimes  int
	EditTime     time.Duration
	ReadTime     time.Duration
	LastModified time.Time
}

// DailyAggregate sums records for one calendar day.
type DailyAggregate struct {
	Day         time.Time
	EditedWords int
	EditedTimes int
	EditTime    time.Duration
	ReadTime    time.Duration
}

// StatsConfig selects the records a report covers.
type StatsConfig struct {
	RecordFilter
	// Window is the moving average window over days.
	Window int
}
