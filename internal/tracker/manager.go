package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/verte-zerg/wordflow/internal/model"
)

// RecordOn selects what is recorded when a document leaves edit mode.
type RecordOn string

const (
	// RecordOnAll records every tracked document.
	RecordOnAll RecordOn = "all"
	// RecordOnCurrent records the document that left edit mode.
	RecordOnCurrent RecordOn = "crt"
)

// ParseRecordOn validates a record-on policy.
func ParseRecordOn(s string) (RecordOn, error) {
	switch RecordOn(s) {
	case "", RecordOnAll:
		return RecordOnAll, nil
	case RecordOnCurrent:
		return RecordOnCurrent, nil
	default:
		return "", fmt.Errorf("unknown record-on policy %q (want all or crt)", s)
	}
}

// Recorder persists tracker statistics.
type Recorder interface {
	// Record and RecordAll may be throttled.
	Record(ctx context.Context, t *Tracker) error
	RecordAll(ctx context.Context) error
	// RecordNow records the given trackers without throttling.
	RecordNow(ctx context.Context, trackers ...*Tracker) error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Tracker Options
	// RecordOn applies when the focused document leaves edit mode. Empty
	// disables recording on mode changes.
	RecordOn RecordOn
	// AutoRecord is the interval of Run. Zero disables periodic recording.
	AutoRecord time.Duration
	Logger     *slog.Logger
}

// Manager owns one tracker per open document.
type Manager struct {
	opts ManagerOptions
	log  *slog.Logger

	mu       sync.Mutex
	trackers map[string]*Tracker
	focused  string
	recorder Recorder
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Tracker.Logger == nil {
		opts.Tracker.Logger = logger
	}
	return &Manager{
		opts:     opts,
		log:      logger,
		trackers: map[string]*Tracker{},
	}
}

// SetRecorder installs the recorder used on mode changes, Close and Run.
func (m *Manager) SetRecorder(r Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorder = r
}

// Focus activates the tracker of doc in mode, creating it when needed, and
// deactivates every other tracker. Leaving edit mode triggers recording per
// the RecordOn policy.
func (m *Manager) Focus(ctx context.Context, doc Document, mode model.ViewMode) *Tracker {
	path := doc.Path()
	m.mu.Lock()
	t, ok := m.trackers[path]
	if !ok {
		t = New(doc, m.opts.Tracker)
		m.trackers[path] = t
	}
	var prev *Tracker
	if m.focused != "" {
		prev = m.trackers[m.focused]
	}
	others := make([]*Tracker, 0, len(m.trackers))
	for p, other := range m.trackers {
		if p != path {
			others = append(others, other)
		}
	}
	m.focused = path
	recorder := m.recorder
	m.mu.Unlock()

	leftEdit := false
	if prev != nil {
		ps := prev.Snapshot()
		leftEdit = ps.Active && ps.Mode == model.ModeEdit && (prev != t || mode != model.ModeEdit)
	}
	for _, other := range others {
		other.Deactivate()
	}
	t.Activate(mode)

	if leftEdit && recorder != nil {
		m.recordOnLeave(ctx, recorder, prev)
	}
	return t
}

func (m *Manager) recordOnLeave(ctx context.Context, recorder Recorder, prev *Tracker) {
	var err error
	switch m.opts.RecordOn {
	case RecordOnAll:
		err = recorder.RecordAll(ctx)
	case RecordOnCurrent:
		err = recorder.Record(ctx, prev)
	default:
		return
	}
	if err != nil {
		m.log.Error("failed to record on leaving edit mode", "path", prev.Path(), "err", err)
	}
}

// Get returns the tracker of path.
func (m *Manager) Get(path string) (*Tracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[path]
	return t, ok
}

// Trackers returns the live trackers ordered by path.
func (m *Manager) Trackers() []*Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// Snapshots returns the statistics of every tracker ordered by path.
func (m *Manager) Snapshots() []model.Snapshot {
	trackers := m.Trackers()
	out := make([]model.Snapshot, len(trackers))
	for i, t := range trackers {
		out[i] = t.Snapshot()
	}
	return out
}

// Close records and destroys the tracker of a document that is no longer
// open.
func (m *Manager) Close(ctx context.Context, path string) error {
	m.mu.Lock()
	t, ok := m.trackers[path]
	recorder := m.recorder
	m.mu.Unlock()
	if !ok {
		return nil
	}

	t.Deactivate()
	var err error
	if recorder != nil {
		if rerr := recorder.RecordNow(ctx, t); rerr != nil {
			err = fmt.Errorf("failed to record %s: %w", path, rerr)
		}
	}
	t.Destroy()

	m.mu.Lock()
	delete(m.trackers, path)
	if m.focused == path {
		m.focused = ""
	}
	m.mu.Unlock()
	return err
}

// Run records every tracker on the AutoRecord interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if m.opts.AutoRecord <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.opts.AutoRecord)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.mu.Lock()
			recorder := m.recorder
			m.mu.Unlock()
			if recorder == nil {
				continue
			}
			if err := recorder.RecordAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("periodic record failed", "err", err)
			}
		}
	}
}

// Shutdown records every tracker and destroys them all.
func (m *Manager) Shutdown(ctx context.Context) error {
	trackers := m.Trackers()
	for _, t := range trackers {
		t.Deactivate()
	}
	m.mu.Lock()
	recorder := m.recorder
	m.mu.Unlock()

	var err error
	if recorder != nil && len(trackers) > 0 {
		err = recorder.RecordNow(ctx, trackers...)
	}
	for _, t := range trackers {
		t.Destroy()
	}
	m.mu.Lock()
	m.trackers = map[string]*Tracker{}
	m.focused = ""
	m.mu.Unlock()
	return err
}
