// Package tracker turns a document's undo history into writing statistics.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/wordflow/internal/debounce"
	"github.com/verte-zerg/wordflow/internal/metrics"
	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/timer"
	"github.com/verte-zerg/wordflow/internal/wordcount"
)

const (
	// DefaultDebounce delays reconciliation until typing pauses.
	DefaultDebounce = time.Second
	// DefaultResetGrace lets in-flight reconciliation land before a reset.
	DefaultResetGrace = 100 * time.Millisecond
)

// ErrDocumentClosed is returned by operations on a destroyed tracker.
var ErrDocumentClosed = errors.New("document closed")

// Document is what a host exposes about one open document.
type Document interface {
	// Path identifies the document.
	Path() string
	ChangeLog() (model.ChangeLog, error)
	Text() (string, error)
	// Subscribe registers fn for change notifications and returns a function
	// that removes it.
	Subscribe(fn func()) func()
}

// Options configures a Tracker.
type Options struct {
	Debounce    time.Duration
	ClearMargin int
	ChainLimit  int
	// Cadence is the status refresh interval of both time accumulators.
	Cadence    time.Duration
	Idle       time.Duration
	ResetGrace time.Duration
	Clock      timer.Clock
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// OnIdle is called after the active accumulator paused for inactivity.
	OnIdle func(path string, mode model.ViewMode)
	// OnResume is called when activity resumed an idle-paused accumulator.
	OnResume func(path string, mode model.ViewMode)
}

// Tracker accumulates statistics for one document.
type Tracker struct {
	doc  Document
	path string
	opts Options
	log  *slog.Logger

	// passMu serialises reconciliation passes so history lengths are read
	// and written by one pass at a time.
	passMu sync.Mutex

	mu            sync.Mutex
	rec           Reconciler
	counters      Counters
	active        bool
	mode          model.ViewMode
	lastModified  time.Time
	resetAt       time.Time
	originalWords int
	docWords      int
	unsubscribe   func()
	destroyed     bool
	subs          map[int]func(model.Snapshot)
	nextSub       int

	edit      *timer.Accumulator
	read      *timer.Accumulator
	debouncer *debounce.Debouncer
}

// New creates an inactive tracker and takes the document's current history
// and word count as the baseline.
func New(doc Document, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ResetGrace <= 0 {
		opts.ResetGrace = DefaultResetGrace
	}
	if opts.Clock == nil {
		opts.Clock = timer.SystemClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		doc:  doc,
		path: doc.Path(),
		opts: opts,
		log:  logger.With("path", doc.Path()),
		rec:  Reconciler{ClearMargin: opts.ClearMargin, ChainLimit: opts.ChainLimit},
		subs: map[int]func(model.Snapshot){},
	}
	t.resetAt = opts.Clock.Now()
	if log, err := doc.ChangeLog(); err == nil {
		t.rec.Sync(log)
	}
	if text, err := doc.Text(); err == nil {
		t.originalWords = wordcount.CountText(text)
		t.docWords = t.originalWords
	}
	t.edit = t.newAccumulator(model.ModeEdit)
	t.read = t.newAccumulator(model.ModeRead)
	t.debouncer = debounce.New(opts.Debounce, t.reconcile)
	return t
}

func (t *Tracker) newAccumulator(mode model.ViewMode) *timer.Accumulator {
	return timer.New(timer.Options{
		Cadence: t.opts.Cadence,
		Idle:    t.opts.Idle,
		Clock:   t.opts.Clock,
		OnTick:  func(time.Duration) { t.publish() },
		OnIdle: func(elapsed time.Duration) {
			t.log.Debug("paused for inactivity", "mode", mode.String(), "elapsed", elapsed)
			if t.opts.OnIdle != nil {
				t.opts.OnIdle(t.path, mode)
			}
		},
		OnResume: func() {
			if t.opts.OnResume != nil {
				t.opts.OnResume(t.path, mode)
			}
		},
	})
}

// Path returns the tracked document's identity.
func (t *Tracker) Path() string {
	return t.path
}

// Activate starts tracking in mode. Switching mode while active moves the
// time accounting to the other accumulator.
func (t *Tracker) Activate(mode model.ViewMode) {
	t.mu.Lock()
	if t.destroyed || (t.active && t.mode == mode) {
		t.mu.Unlock()
		return
	}
	if !t.active {
		t.unsubscribe = t.doc.Subscribe(t.onChange)
		t.active = true
	}
	t.mode = mode
	t.mu.Unlock()

	if mode == model.ModeEdit {
		t.read.Pause()
		t.edit.Start()
	} else {
		t.edit.Pause()
		t.read.Start()
	}
	t.log.Debug("tracker activated", "mode", mode.String())
	t.publish()
}

// Deactivate reconciles pending changes, pauses both accumulators and stops
// listening to the document.
func (t *Tracker) Deactivate() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	t.debouncer.Flush()
	t.edit.Pause()
	t.read.Pause()
	if unsubscribe != nil {
		unsubscribe()
	}
	// A notification between the flush and the unsubscribe is reconciled
	// on the next activation.
	t.debouncer.Cancel()
	t.log.Debug("tracker deactivated")
	t.publish()
}

// Touch records reader activity, e.g. scrolling in read mode.
func (t *Tracker) Touch() {
	t.activeAccumulator().Touch()
}

// Settle runs a pending reconciliation immediately.
func (t *Tracker) Settle() {
	t.debouncer.Flush()
}

// MeetsThreshold reports whether the tracker should be recorded.
func (t *Tracker) MeetsThreshold(policy model.Threshold, minEditTime time.Duration) bool {
	return policy.Met(t.Snapshot(), minEditTime)
}

// ResetCounters waits for the grace delay, then takes the counts and times
// of flushed off the tracker. Passes that landed after flushed was taken are
// kept for the next record. The current word count, less the words those
// passes changed, becomes the new original.
func (t *Tracker) ResetCounters(ctx context.Context, flushed model.Snapshot) error {
	select {
	case <-time.After(t.opts.ResetGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	t.passMu.Lock()
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		t.passMu.Unlock()
		return ErrDocumentClosed
	}
	t.counters = Counters{
		AddedWords:   max(t.counters.AddedWords-flushed.AddedWords, 0),
		DeletedWords: max(t.counters.DeletedWords-flushed.DeletedWords, 0),
		EditedTimes:  max(t.counters.EditedTimes-flushed.EditedTimes, 0),
	}
	if text, err := t.doc.Text(); err == nil {
		t.docWords = wordcount.CountText(text)
	}
	t.originalWords = max(t.docWords-t.counters.ChangedWords(), 0)
	t.resetAt = t.opts.Clock.Now()
	t.mu.Unlock()
	t.passMu.Unlock()

	t.edit.SetElapsed(t.edit.Elapsed() - flushed.EditTime)
	t.read.SetElapsed(t.read.Elapsed() - flushed.ReadTime)
	t.publish()
	return nil
}

// Destroy stops all timers and listeners. The tracker is unusable after.
func (t *Tracker) Destroy() {
	t.Deactivate()
	t.mu.Lock()
	t.destroyed = true
	t.subs = map[int]func(model.Snapshot){}
	t.mu.Unlock()
	t.debouncer.Stop()
	t.edit.Destroy()
	t.read.Destroy()
}

// Destroyed reports whether Destroy was called.
func (t *Tracker) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// Snapshot copies the current statistics.
func (t *Tracker) Snapshot() model.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		Path:          t.path,
		EditedWords:   t.counters.EditedWords(),
		AddedWords:    t.counters.AddedWords,
		DeletedWords:  t.counters.DeletedWords,
		ChangedWords:  t.counters.ChangedWords(),
		EditedTimes:   t.counters.EditedTimes,
		EditTime:      t.edit.Elapsed(),
		ReadTime:      t.read.Elapsed(),
		DocWords:      t.docWords,
		OriginalWords: t.originalWords,
		LastModified:  t.lastModified,
		ResetAt:       t.resetAt,
		Active:        t.active,
		Mode:          t.mode,
	}
}

// Subscribe registers fn for update events and returns a function that
// removes it.
func (t *Tracker) Subscribe(fn func(model.Snapshot)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) onChange() {
	t.debouncer.Trigger()
	t.activeAccumulator().Touch()
}

func (t *Tracker) activeAccumulator() *timer.Accumulator {
	t.mu.Lock()
	mode := t.mode
	t.mu.Unlock()
	return t.accumulatorFor(mode)
}

func (t *Tracker) accumulatorFor(mode model.ViewMode) *timer.Accumulator {
	if mode == model.ModeRead {
		return t.read
	}
	return t.edit
}

// reconcile runs one pass over the document history.
func (t *Tracker) reconcile() {
	t.passMu.Lock()
	defer t.passMu.Unlock()

	log, err := t.doc.ChangeLog()
	if err != nil {
		t.log.Debug("skipping reconciliation", "err", err)
		return
	}
	text, err := t.doc.Text()
	if err != nil {
		t.log.Debug("skipping reconciliation", "err", err)
		return
	}

	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	pass := t.rec.Reconcile(log, text, &t.counters)
	if !pass.LastChange.IsZero() {
		t.lastModified = pass.LastChange
	}
	t.docWords = wordcount.CountText(text)
	t.mu.Unlock()

	if pass.Kind == PassDropped {
		t.log.Warn("inconsistent history, resynchronised",
			"done_diff", pass.DoneDiff, "undone_diff", pass.UndoneDiff, "cleared", pass.Cleared)
	} else {
		t.log.Debug("reconciled", "kind", pass.Kind.String(),
			"added", pass.AddedWords, "deleted", pass.DeletedWords, "edits", pass.EditedTimes)
	}
	t.opts.Metrics.ObservePass(pass.Kind.String(), pass.AddedWords, pass.DeletedWords, pass.Cleared > 0)
	t.publish()
}

func (t *Tracker) publish() {
	t.mu.Lock()
	if len(t.subs) == 0 {
		t.mu.Unlock()
		return
	}
	snap := t.snapshotLocked()
	subs := make([]func(model.Snapshot), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
