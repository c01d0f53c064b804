// Package recorder decides when tracker statistics are persisted and fans
// them out to record targets.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/verte-zerg/wordflow/internal/metrics"
	"github.com/verte-zerg/wordflow/internal/model"
	"github.com/verte-zerg/wordflow/internal/tracker"
)

const (
	// DefaultThrottle is the minimum spacing of two flushes of the same scope.
	DefaultThrottle = 500 * time.Millisecond
	// DefaultMinEditTime is the edit time the time-based thresholds require.
	DefaultMinEditTime = time.Minute
	// NoticeTTL is how long failure notices stay visible.
	NoticeTTL = 5 * time.Second

	allKey = "all"
)

// Target persists a batch of snapshots.
type Target interface {
	Name() string
	Record(ctx context.Context, snaps []model.Snapshot) error
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(msg string, ttl time.Duration)
}

// Source lists the trackers RecordAll considers.
type Source interface {
	Trackers() []*tracker.Tracker
}

// Options configures a Scheduler.
type Options struct {
	Threshold   model.Threshold
	MinEditTime time.Duration
	Throttle    time.Duration
	Notifier    Notifier
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Scheduler flushes trackers to every target. Calls of the same scope are
// throttled on the leading edge: the first runs, callers arriving while it
// runs share its result and callers arriving within the window after it are
// dropped.
type Scheduler struct {
	src   Source
	log   *slog.Logger
	opts  Options
	group singleflight.Group

	mu        sync.RWMutex
	targets   []Target
	threshold model.Threshold
	minEdit   time.Duration

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a scheduler over src.
func New(src Source, opts Options, targets ...Target) *Scheduler {
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	if opts.MinEditTime <= 0 {
		opts.MinEditTime = DefaultMinEditTime
	}
	if opts.Threshold == "" {
		opts.Threshold = model.ThresholdEdits
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		src:       src,
		log:       logger,
		opts:      opts,
		targets:   targets,
		threshold: opts.Threshold,
		minEdit:   opts.MinEditTime,
		limiters:  map[string]*rate.Limiter{},
	}
}

// SetTargets replaces the record targets.
func (s *Scheduler) SetTargets(targets []Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append([]Target(nil), targets...)
}

// Targets returns the current record targets.
func (s *Scheduler) Targets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Target(nil), s.targets...)
}

// SetPolicy replaces the recording threshold.
func (s *Scheduler) SetPolicy(threshold model.Threshold, minEditTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	if minEditTime > 0 {
		s.minEdit = minEditTime
	}
}

// Record flushes one tracker if it meets the threshold, then resets it.
func (s *Scheduler) Record(ctx context.Context, t *tracker.Tracker) error {
	return s.throttled(ctx, "doc:"+t.Path(), func(ctx context.Context) error {
		return s.flush(ctx, []*tracker.Tracker{t})
	})
}

// RecordAll flushes every qualifying tracker as one batch.
func (s *Scheduler) RecordAll(ctx context.Context) error {
	return s.throttled(ctx, allKey, func(ctx context.Context) error {
		return s.flush(ctx, s.src.Trackers())
	})
}

// RecordNow flushes trackers without throttling, e.g. on close or exit.
func (s *Scheduler) RecordNow(ctx context.Context, trackers ...*tracker.Tracker) error {
	return s.flush(ctx, trackers)
}

func (s *Scheduler) throttled(ctx context.Context, key string, fn func(context.Context) error) error {
	_, err, shared := s.group.Do(key, func() (any, error) {
		if !s.limiter(key).Allow() {
			s.log.Debug("record throttled", "scope", key)
			return nil, nil
		}
		return nil, fn(ctx)
	})
	if shared {
		s.log.Debug("record joined in-flight flush", "scope", key)
	}
	return err
}

func (s *Scheduler) limiter(key string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.opts.Throttle), 1)
		s.limiters[key] = lim
	}
	return lim
}

func (s *Scheduler) flush(ctx context.Context, trackers []*tracker.Tracker) error {
	start := time.Now()
	defer func() { s.opts.Metrics.ObserveFlush(time.Since(start)) }()

	s.mu.RLock()
	threshold, minEdit := s.threshold, s.minEdit
	targets := append([]Target(nil), s.targets...)
	s.mu.RUnlock()

	eligible := make([]*tracker.Tracker, 0, len(trackers))
	snaps := make([]model.Snapshot, 0, len(trackers))
	for _, t := range trackers {
		if t.Destroyed() {
			continue
		}
		t.Settle()
		snap := t.Snapshot()
		if !threshold.Met(snap, minEdit) {
			continue
		}
		eligible = append(eligible, t)
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil
	}
	if len(targets) == 0 {
		s.log.Debug("no record targets configured", "snapshots", len(snaps))
		return nil
	}

	var errs []error
	persisted := 0
	for _, target := range targets {
		err := target.Record(ctx, snaps)
		s.opts.Metrics.ObserveTarget(target.Name(), err)
		if err != nil {
			s.log.Error("record target failed", "target", target.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", target.Name(), err))
			continue
		}
		persisted++
	}
	if len(errs) > 0 {
		s.notify(snaps)
	}
	// Keep the counts for the next flush when nothing took them.
	if persisted == 0 {
		return errors.Join(errs...)
	}

	var g errgroup.Group
	for i, t := range eligible {
		g.Go(func() error {
			if err := t.ResetCounters(ctx, snaps[i]); err != nil && !errors.Is(err, tracker.ErrDocumentClosed) {
				return fmt.Errorf("failed to reset %s: %w", t.Path(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	s.log.Info("recorded", "snapshots", len(snaps), "targets", persisted)
	return errors.Join(errs...)
}

func (s *Scheduler) notify(snaps []model.Snapshot) {
	if s.opts.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("edits from %d notes could not be recorded", len(snaps))
	if len(snaps) == 1 {
		msg = fmt.Sprintf("edits from %s could not be recorded", snaps[0].Path)
	}
	s.opts.Notifier.Notify(msg, NoticeTTL)
}
