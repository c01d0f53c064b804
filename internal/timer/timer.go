// Package timer accumulates active time across start/pause cycles.
package timer

import (
	"sync"
	"time"
)

// DefaultCadence is the interval between observer updates.
const DefaultCadence = time.Minute

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Options configures an Accumulator.
type Options struct {
	// Cadence is the interval between OnTick calls while running.
	Cadence time.Duration
	// Idle pauses the accumulator after this long without Touch. Zero disables.
	Idle  time.Duration
	Clock Clock
	// OnTick receives the elapsed time on every cadence boundary, start and pause.
	OnTick func(elapsed time.Duration)
	// OnIdle is called after an automatic pause.
	OnIdle func(elapsed time.Duration)
	// OnResume is called when Touch restarts an idle-paused accumulator.
	OnResume func()
}

// Accumulator measures time spent running. Observers are notified on a fixed
// cadence whose phase survives pauses.
type Accumulator struct {
	mu   sync.Mutex
	opts Options

	running     bool
	startedAt   time.Time
	accumulated time.Duration

	// toNext is the time left until the next cadence boundary, carried over pauses.
	toNext   time.Duration
	armedAt  time.Time
	armedFor time.Duration
	tick     *time.Timer
	idle     *time.Timer
	// gen and idleGen invalidate callbacks of timers that were stopped too late.
	gen     uint64
	idleGen uint64

	idlePaused bool
	destroyed  bool
}

// New creates a paused accumulator.
func New(opts Options) *Accumulator {
	if opts.Cadence <= 0 {
		opts.Cadence = DefaultCadence
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Accumulator{opts: opts}
}

// Start resumes accumulation. It is a no-op when running or destroyed.
func (a *Accumulator) Start() {
	a.mu.Lock()
	if !a.startLocked() {
		a.mu.Unlock()
		return
	}
	elapsed := a.elapsedLocked()
	a.mu.Unlock()
	a.emit(a.opts.OnTick, elapsed)
}

func (a *Accumulator) startLocked() bool {
	if a.running || a.destroyed {
		return false
	}
	a.running = true
	a.idlePaused = false
	a.startedAt = a.opts.Clock.Now()
	if a.toNext <= 0 {
		a.toNext = a.opts.Cadence - a.accumulated%a.opts.Cadence
	}
	a.armLocked(a.toNext)
	a.armIdleLocked()
	return true
}

// Pause stops accumulation and keeps the cadence phase.
func (a *Accumulator) Pause() {
	a.mu.Lock()
	if !a.pauseLocked() {
		a.mu.Unlock()
		return
	}
	a.idlePaused = false
	elapsed := a.accumulated
	a.mu.Unlock()
	a.emit(a.opts.OnTick, elapsed)
}

func (a *Accumulator) pauseLocked() bool {
	if !a.running {
		return false
	}
	now := a.opts.Clock.Now()
	a.accumulated += now.Sub(a.startedAt)
	a.running = false
	remaining := a.armedFor - now.Sub(a.armedAt)
	if remaining < 0 {
		remaining = 0
	}
	a.toNext = remaining
	a.stopTimersLocked()
	return true
}

// Reset zeroes the accumulated time, restarts the cadence and resumes running.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.stopTimersLocked()
	a.running = false
	a.accumulated = 0
	a.toNext = 0
	a.startLocked()
	a.mu.Unlock()
	a.emit(a.opts.OnTick, 0)
}

// SetElapsed replaces the accumulated time, keeping the running state.
func (a *Accumulator) SetElapsed(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d < 0 {
		d = 0
	}
	a.accumulated = d
	if a.running {
		a.startedAt = a.opts.Clock.Now()
	}
}

// Elapsed returns the accumulated time, including the current run.
func (a *Accumulator) Elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.elapsedLocked()
}

func (a *Accumulator) elapsedLocked() time.Duration {
	if !a.running {
		return a.accumulated
	}
	return a.accumulated + a.opts.Clock.Now().Sub(a.startedAt)
}

// Running reports whether time is being accumulated.
func (a *Accumulator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// IdlePaused reports whether the last pause was automatic.
func (a *Accumulator) IdlePaused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idlePaused
}

// Touch records user activity. It postpones the idle pause of a running
// accumulator and resumes one that was paused for inactivity.
func (a *Accumulator) Touch() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	if a.running {
		a.armIdleLocked()
		a.mu.Unlock()
		return
	}
	if !a.idlePaused {
		a.mu.Unlock()
		return
	}
	a.startLocked()
	elapsed := a.elapsedLocked()
	a.mu.Unlock()
	if a.opts.OnResume != nil {
		a.opts.OnResume()
	}
	a.emit(a.opts.OnTick, elapsed)
}

// Destroy stops all timers. The accumulator cannot be started again.
func (a *Accumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		a.accumulated += a.opts.Clock.Now().Sub(a.startedAt)
		a.running = false
	}
	a.stopTimersLocked()
	a.destroyed = true
}

func (a *Accumulator) armLocked(d time.Duration) {
	a.armedAt = a.opts.Clock.Now()
	a.armedFor = d
	gen := a.gen
	a.tick = time.AfterFunc(d, func() { a.onBoundary(gen) })
}

func (a *Accumulator) armIdleLocked() {
	if a.opts.Idle <= 0 {
		return
	}
	if a.idle != nil {
		a.idle.Stop()
	}
	a.idleGen++
	gen, idleGen := a.gen, a.idleGen
	a.idle = time.AfterFunc(a.opts.Idle, func() { a.onIdle(gen, idleGen) })
}

func (a *Accumulator) stopTimersLocked() {
	a.gen++
	if a.tick != nil {
		a.tick.Stop()
		a.tick = nil
	}
	if a.idle != nil {
		a.idle.Stop()
		a.idle = nil
	}
}

func (a *Accumulator) onBoundary(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || !a.running {
		a.mu.Unlock()
		return
	}
	a.toNext = a.opts.Cadence
	a.armLocked(a.opts.Cadence)
	elapsed := a.elapsedLocked()
	a.mu.Unlock()
	a.emit(a.opts.OnTick, elapsed)
}

func (a *Accumulator) onIdle(gen, idleGen uint64) {
	a.mu.Lock()
	if gen != a.gen || idleGen != a.idleGen || !a.running {
		a.mu.Unlock()
		return
	}
	a.pauseLocked()
	a.idlePaused = true
	elapsed := a.accumulated
	a.mu.Unlock()
	a.emit(a.opts.OnIdle, elapsed)
	a.emit(a.opts.OnTick, elapsed)
}

func (a *Accumulator) emit(fn func(time.Duration), elapsed time.Duration) {
	if fn != nil {
		fn(elapsed)
	}
}
