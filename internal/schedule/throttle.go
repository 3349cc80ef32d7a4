// Package schedule rate-limits render passes.
package schedule

import (
	"time"

	"github.com/verte-zerg/gazemap/internal/clock"
)

// DefaultInterval is the minimum spacing between render passes.
const DefaultInterval = 100 * time.Millisecond

// Throttle runs at most one render per interval with a trailing pass, so
// the last trigger in a burst is always rendered.
type Throttle struct {
	clock    clock.Clock
	interval time.Duration
	render   func()

	last    time.Time
	ran     bool
	pending clock.Timer
}

// New returns a throttle that calls render on the clock's goroutine.
func New(c clock.Clock, interval time.Duration, render func()) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{clock: c, interval: interval, render: render}
}

// Trigger renders now when the interval has elapsed since the last pass.
// Otherwise it replaces any pending pass with one at the remaining delay.
func (t *Throttle) Trigger() {
	now := t.clock.Now()
	elapsed := now.Sub(t.last)
	if !t.ran || elapsed >= t.interval {
		t.stopPending()
		t.run()
		return
	}
	t.stopPending()
	t.pending = t.clock.AfterFunc(t.interval-elapsed, func() {
		t.pending = nil
		t.run()
	})
}

// Cancel drops the pending pass, if any.
func (t *Throttle) Cancel() {
	t.stopPending()
}

// Pending reports whether a deferred pass is armed.
func (t *Throttle) Pending() bool {
	return t.pending != nil
}

func (t *Throttle) run() {
	t.last = t.clock.Now()
	t.ran = true
	t.render()
}

func (t *Throttle) stopPending() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
