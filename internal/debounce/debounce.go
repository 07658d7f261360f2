// Package debounce coalesces bursts of triggers into a single delayed call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs action once delay has elapsed without a new Trigger.
type Debouncer struct {
	action func()
	delay  time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64 // bumped on every Trigger/Cancel so stale timers do nothing
}

// New returns a Debouncer for action. A non-positive delay fires on the next
// scheduler tick.
func New(action func(), delay time.Duration) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{action: action, delay: delay}
}

// Wrap returns the trigger and cancel functions of a new Debouncer.
func Wrap(action func(), delay time.Duration) (trigger func(), cancel func()) {
	d := New(action, delay)
	return d.Trigger, d.Cancel
}

// Trigger restarts the delay window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.action()
}

// Cancel drops any pending invocation.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending invocation immediately on the caller's goroutine and
// reports whether one was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return false
	}
	d.gen++
	d.timer.Stop()
	d.timer = nil
	d.mu.Unlock()

	d.action()
	return true
}
