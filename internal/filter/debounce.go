package filter

import (
	"sync"
	"time"
)

// stopper is the part of *time.Timer the debouncer needs.
type stopper interface {
	Stop() bool
}

// afterFunc schedules fn after d. It is time.AfterFunc outside of tests.
type afterFunc func(d time.Duration, fn func()) stopper

func realAfterFunc(d time.Duration, fn func()) stopper {
	return time.AfterFunc(d, fn)
}

// Debouncer delays a function until no new call has arrived for the
// configured delay. At most one call is pending at any time; a new call
// replaces it.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	after   afterFunc
	timer   stopper
	pending func()
	seq     uint64
	running int
	idle    *sync.Cond
}

// NewDebouncer creates a Debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return newDebouncer(delay, realAfterFunc)
}

func newDebouncer(delay time.Duration, after afterFunc) *Debouncer {
	if after == nil {
		after = realAfterFunc
	}
	d := &Debouncer{delay: delay, after: after}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Debounce schedules fn, cancelling any call still pending.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = fn
	d.timer = d.after(d.delay, func() { d.fire(seq) })
}

// fire runs the pending call if it is still the latest one. A timer that
// lost the race with a newer Debounce call does nothing.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.running++
	d.mu.Unlock()

	defer d.done()
	fn()
}

func (d *Debouncer) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running--
	if d.running == 0 {
		d.idle.Broadcast()
	}
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq++
}

// Flush runs the pending call immediately. It reports whether there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.seq++
	d.running++
	d.mu.Unlock()

	defer d.done()
	fn()
	return true
}

// Wait blocks until no call is running. It does not wait for a pending
// call; Flush or Cancel first to settle one.
func (d *Debouncer) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.running > 0 {
		d.idle.Wait()
	}
}

// Pending reports whether a call is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
