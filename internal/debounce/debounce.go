// Package debounce coalesces bursts of values into a single delayed effect.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs effect with the last value passed to Call once no further
// call arrives for the configured window.
type Debouncer[T any] struct {
	mu      sync.Mutex
	window  time.Duration
	effect  func(T)
	timer   *time.Timer
	gen     uint64
	pending T
	stopped bool
}

// New creates a Debouncer. effect runs on its own goroutine.
func New[T any](window time.Duration, effect func(T)) *Debouncer[T] {
	return &Debouncer[T]{
		window: window,
		effect: effect,
	}
}

// Call records value and restarts the window. It never blocks on the effect.
func (d *Debouncer[T]) Call(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending = value
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

// fire runs the effect unless a later Call or Stop superseded this timer.
// Stop on a timer whose callback already started cannot prevent it, so the
// generation check is what discards stale firings.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	value := d.pending
	var zero T
	d.pending = zero
	d.timer = nil
	d.mu.Unlock()

	d.effect(value)
}

// Pending reports whether an effect is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil && !d.stopped
}

// Stop cancels a scheduled effect and makes later calls no-ops.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
