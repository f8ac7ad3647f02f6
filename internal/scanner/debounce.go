package scanner

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet window before a triggered scan actually runs.
const DefaultDebounce = 250 * time.Millisecond

// Debouncer coalesces bursts of triggers into a single trailing-edge run.
// At most one run is in flight; a trigger arriving mid-run queues exactly
// one follow-up run.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	pending bool
	stopped bool
}

// NewDebouncer wraps fn with a trailing-edge debounce of delay.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger requests a run. Repeated triggers within the quiet window collapse
// into one.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.running {
		d.pending = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.fn()

	d.mu.Lock()
	d.running = false
	rerun := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()
	if rerun {
		d.Trigger()
	}
}

// Stop cancels any scheduled run. A run already in flight completes.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
