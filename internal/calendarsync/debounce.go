package calendarsync

import (
	"sync"
	"time"
)

// debounceDelay is the fixed coalescing delay for platform calendar
// change notifications (spec.md §4.8, "Debounce").
const debounceDelay = 500 * time.Millisecond

// Debouncer coalesces a burst of Notify calls into a single fire after
// the quiet period elapses, re-arming on every call during the burst
// (spec.md §4.8, "a subsequent change cancels the pending tick and
// re-schedules; only the final tick does the work"). Cancel is
// idempotent (spec.md §5).
type Debouncer struct {
	fire func()

	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

// NewDebouncer returns a Debouncer that calls fire once per coalesced
// burst of Notify calls, debounceDelay after the last one.
func NewDebouncer(fire func()) *Debouncer {
	return &Debouncer{fire: fire}
}

// Notify records one change event, re-arming the quiet-period timer.
func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelled {
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(debounceDelay, d.fire)
		return
	}
	d.timer.Reset(debounceDelay)
}

// Cancel stops any pending tick. Idempotent.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelled {
		return
	}
	d.cancelled = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
