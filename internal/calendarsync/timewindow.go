package calendarsync

import (
	"errors"
	"sync"
	"time"

	"github.com/carlinkd/cartrustd/internal/wire"
)

// ErrInvalidWindow is returned when a TimeWindow's From is not strictly
// before its To instant.
var ErrInvalidWindow = errors.New("calendarsync: invalid time window")

// TimeWindow is the [from, to) range a source tracks for one calendar,
// plus the instant at which it should be refreshed (spec.md §4.8,
// "Time-window lifecycle"; GLOSSARY, "TimeWindow").
type TimeWindow struct {
	From    time.Time
	To      time.Time
	Refresh time.Time
}

// Validate reports whether w's bounds are well-formed.
func (w TimeWindow) Validate() error {
	if !w.From.Before(w.To) {
		return ErrInvalidWindow
	}
	return nil
}

// Range converts w to the wire representation used inside a Calendar
// message (whole seconds since the Unix epoch).
func (w TimeWindow) Range() wire.TimeRange {
	return wire.TimeRange{FromSeconds: w.From.Unix(), ToSeconds: w.To.Unix()}
}

// WindowSupplier produces a fresh TimeWindow when the current one's
// refresh instant arrives.
type WindowSupplier interface {
	NextWindow() (TimeWindow, error)
}

// WindowScheduler owns the one-shot refresh task for a single peer's
// tracked windows (spec.md §4.8: "the FSM schedules a one-shot task at
// window.refresh... a fresh window is requested; all tracked calendar
// time ranges are atomically updated... before any outbound send; then
// the diff/send cycle runs; then a new one-shot is scheduled"). Modeled
// as an explicit handle with an idempotent Cancel, per spec.md §9
// ("Scheduled tasks are modeled as explicit handles with cancel(); no
// implicit timer pools").
type WindowScheduler struct {
	supplier  WindowSupplier
	onRefresh func(TimeWindow)

	mu        sync.Mutex
	current   TimeWindow
	timer     *time.Timer
	cancelled bool
}

// NewWindowScheduler starts the refresh timer for initial and returns the
// scheduler. onRefresh is invoked with the new window already installed
// as Current(); it is the caller's job to run the diff/send cycle from
// inside onRefresh.
func NewWindowScheduler(supplier WindowSupplier, initial TimeWindow, onRefresh func(TimeWindow)) *WindowScheduler {
	s := &WindowScheduler{supplier: supplier, onRefresh: onRefresh, current: initial}
	s.timer = time.AfterFunc(time.Until(initial.Refresh), s.fire)
	return s
}

// Current returns the window most recently installed.
func (s *WindowScheduler) Current() TimeWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *WindowScheduler) fire() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	next, err := s.supplier.NextWindow()
	if err != nil {
		// Retry on the same cadence rather than stalling forever; the
		// supplier is expected to be a pure local computation (e.g. "now
		// + N days") that does not fail in steady state.
		s.timer.Reset(time.Minute)
		s.mu.Unlock()
		return
	}
	s.current = next
	s.timer.Reset(time.Until(next.Refresh))
	s.mu.Unlock()

	s.onRefresh(next)
}

// Cancel stops the refresh timer. Idempotent (spec.md §5, "cancel is
// idempotent").
func (s *WindowScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.timer.Stop()
}
