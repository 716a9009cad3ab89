package calendarsync_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carlinkd/cartrustd/internal/calendarsync"
)

func TestTimeWindowValidate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	valid := calendarsync.TimeWindow{From: now, To: now.Add(time.Hour), Refresh: now.Add(30 * time.Minute)}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	invalid := calendarsync.TimeWindow{From: now, To: now}
	if err := invalid.Validate(); !errors.Is(err, calendarsync.ErrInvalidWindow) {
		t.Errorf("Validate() = %v, want ErrInvalidWindow", err)
	}
}

func TestTimeWindowRangeConvertsToWholeSeconds(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	w := calendarsync.TimeWindow{From: now, To: now.Add(2 * time.Hour)}
	r := w.Range()
	if r.FromSeconds != 1_700_000_000 || r.ToSeconds != 1_700_000_000+7200 {
		t.Errorf("Range() = %+v, want {1700000000 1700007200}", r)
	}
}

type recordingSupplier struct {
	mu      sync.Mutex
	windows []calendarsync.TimeWindow
	next    calendarsync.TimeWindow
}

func (s *recordingSupplier) NextWindow() (calendarsync.TimeWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, s.next)
	return s.next, nil
}

func TestWindowSchedulerFiresAndReschedules(t *testing.T) {
	t.Parallel()

	now := time.Now()
	initial := calendarsync.TimeWindow{From: now, To: now.Add(time.Hour), Refresh: now.Add(20 * time.Millisecond)}
	second := calendarsync.TimeWindow{From: now.Add(time.Hour), To: now.Add(2 * time.Hour), Refresh: now.Add(365 * 24 * time.Hour)}
	supplier := &recordingSupplier{next: second}

	var got calendarsync.TimeWindow
	done := make(chan struct{})
	sched := calendarsync.NewWindowScheduler(supplier, initial, func(w calendarsync.TimeWindow) {
		got = w
		close(done)
	})
	defer sched.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh callback never fired")
	}

	if !got.To.Equal(second.To) {
		t.Errorf("refreshed window = %+v, want %+v", got, second)
	}
	if current := sched.Current(); !current.To.Equal(second.To) {
		t.Errorf("Current() = %+v, want %+v", current, second)
	}
}

func TestWindowSchedulerCancelIsIdempotentAndStopsFurtherRefresh(t *testing.T) {
	t.Parallel()

	now := time.Now()
	initial := calendarsync.TimeWindow{From: now, To: now.Add(time.Hour), Refresh: now.Add(10 * time.Millisecond)}
	supplier := &recordingSupplier{next: calendarsync.TimeWindow{From: now, To: now.Add(time.Hour), Refresh: now.Add(20 * time.Millisecond)}}

	fired := make(chan struct{}, 1)
	sched := calendarsync.NewWindowScheduler(supplier, initial, func(calendarsync.TimeWindow) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	sched.Cancel()
	sched.Cancel() // idempotent

	select {
	case <-fired:
		t.Fatal("refresh fired after Cancel")
	case <-time.After(100 * time.Millisecond):
	}
}
