package calendarsync_test

import (
	"sync"
	"testing"
	"time"

	"github.com/carlinkd/cartrustd/internal/calendarsync"
	"github.com/carlinkd/cartrustd/internal/wire"
)

type fakeProvider struct {
	mu        sync.Mutex
	keys      []string
	calendars map[string]wire.Calendar
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calendars: make(map[string]wire.Calendar)}
}

func (p *fakeProvider) TrackedCalendarKeys(string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (p *fakeProvider) ReadCalendar(_, key string, _ wire.TimeRange) (wire.Calendar, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.calendars[key]
	return cal, ok, nil
}

func (p *fakeProvider) setCalendar(cal wire.Calendar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calendars == nil {
		p.calendars = make(map[string]wire.Calendar)
	}
	p.calendars[cal.Key] = cal
	for _, k := range p.keys {
		if k == cal.Key {
			return
		}
	}
	p.keys = append(p.keys, cal.Key)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []wire.UpdateCalendars
	ch   chan wire.UpdateCalendars
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan wire.UpdateCalendars, 16)}
}

func (s *fakeSender) SendCalendarMessage(_ string, payload wire.UpdateCalendars) error {
	s.mu.Lock()
	s.sent = append(s.sent, payload)
	s.mu.Unlock()
	s.ch <- payload
	return nil
}

func (s *fakeSender) waitForSend(t *testing.T, timeout time.Duration) wire.UpdateCalendars {
	t.Helper()
	select {
	case p := <-s.ch:
		return p
	case <-time.After(timeout):
		t.Fatal("timed out waiting for SendCalendarMessage")
		return wire.UpdateCalendars{}
	}
}

type fixedWindowSupplier struct {
	window calendarsync.TimeWindow
}

func (f fixedWindowSupplier) NextWindow() (calendarsync.TimeWindow, error) {
	return f.window, nil
}

func farFutureWindow() calendarsync.TimeWindow {
	now := time.Unix(1_700_000_000, 0)
	return calendarsync.TimeWindow{
		From:    now,
		To:      now.Add(30 * 24 * time.Hour),
		Refresh: now.Add(24 * time.Hour * 365), // far enough out to never fire during a test
	}
}

func waitForStatus(t *testing.T, status *calendarsync.StatusTracker, peerID string, want calendarsync.SyncStatus) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if status.Get(peerID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status for %s = %v, want %v", peerID, status.Get(peerID), want)
}

func TestSourceLegacyPeerSendsReplaceThenSwitchesToUpdateAfterAcknowledge(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.setCalendar(wire.Calendar{Key: "C1", Events: []wire.Event{{Key: "E1", Title: "Standup"}}})
	sender := newFakeSender()
	status := calendarsync.NewStatusTracker(nil)

	src := calendarsync.NewSource(provider, sender, status, nil)
	window := farFutureWindow()
	src.AddPeer("peer-1", window, fixedWindowSupplier{window: window})

	src.NotifyChange("peer-1")
	first := sender.waitForSend(t, 2*time.Second)
	if len(first.Calendars) != 1 || first.Calendars[0].Action != wire.SyncActionReplace {
		t.Fatalf("first send = %+v, want single REPLACE calendar", first)
	}
	waitForStatus(t, status, "peer-1", calendarsync.StatusClean)

	src.HandleAcknowledge("peer-1", calendarsync.ProtocolVersionUpdatable)

	provider.setCalendar(wire.Calendar{Key: "C1", Events: []wire.Event{{Key: "E1", Title: "Brunch"}}})
	src.NotifyChange("peer-1")
	second := sender.waitForSend(t, 2*time.Second)
	if len(second.Calendars) != 1 || second.Calendars[0].Action != wire.SyncActionUnchanged {
		t.Fatalf("second send = %+v, want diff with calendar UNCHANGED wrapping an event UPDATE", second)
	}
	if len(second.Calendars[0].Events) != 1 || second.Calendars[0].Events[0].Action != wire.SyncActionUpdate {
		t.Fatalf("second send events = %+v, want single UPDATE", second.Calendars[0].Events)
	}
}

func TestSourceDebounceCoalescesBurst(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.setCalendar(wire.Calendar{Key: "C1"})
	sender := newFakeSender()

	src := calendarsync.NewSource(provider, sender, nil, nil)
	window := farFutureWindow()
	src.AddPeer("peer-1", window, fixedWindowSupplier{window: window})

	src.NotifyChange("peer-1")
	time.Sleep(100 * time.Millisecond)
	src.NotifyChange("peer-1")
	time.Sleep(100 * time.Millisecond)
	src.NotifyChange("peer-1")

	sender.waitForSend(t, 2*time.Second)

	select {
	case p := <-sender.ch:
		t.Fatalf("received a second send from a single coalesced burst: %+v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSourceDisableClearsStateAndSendsDisable(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	sender := newFakeSender()
	status := calendarsync.NewStatusTracker(nil)

	src := calendarsync.NewSource(provider, sender, status, nil)
	window := farFutureWindow()
	src.AddPeer("peer-1", window, fixedWindowSupplier{window: window})

	if err := src.Disable("peer-1"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	disable := sender.waitForSend(t, time.Second)
	if disable.Type != wire.UpdateTypeDisable {
		t.Errorf("Disable send type = %v, want DISABLE", disable.Type)
	}

	// A second NotifyChange for the disabled peer must be a no-op: no
	// registered peer state remains.
	src.NotifyChange("peer-1")
	select {
	case p := <-sender.ch:
		t.Fatalf("NotifyChange after Disable produced a send: %+v", p)
	case <-time.After(700 * time.Millisecond):
	}
}
