package calendarsync

import (
	"log/slog"
	"sync"

	"github.com/carlinkd/cartrustd/internal/wire"
)

// ProtocolVersionUpdatable is the minimum peer-reported protocol version
// at which the source may send incremental UPDATE diffs instead of full
// REPLACE snapshots (spec.md §4.8: "If the peer supports updates
// (protocol >= UPDATABLE)..."; spec.md §9 "Open questions" leaves the
// exact cutoff undefined -- pinned here to 1, the first version past the
// always-legacy 0).
const ProtocolVersionUpdatable uint32 = 1

// Provider reads the source platform's calendar content for one peer's
// tracked keys within a time window (spec.md §4.8, step 2: "For each
// tracked calendar key, re-read the current calendar... A calendar that
// cannot be read yields no entry in current").
type Provider interface {
	TrackedCalendarKeys(peerID string) []string
	ReadCalendar(peerID, key string, window wire.TimeRange) (cal wire.Calendar, ok bool, err error)
}

// Sender delivers an outbound calendar-sync payload to peerID's
// calendar-sync feature recipient (spec.md §4.8, step 5: "Send with
// operation = CLIENT_MESSAGE... type field inside the payload set to
// RECEIVE").
type Sender interface {
	SendCalendarMessage(peerID string, payload wire.UpdateCalendars) error
}

type sourcePeer struct {
	protocolVersion uint32
	windowSched     *WindowScheduler
	debouncer       *Debouncer
}

// Source is the handheld-side calendar-sync controller (spec.md §4.8,
// "Source").
type Source struct {
	provider Provider
	sender   Sender
	shadow   *ShadowStore
	status   *StatusTracker
	logger   *slog.Logger

	mu    sync.Mutex
	peers map[string]*sourcePeer
}

// NewSource builds a Source. logger may be nil.
func NewSource(provider Provider, sender Sender, status *StatusTracker, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Source{
		provider: provider,
		sender:   sender,
		shadow:   NewShadowStore(),
		status:   status,
		logger:   logger.With(slog.String("component", "calendarsync.source")),
		peers:    make(map[string]*sourcePeer),
	}
}

// AddPeer registers peerID for sync, starting its debounce handle and
// window-refresh one-shot (spec.md §4.8, "Time-window lifecycle": "At
// startup, the FSM schedules a one-shot task at window.refresh").
// The new peer starts in legacy mode (protocol version 0) until its
// first ACKNOWLEDGE arrives (spec.md §4.8, "Legacy mode").
func (s *Source) AddPeer(peerID string, initialWindow TimeWindow, supplier WindowSupplier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer := &sourcePeer{}
	peer.windowSched = NewWindowScheduler(supplier, initialWindow, func(TimeWindow) {
		s.runCycle(peerID)
	})
	peer.debouncer = NewDebouncer(func() {
		s.runCycle(peerID)
	})
	s.peers[peerID] = peer
}

// NotifyChange records a platform calendar change for peerID, coalescing
// bursts per the 500ms debounce window.
func (s *Source) NotifyChange(peerID string) {
	s.mu.Lock()
	peer, ok := s.peers[peerID]
	s.mu.Unlock()
	if !ok {
		return
	}
	peer.debouncer.Notify()
}

// HandleAcknowledge records the peer's reported protocol version from an
// ACKNOWLEDGE reply, upgrading out of legacy mode on first receipt
// (spec.md §4.8, "Upon the first reply, the source updates the peer's
// version and may switch to UPDATE mode thereafter").
func (s *Source) HandleAcknowledge(peerID string, protocolVersion uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if peer, ok := s.peers[peerID]; ok {
		peer.protocolVersion = protocolVersion
	}
}

// Disable clears all local state for peerID and sends a DISABLE message
// (spec.md §4.8, "Source-initiated disable").
func (s *Source) Disable(peerID string) error {
	s.mu.Lock()
	peer, ok := s.peers[peerID]
	delete(s.peers, peerID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	peer.debouncer.Cancel()
	peer.windowSched.Cancel()
	s.shadow.Clear(peerID)
	if s.status != nil {
		s.status.Clear(peerID)
	}

	err := s.sender.SendCalendarMessage(peerID, wire.UpdateCalendars{Type: wire.UpdateTypeDisable})
	if err != nil {
		s.logger.Warn("disable send failed", slog.String("peer", peerID), slog.Any("error", err))
	}
	return err
}

// runCycle performs one debounced (or refresh-triggered) sync cycle for
// peerID: read current, update the shadow, diff, and send (spec.md §4.8,
// "Source" steps 1-5).
func (s *Source) runCycle(peerID string) {
	s.mu.Lock()
	peer, ok := s.peers[peerID]
	s.mu.Unlock()
	if !ok {
		return
	}

	window := peer.windowSched.Current()
	keys := s.provider.TrackedCalendarKeys(peerID)

	current := make([]wire.Calendar, 0, len(keys))
	for _, key := range keys {
		cal, ok, err := s.provider.ReadCalendar(peerID, key, window.Range())
		if err != nil {
			s.logger.Warn("calendar read failed", slog.String("peer", peerID), slog.String("calendar", key), slog.Any("error", err))
			continue
		}
		if !ok {
			// Unreadable calendar: no entry in current, which the diff
			// treats as a deletion against the shadow.
			continue
		}
		current = append(current, cal)
	}

	previous := s.shadow.Get(peerID)
	s.shadow.Set(peerID, current)

	var payload wire.UpdateCalendars
	s.mu.Lock()
	protocolVersion := peer.protocolVersion
	s.mu.Unlock()

	if protocolVersion >= ProtocolVersionUpdatable {
		diff := DiffCalendars(previous, current)
		if len(diff) == 0 {
			return
		}
		payload = wire.UpdateCalendars{Type: wire.UpdateTypeReceive, Calendars: diff}
	} else {
		replace := make([]wire.Calendar, len(current))
		for i, cal := range current {
			cal.Action = wire.SyncActionReplace
			replace[i] = cal
		}
		payload = wire.UpdateCalendars{Type: wire.UpdateTypeReceive, Calendars: replace}
	}

	if s.status != nil {
		s.status.Set(peerID, StatusPending)
	}
	if err := s.sender.SendCalendarMessage(peerID, payload); err != nil {
		s.logger.Warn("sync send failed", slog.String("peer", peerID), slog.Any("error", err))
		if s.status != nil {
			s.status.Set(peerID, StatusFailed)
		}
		return
	}
	if s.status != nil {
		s.status.Set(peerID, StatusClean)
	}
}
