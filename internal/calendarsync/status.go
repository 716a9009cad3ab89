package calendarsync

import "sync"

// SyncStatus is the observable outcome of a peer's most recent sync
// cycle.
type SyncStatus uint8

const (
	StatusClean SyncStatus = iota
	StatusPending
	StatusFailed
)

func (s SyncStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusFailed:
		return "Failed"
	default:
		return "Clean"
	}
}

// StatusTracker records the current SyncStatus per peer and notifies an
// optional observer on change (spec.md §9, "Observer interfaces...
// become typed message channels read by the peer actor"; this tracker is
// the calendarsync-local instance of that pattern, a plain callback
// rather than a channel since the source controller already runs on a
// single per-peer actor and needs no further hand-off).
type StatusTracker struct {
	onChange func(peerID string, status SyncStatus)

	mu       sync.Mutex
	statuses map[string]SyncStatus
}

// NewStatusTracker returns a tracker that calls onChange (if non-nil)
// whenever a peer's status actually changes.
func NewStatusTracker(onChange func(peerID string, status SyncStatus)) *StatusTracker {
	return &StatusTracker{onChange: onChange, statuses: make(map[string]SyncStatus)}
}

// Set updates peerID's status, firing onChange if it differs from the
// previously recorded value.
func (t *StatusTracker) Set(peerID string, status SyncStatus) {
	t.mu.Lock()
	prev, existed := t.statuses[peerID]
	changed := !existed || prev != status
	t.statuses[peerID] = status
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(peerID, status)
	}
}

// Get returns peerID's last recorded status (StatusClean if none).
func (t *StatusTracker) Get(peerID string) SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statuses[peerID]
}

// Clear removes peerID's tracked status.
func (t *StatusTracker) Clear(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, peerID)
}
