package calendarsync

import (
	"sync"

	"github.com/carlinkd/cartrustd/internal/wire"
)

// ShadowStore holds, per peer, the source's last-known view of what that
// peer holds -- the "previous" side of every diff cycle (spec.md §4.8;
// GLOSSARY, "Shadow"). Reads and writes are independent per peer key.
type ShadowStore struct {
	mu      sync.RWMutex
	shadows map[string][]wire.Calendar
}

// NewShadowStore returns an empty ShadowStore.
func NewShadowStore() *ShadowStore {
	return &ShadowStore{shadows: make(map[string][]wire.Calendar)}
}

// Get returns the shadow snapshot for peerID, or nil if none exists yet
// (an unseen peer behaves as an all-CREATE diff on its first cycle).
func (s *ShadowStore) Get(peerID string) []wire.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shadows[peerID]
}

// Set replaces the shadow snapshot for peerID.
func (s *ShadowStore) Set(peerID string, calendars []wire.Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shadows[peerID] = calendars
}

// Clear purges transient shadow state for peerID (spec.md §4.8,
// "Disable... clear local state for that peer").
func (s *ShadowStore) Clear(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shadows, peerID)
}
