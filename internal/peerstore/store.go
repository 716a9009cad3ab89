package peerstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrEmptyName is returned by Rename when newName is empty (spec.md §4.4:
// "rename(device_id, new_name) (rejects empty name)").
var ErrEmptyName = errors.New("peerstore: name must not be empty")

// ErrNotFound is returned when an operation targets a device_id with no
// stored record.
var ErrNotFound = errors.New("peerstore: device not found")

// CryptoHelper wraps and unwraps the secret key material a Record holds,
// so the store never sees plaintext keys at rest (spec.md §4.4).
type CryptoHelper interface {
	Wrap(ctx context.Context, plaintext [32]byte) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte) ([32]byte, error)
}

// Record is one associated-peer row (spec.md §6, "Persisted state").
type Record struct {
	DeviceID                uuid.UUID
	WrappedEncryptionKey    []byte
	WrappedIdentificationKey []byte
	MACAddress              string
	Name                    string
	IsUserRenamed           bool
}

// Store is the associated-peer persistence surface (spec.md §4.4). All
// methods are safe for concurrent use; callers in the peer-actor model
// (spec.md §5) are expected to treat it as the one shared, serially
// mutated resource.
type Store interface {
	Add(ctx context.Context, rec Record) error
	Clear(ctx context.Context, deviceID uuid.UUID) error
	ClearAll(ctx context.Context) error
	Rename(ctx context.Context, deviceID uuid.UUID, newName string) error
	RetrieveAll(ctx context.Context) ([]Record, error)
	LoadIsAssociated(ctx context.Context, deviceID uuid.UUID) (bool, error)
	LoadIsAssociatedByMAC(ctx context.Context, macAddress string) (bool, error)
	LoadMACAddress(ctx context.Context, deviceID uuid.UUID) (string, error)
	LoadName(ctx context.Context, deviceID uuid.UUID) (string, error)
}

// Memory is an in-memory reference Store, suitable for tests and for
// hosts that layer their own persistence underneath a different Store
// implementation (spec.md §1 names "persistent key storage (rdb)" as an
// out-of-scope external collaborator; Memory stands in for it here).
type Memory struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]Record)}
}

// Add inserts rec, replacing any existing record with the same DeviceID
// in place rather than duplicating it (spec.md §4.4).
func (m *Memory) Add(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.DeviceID] = rec
	return nil
}

// Clear removes the record for deviceID, if any.
func (m *Memory) Clear(_ context.Context, deviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, deviceID)
	return nil
}

// ClearAll removes every record.
func (m *Memory) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[uuid.UUID]Record)
	return nil
}

// Rename updates the stored display name for deviceID.
func (m *Memory) Rename(_ context.Context, deviceID uuid.UUID, newName string) error {
	if newName == "" {
		return ErrEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	rec.Name = newName
	rec.IsUserRenamed = true
	m.records[deviceID] = rec
	return nil
}

// RetrieveAll returns every stored record, in no particular order.
func (m *Memory) RetrieveAll(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

// LoadIsAssociated reports whether deviceID has a stored record.
func (m *Memory) LoadIsAssociated(_ context.Context, deviceID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[deviceID]
	return ok, nil
}

// LoadIsAssociatedByMAC reports whether any stored record carries macAddress.
func (m *Memory) LoadIsAssociatedByMAC(_ context.Context, macAddress string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.MACAddress == macAddress {
			return true, nil
		}
	}
	return false, nil
}

// LoadMACAddress returns the stored MAC address for deviceID.
func (m *Memory) LoadMACAddress(_ context.Context, deviceID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[deviceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return rec.MACAddress, nil
}

// LoadName returns the stored display name for deviceID.
func (m *Memory) LoadName(_ context.Context, deviceID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[deviceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, deviceID)
	}
	return rec.Name, nil
}
