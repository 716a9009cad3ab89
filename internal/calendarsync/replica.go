package calendarsync

import (
	"log/slog"

	"github.com/carlinkd/cartrustd/internal/wire"
)

// ReplicaSupportedVersion is the protocol version this replica
// implementation reports back on every ACKNOWLEDGE, telling the source
// it may switch out of legacy REPLACE-only mode (spec.md §4.8,
// "Replica... reply with a payload of type ACKNOWLEDGE (which carries...
// the protocol version so the source learns whether updates are
// supported)").
const ReplicaSupportedVersion = ProtocolVersionUpdatable

// Replica is the vehicle-side calendar-sync controller (spec.md §4.8,
// "Replica").
type Replica struct {
	store  ReplicaStore
	logger *slog.Logger
}

// NewReplica builds a Replica over store. logger may be nil.
func NewReplica(store ReplicaStore, logger *slog.Logger) *Replica {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Replica{store: store, logger: logger.With(slog.String("component", "calendarsync.replica"))}
}

// HandleReceive applies an incoming RECEIVE payload via the hierarchical
// apply algorithm and returns the ACKNOWLEDGE payload to send back
// (spec.md §4.8, "On incoming RECEIVE, apply the updates... on success
// reply with a payload of type ACKNOWLEDGE").
func (r *Replica) HandleReceive(payload wire.UpdateCalendars) (wire.UpdateCalendars, error) {
	if err := ApplyCalendars(payload.Calendars, r.store); err != nil {
		return wire.UpdateCalendars{}, err
	}
	return wire.UpdateCalendars{Version: ReplicaSupportedVersion, Type: wire.UpdateTypeAcknowledge}, nil
}

// HandleDisable purges all persistent and transient state for peerID
// (spec.md §4.8, "On DISABLE, purge all persistent and transient state
// for that peer").
func (r *Replica) HandleDisable(peerID string) error {
	return wrapStoreErr(r.store.PurgePeer(peerID))
}

// Disable always fails: a replica may never remotely disable a source
// (spec.md §4.8, "Replica cannot remotely disable a source; attempting
// it is a ProtocolError::NotSupported").
func (r *Replica) Disable(string) error {
	return ErrNotSupported
}
