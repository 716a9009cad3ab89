package calendarsync

import "errors"

var (
	// ErrNotSupported is returned when a replica receives a message only
	// a source is allowed to send (spec.md §4.8, "Replica cannot remotely
	// disable a source").
	ErrNotSupported = errors.New("calendarsync: operation not supported on this side")

	// ErrUnknownPeer names an operation addressed to a peer with no
	// tracked sync state. No function in this package returns it.
	ErrUnknownPeer = errors.New("calendarsync: unknown peer")

	// ErrStore wraps a failure from the caller-supplied CalendarStore or
	// ReplicaStore (spec.md §7, "StoreError").
	ErrStore = errors.New("calendarsync: store error")
)
