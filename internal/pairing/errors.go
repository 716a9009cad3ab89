package pairing

import "errors"

// Sentinel errors for the pairing taxonomy (spec.md §7). Each is wrapped
// with %w at the point it's raised.
var (
	// ErrTransportStuck means a connect/MTU/discover-services retry
	// counter was exhausted.
	ErrTransportStuck = errors.New("pairing: transport stuck")

	// ErrAuthMismatch means the visual, OOB or HMAC confirmation step
	// failed.
	ErrAuthMismatch = errors.New("pairing: authentication mismatch")

	// ErrIdentityMismatch means the peer's device identifier didn't match
	// the record targeted by a reconnection attempt.
	ErrIdentityMismatch = errors.New("pairing: identity mismatch")

	// ErrServiceSetInvalid means the peer's GATT service set is missing a
	// required characteristic after a cache refresh and retry.
	ErrServiceSetInvalid = errors.New("pairing: required characteristic missing")

	// ErrAlreadyRunning is returned by Controller.Connect when a pairing
	// attempt is already in flight for this peer (the FSM is single-owner).
	ErrAlreadyRunning = errors.New("pairing: connect already in progress")
)
