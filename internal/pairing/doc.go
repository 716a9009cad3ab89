// Package pairing drives a peer from discovery through an authenticated
// encrypted session, then hands the result off to the feature multiplexer
// (internal/session). The state machine itself is a pure function over a
// transition table; a stateful Controller executes the actions it
// returns and owns retry bookkeeping.
package pairing
