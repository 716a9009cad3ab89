package pairing

import "errors"

// maxRetry bounds the connect/MTU/discover-services retry counters
// (spec.md §4.1: "an independent retry counter bounded by MAX_RETRY
// (small constant, 3-5)").
const maxRetry = 4

// ErrRetriesExhausted names an exceeded retry counter. The Controller does
// not return it: an exhausted step reports ErrTransportStuck (connect, MTU)
// or ErrServiceSetInvalid (service discovery) instead.
var ErrRetriesExhausted = errors.New("pairing: retries exhausted")

// retryCounter tracks attempts for a single pairing step. Not safe for
// concurrent use; the Controller that owns it is single-actor-per-peer.
type retryCounter struct {
	attempts int
}

// Attempt records one attempt and reports whether the step may still be
// retried (false once maxRetry has been reached).
func (r *retryCounter) Attempt() bool {
	r.attempts++
	return r.attempts <= maxRetry
}

// Reset clears the counter, e.g. after a bonding pause resumes the connect step.
func (r *retryCounter) Reset() {
	r.attempts = 0
}
