package stack

import (
	"context"
	"errors"
	"sync"
)

// ErrPendingVerificationNotFound is returned when a token names no
// currently outstanding verification decision.
var ErrPendingVerificationNotFound = errors.New("stack: pending verification not found")

// pendingVerification is one in-flight visual-confirmation decision,
// awaiting an accept/reject from the host operator (spec.md §4.1, "request
// visual verification from the host").
type pendingVerification struct {
	code     string
	decision chan bool
	once     sync.Once
}

func newPendingVerification(code string) *pendingVerification {
	return &pendingVerification{code: code, decision: make(chan bool, 1)}
}

// resolve delivers accepted to the single waiter, if any is still
// listening. Safe to call more than once; only the first call counts.
func (p *pendingVerification) resolve(accepted bool) {
	p.once.Do(func() {
		p.decision <- accepted
	})
}

// daemonConfirmer implements pairing.VerificationConfirmer by registering
// the pairing attempt's verification code under token and blocking until
// the admin API resolves it or ctx is cancelled.
type daemonConfirmer struct {
	daemon *Daemon
	token  string
}

func (c *daemonConfirmer) Confirm(ctx context.Context, code string) (bool, error) {
	pv := newPendingVerification(code)

	c.daemon.mu.Lock()
	c.daemon.pending[c.token] = pv
	c.daemon.mu.Unlock()

	defer func() {
		c.daemon.mu.Lock()
		delete(c.daemon.pending, c.token)
		c.daemon.mu.Unlock()
	}()

	select {
	case accepted := <-pv.decision:
		return accepted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// PendingVerification is one outstanding host decision an admin operator
// can resolve, surfaced read-only over the admin API.
type PendingVerification struct {
	Token string
	Code  string
}

// PendingVerifications lists every pairing attempt currently waiting on a
// host accept/reject decision.
func (d *Daemon) PendingVerifications() []PendingVerification {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]PendingVerification, 0, len(d.pending))
	for token, pv := range d.pending {
		out = append(out, PendingVerification{Token: token, Code: pv.code})
	}
	return out
}

// ConfirmVerification resolves the pending verification identified by
// token with the host's accept/reject decision.
func (d *Daemon) ConfirmVerification(token string, accepted bool) error {
	d.mu.Lock()
	pv, ok := d.pending[token]
	d.mu.Unlock()
	if !ok {
		return ErrPendingVerificationNotFound
	}
	pv.resolve(accepted)
	return nil
}
