package stack

import (
	"context"
	"errors"
	"testing"

	"github.com/carlinkd/cartrustd/internal/capability"
	trustmetrics "github.com/carlinkd/cartrustd/internal/metrics"
	"github.com/carlinkd/cartrustd/internal/peerstore"
	"github.com/carlinkd/cartrustd/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

func newVerificationTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewDaemon(peerstore.NewMemory(), trustmetrics.NewCollector(reg), nil, nil, nil, nil,
		transport.ServiceUUIDs{Service: "svc", ClientWrite: "cw", ServerWrite: "sw"},
		capability.VersionRecord{MinMessageVersion: 1, MaxMessageVersion: 1, MinSecurityVersion: 1, MaxSecurityVersion: 1},
		nil, []byte("self"), nil)
}

func TestDaemonConfirmVerificationResolvesWaitingConfirmer(t *testing.T) {
	t.Parallel()

	d := newVerificationTestDaemon(t)
	confirm := &daemonConfirmer{daemon: d, token: "tok-1"}

	type result struct {
		accepted bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		accepted, err := confirm.Confirm(context.Background(), "123456")
		done <- result{accepted, err}
	}()

	// Wait until the decision is registered before resolving it.
	for {
		d.mu.Lock()
		_, ok := d.pending["tok-1"]
		d.mu.Unlock()
		if ok {
			break
		}
	}

	pending := d.PendingVerifications()
	if len(pending) != 1 || pending[0].Code != "123456" {
		t.Fatalf("PendingVerifications() = %+v", pending)
	}

	if err := d.ConfirmVerification("tok-1", true); err != nil {
		t.Fatalf("ConfirmVerification: %v", err)
	}

	r := <-done
	if r.err != nil || !r.accepted {
		t.Fatalf("Confirm() = %v, %v, want true, nil", r.accepted, r.err)
	}

	if len(d.PendingVerifications()) != 0 {
		t.Error("pending verification was not cleaned up")
	}
}

func TestDaemonConfirmVerificationUnknownToken(t *testing.T) {
	t.Parallel()

	d := newVerificationTestDaemon(t)
	if err := d.ConfirmVerification("missing", true); !errors.Is(err, ErrPendingVerificationNotFound) {
		t.Fatalf("error = %v, want ErrPendingVerificationNotFound", err)
	}
}
