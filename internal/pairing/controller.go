package pairing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/cryptoutil"
	"github.com/carlinkd/cartrustd/internal/oob"
	"github.com/carlinkd/cartrustd/internal/transport"
)

// Mode distinguishes a first-time association from a reconnection against
// an already-stored identification key (spec §4.1).
type Mode uint8

const (
	ModeAssociation Mode = iota
	ModeReconnection
)

// CapabilityExchanger performs the version and OOB-channel record exchange
// (spec §4.1 "each side sends a {...} record"); the wire marshaling lives
// above this package (internal/stack), this interface only names the
// suspension point.
type CapabilityExchanger interface {
	ExchangeVersion(ctx context.Context, local capability.VersionRecord) (capability.VersionRecord, error)
	ExchangeChannels(ctx context.Context, local []capability.ChannelType) ([]capability.ChannelType, error)
}

// Handshaker drives the UKEY2-style three-phase handshake and the
// verification step appropriate to Mode (visual, OOB, or HMAC
// reconnection challenge). VerificationCode is the decimal/text code
// surfaced for visual confirmation; for OOB or reconnection paths it is
// used internally and never shown to a human.
type Handshaker interface {
	Run(ctx context.Context, mode Mode, securityVersion uint32) (verificationCode string, err error)

	// ConfirmVisual exchanges the local and peer visual-confirmation
	// verdicts (spec.md §4.1, "Association without OOB").
	ConfirmVisual(ctx context.Context, accepted bool) error

	// ConfirmOOB sends verificationCode encrypted under the key oobData
	// carries and compares it against the peer's, accepting
	// immediately on byte-equality without any host input (spec.md §4.1,
	// "Association with OOB available").
	ConfirmOOB(ctx context.Context, verificationCode string, oobData oob.Data) error

	// ConfirmReconnect exchanges HMAC(identificationKey, verificationCode)
	// with the peer and accepts on byte-equality (spec.md §4.1,
	// "Reconnection").
	ConfirmReconnect(ctx context.Context, verificationCode string, identificationKey [cryptoutil.IdentificationKeySize]byte) error
}

// VerificationConfirmer asks the host operator to accept or reject a
// displayed verification code, blocking until a decision is made (spec.md
// §4.1, "request visual verification from the host ... proceed on
// explicit confirmation"). It is only consulted when no OOB channel could
// be resolved and the mode is ModeAssociation.
type VerificationConfirmer interface {
	Confirm(ctx context.Context, code string) (accepted bool, err error)
}

// DeviceIDExchanger performs the first encrypted payload exchange once the
// key is accepted: the peer's 16-byte device identifier.
type DeviceIDExchanger interface {
	Exchange(ctx context.Context, localID []byte) (remoteID []byte, err error)
}

// PeerNameReader optionally reads the peer's advertised name before
// version exchange. ok is false when the platform doesn't support it.
type PeerNameReader interface {
	ReadPeerName(ctx context.Context) (name string, ok bool, err error)
}

// Deps bundles every collaborator the Controller drives through a single
// pairing attempt. PeerName, OOB, Confirm and IdentificationKey are all
// optional and may be left at their zero value; see the Verifying-step
// dispatch in run() for exactly when each is consulted.
type Deps struct {
	Transport  transport.Transport
	Services   transport.ServiceUUIDs
	Capability CapabilityExchanger
	Handshake  Handshaker
	DeviceID   DeviceIDExchanger
	PeerName   PeerNameReader

	// OOB resolves an out-of-band verification channel, if any is
	// configured and the resolved channel set is non-empty (spec.md §4.6).
	// Nil means no OOB channel is available to this process at all.
	OOB *oob.Manager

	// Confirm surfaces the verification code to the host operator and
	// awaits an explicit accept/reject when verification falls through to
	// the visual path. Nil is treated as an implicit reject, since §4.1
	// requires an explicit confirmation before a new identification key is
	// ever exchanged.
	Confirm VerificationConfirmer

	// IdentificationKey is the previously stored 256-bit secret to HMAC
	// the verification code against during ModeReconnection (spec.md §3,
	// §4.1). It is required whenever mode is ModeReconnection; Connect
	// fails fast if it is nil in that mode.
	IdentificationKey *[cryptoutil.IdentificationKeySize]byte

	// ExpectedDeviceID, when set, is the device identifier the reconnected
	// peer is expected to present; a mismatch is ErrIdentityMismatch
	// (spec.md §4.1, "Device-ID exchange").
	ExpectedDeviceID []byte
}

// Controller drives one peer through the pairing FSM. It is single-owner:
// a second concurrent Connect call while one is in flight is rejected.
type Controller struct {
	deps      Deps
	callbacks Callbacks
	logger    *slog.Logger

	local         capability.VersionRecord
	localChannels []capability.ChannelType
	localID       []byte
	mode          Mode

	mu      sync.Mutex
	running bool
	state   State
}

// New builds a Controller for a single peer attempt.
func New(deps Deps, callbacks Callbacks, local capability.VersionRecord, localChannels []capability.ChannelType, localID []byte, mode Mode, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		deps:          deps,
		callbacks:     callbacks,
		local:         local,
		localChannels: localChannels,
		localID:       localID,
		mode:          mode,
		logger:        logger.With(slog.String("component", "pairing.controller")),
		state:         StateIdle,
	}
}

// State returns the controller's current FSM state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect runs the full pairing sequence to completion, returning the
// resolved capability set and peer device ID on success.
func (c *Controller) Connect(ctx context.Context) (capability.Resolved, []byte, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return capability.Resolved{}, nil, ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.callbacks.started()
	c.advance(EventStart)

	resolved, remoteID, err := c.run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.advance(EventDisconnect)
			c.callbacks.disconnected()
		} else {
			c.advance(EventFail)
			c.callbacks.connectionFailed(err)
			c.callbacks.associationFailed(err)
		}
		return capability.Resolved{}, nil, err
	}

	c.callbacks.connected()
	c.callbacks.associated()
	return resolved, remoteID, nil
}

func (c *Controller) run(ctx context.Context) (capability.Resolved, []byte, error) {
	if err := c.connectTransport(ctx); err != nil {
		return capability.Resolved{}, nil, err
	}
	c.advance(EventAdvance) // -> MTUNegotiating

	if err := c.requestMTU(ctx); err != nil {
		return capability.Resolved{}, nil, err
	}
	c.advance(EventAdvance) // -> ServicesDiscovering

	if err := c.discoverServices(ctx); err != nil {
		return capability.Resolved{}, nil, err
	}
	c.advance(EventAdvance) // -> NotifyEnabling

	if err := c.maybeReadPeerName(ctx); err != nil {
		return capability.Resolved{}, nil, err
	}

	remoteVersion, err := c.deps.Capability.ExchangeVersion(ctx, c.local)
	if err != nil {
		return capability.Resolved{}, nil, fmt.Errorf("exchange version: %w", err)
	}
	c.advance(EventAdvance) // -> CapsExchanging

	remoteChannels, err := c.deps.Capability.ExchangeChannels(ctx, c.localChannels)
	if err != nil {
		return capability.Resolved{}, nil, fmt.Errorf("exchange channels: %w", err)
	}
	c.advance(EventAdvance) // -> HandshakeInit

	resolved, err := capability.Resolve(c.local, remoteVersion, c.localChannels, remoteChannels)
	if err != nil {
		return capability.Resolved{}, nil, err
	}
	c.advance(EventAdvance) // -> HandshakeCont

	if c.mode == ModeReconnection && c.deps.IdentificationKey == nil {
		return capability.Resolved{}, nil, fmt.Errorf("reconnection requires a stored identification key: %w", ErrAuthMismatch)
	}

	code, err := c.deps.Handshake.Run(ctx, c.mode, resolved.SecurityVersion)
	if err != nil {
		return capability.Resolved{}, nil, fmt.Errorf("%w: %w", ErrAuthMismatch, err)
	}
	c.advance(EventAdvance) // -> Verifying

	if err := c.verify(ctx, code, resolved); err != nil {
		return capability.Resolved{}, nil, err
	}
	c.advance(EventAdvance) // -> KeyConfirmed

	remoteID, err := c.deps.DeviceID.Exchange(ctx, c.localID)
	if err != nil {
		return capability.Resolved{}, nil, fmt.Errorf("exchange device id: %w", err)
	}
	if c.deps.ExpectedDeviceID != nil && !bytes.Equal(remoteID, c.deps.ExpectedDeviceID) {
		return capability.Resolved{}, nil, fmt.Errorf("remote device id does not match stored record: %w", ErrIdentityMismatch)
	}
	c.callbacks.deviceIDReceived(remoteID)
	c.advance(EventAdvance) // -> Ready

	return resolved, remoteID, nil
}

// verify enforces the verification policy appropriate to Mode (spec.md
// §4.1, "Verification policy"): a reconnection proves possession of the
// stored identification key via HMAC challenge; a first-time association
// prefers an OOB side channel when one resolves, and otherwise falls back
// to an explicit host accept/reject of the displayed verification code.
func (c *Controller) verify(ctx context.Context, code string, resolved capability.Resolved) error {
	if c.mode == ModeReconnection {
		if err := c.deps.Handshake.ConfirmReconnect(ctx, code, *c.deps.IdentificationKey); err != nil {
			return fmt.Errorf("%w: %w", ErrAuthMismatch, err)
		}
		return nil
	}

	if len(resolved.OOBChannels) > 0 && c.deps.OOB != nil {
		oobData, err := c.deps.OOB.Resolve(ctx)
		if err != nil {
			c.logger.Warn("OOB channel resolution failed, falling back to visual verification", slog.Any("error", err))
			return c.confirmVisual(ctx, code)
		}
		if err := c.deps.Handshake.ConfirmOOB(ctx, code, oobData); err != nil {
			return fmt.Errorf("%w: %w", ErrAuthMismatch, err)
		}
		return nil
	}

	return c.confirmVisual(ctx, code)
}

// confirmVisual surfaces code to the host operator and waits for an
// explicit accept/reject before exchanging the peer's visual-confirmation
// verdict (spec.md §4.1, "Association without OOB").
func (c *Controller) confirmVisual(ctx context.Context, code string) error {
	c.callbacks.authStringAvailable(code)

	if c.deps.Confirm == nil {
		return fmt.Errorf("no verification confirmer configured: %w", ErrAuthMismatch)
	}
	accepted, err := c.deps.Confirm.Confirm(ctx, code)
	if err != nil {
		return fmt.Errorf("host confirmation: %w", err)
	}
	if err := c.deps.Handshake.ConfirmVisual(ctx, accepted); err != nil {
		return fmt.Errorf("%w: %w", ErrAuthMismatch, err)
	}
	if !accepted {
		return fmt.Errorf("verification code rejected by host: %w", ErrAuthMismatch)
	}
	return nil
}

// bondPollInterval paces BondState polls while paused in BondingWait.
const bondPollInterval = 50 * time.Millisecond

func (c *Controller) connectTransport(ctx context.Context) error {
	c.advance(EventAdvance) // -> TransportConnecting

	var retries retryCounter
	for {
		if err := c.waitOutBonding(ctx); err != nil {
			return err
		}

		err := c.deps.Transport.Connect(ctx)
		if err == nil {
			return nil
		}

		if !retries.Attempt() {
			return fmt.Errorf("connect transport: %w: %w", ErrTransportStuck, err)
		}
	}
}

// waitOutBonding pauses pending transport steps while the OS reports the
// peer as BONDING, resuming once a terminal bonded/none state is observed
// (spec §4.1, "many stacks drop GATT traffic during bonding").
func (c *Controller) waitOutBonding(ctx context.Context) error {
	state, err := c.deps.Transport.BondState(ctx)
	if err != nil || state != transport.BondBonding {
		return nil
	}

	c.advance(EventBondingObserved)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bondPollInterval):
		}
		state, err := c.deps.Transport.BondState(ctx)
		if err != nil || state != transport.BondBonding {
			c.advance(EventBondingResolved)
			return nil
		}
	}
}

// mtuTimeout bounds a single MTU-negotiation attempt. A stack that never
// calls back within this window is treated as stale and negotiation
// proceeds anyway rather than retrying (spec §4.1, "stale stack").
const mtuTimeout = 2 * time.Second

func (c *Controller) requestMTU(ctx context.Context) error {
	var retries retryCounter
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, mtuTimeout)
		_, err := c.deps.Transport.RequestMTU(attemptCtx, 0)
		cancel()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			c.logger.Warn("MTU negotiation timed out, proceeding with stale stack", slog.Any("error", err))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !retries.Attempt() {
			return fmt.Errorf("request MTU: %w: %w", ErrTransportStuck, err)
		}
	}
}

func (c *Controller) discoverServices(ctx context.Context) error {
	var retries retryCounter
	for {
		err := c.deps.Transport.DiscoverServices(ctx, c.deps.Services)
		if err == nil {
			return nil
		}
		if !retries.Attempt() {
			return fmt.Errorf("%w: %w", ErrServiceSetInvalid, err)
		}
	}
}

func (c *Controller) maybeReadPeerName(ctx context.Context) error {
	if c.deps.PeerName == nil {
		c.advance(EventAdvance) // -> VersionExchanging
		return nil
	}
	name, ok, err := c.deps.PeerName.ReadPeerName(ctx)
	if err != nil {
		return fmt.Errorf("read peer name: %w", err)
	}
	if !ok {
		c.advance(EventAdvance) // -> VersionExchanging
		return nil
	}
	c.advance(EventPeerNameAvailable) // -> PeerNameReading
	c.logger.Info("peer name observed", slog.String("name", name))
	c.advance(EventAdvance) // -> VersionExchanging
	return nil
}

func (c *Controller) advance(event Event) {
	c.mu.Lock()
	result := ApplyEvent(c.state, event)
	c.state = result.NewState
	c.mu.Unlock()

	for _, action := range result.Actions {
		switch action {
		case ActionCleanupTransport:
			if err := c.deps.Transport.Close(); err != nil {
				c.logger.Warn("transport close failed", slog.Any("error", err))
			}
		}
	}
}
