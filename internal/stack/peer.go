package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/carlinkd/cartrustd/internal/calendarsync"
	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/cryptoutil"
	"github.com/carlinkd/cartrustd/internal/oob"
	"github.com/carlinkd/cartrustd/internal/pairing"
	"github.com/carlinkd/cartrustd/internal/session"
	"github.com/carlinkd/cartrustd/internal/transport"
	"github.com/carlinkd/cartrustd/internal/wire"
)

// calendarSyncRecipient names the session.Feature recipient the
// calendar-sync CLIENT_MESSAGEs are addressed to (spec.md §4.8: "a
// recipient string identifying the calendar-sync feature"). It must match
// verbatim between the two peers' processes, which it does -- it is a
// compile-time constant of this package on both sides of the link.
const calendarSyncRecipient = "aae5de2c-ac20-4e6a-8e30-fda67e5e6bc0"

// PeerSession owns every collaborator needed to take one physical link
// from discovery through an encrypted, feature-multiplexed session
// (spec.md §5: "a peer actor owns one Transport and every collaborator
// driven against it"). It is used once per connection attempt; a
// reconnect builds a fresh PeerSession over a fresh Transport.
type PeerSession struct {
	logger *slog.Logger

	stream     *MessageStream
	controller *pairing.Controller
	mux        *session.Multiplexer
	replica    *calendarsync.Replica

	mu        sync.Mutex
	started   bool
	connected atomic.Bool
}

// VerificationDeps bundles the collaborators a PeerSession needs to carry
// out §4.1's verification policy, beyond the bare handshake itself. A nil
// *VerificationDeps leaves every field zero. Without OOB, association
// takes the visual-confirmation path, and without Confirm that path
// rejects (see pairing.Controller.confirmVisual). Without
// IdentificationKey, reconnection fails before verification. Without
// ExpectedDeviceID, the peer's device ID is not checked.
type VerificationDeps struct {
	// OOB resolves an out-of-band verification channel for first-time
	// association (spec.md §4.6).
	OOB *oob.Manager

	// Confirm surfaces the verification code to the host operator when
	// neither reconnection nor OOB applies.
	Confirm pairing.VerificationConfirmer

	// IdentificationKey is the stored secret to reconnect against; set
	// only when mode is pairing.ModeReconnection.
	IdentificationKey *[cryptoutil.IdentificationKeySize]byte

	// ExpectedDeviceID is the device identifier the stored record was
	// filed under, checked against the peer's device-ID exchange on
	// reconnection (spec.md §4.1, "Device-ID exchange").
	ExpectedDeviceID []byte
}

// NewPeerSession builds a PeerSession around tr, driving pairing as mode
// and, once Ready, hosting calendarReplica behind the calendar-sync
// recipient. The device-ID the handshake yields is checked against the
// associated-peer store by the caller (Daemon), not by PeerSession
// itself (spec.md §4.4). verification may be nil, in which case the
// session falls back to an implicit-reject visual confirmation path.
func NewPeerSession(
	tr transport.Transport,
	services transport.ServiceUUIDs,
	mode pairing.Mode,
	local capability.VersionRecord,
	localChannels []capability.ChannelType,
	selfID []byte,
	isMobile bool,
	calendarReplica *calendarsync.Replica,
	verification *VerificationDeps,
	callbacks pairing.Callbacks,
	logger *slog.Logger,
) *PeerSession {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "stack.peer"))

	stream := NewMessageStream(tr)
	bootstrap := NewBootstrap(stream, cryptoutil.RoleInitiator, isMobile)

	deps := pairing.Deps{
		Transport:  tr,
		Services:   services,
		Capability: bootstrap,
		Handshake:  bootstrap,
		DeviceID:   bootstrap,
	}
	if verification != nil {
		deps.OOB = verification.OOB
		deps.Confirm = verification.Confirm
		deps.IdentificationKey = verification.IdentificationKey
		deps.ExpectedDeviceID = verification.ExpectedDeviceID
	}
	controller := pairing.New(deps, callbacks, local, localChannels, selfID, mode, logger)

	p := &PeerSession{
		logger:     logger,
		stream:     stream,
		controller: controller,
		replica:    calendarReplica,
	}
	p.mux = session.New((*multiplexerTransport)(p), logger)
	return p
}

// Connect drives the pairing FSM to completion and, on success, begins
// the session read loop that dispatches incoming operations to the
// feature multiplexer. It blocks until pairing finishes or ctx is done;
// the read loop itself continues after Connect returns, stopping only
// when the transport closes or ctx is cancelled.
func (p *PeerSession) Connect(ctx context.Context) (capability.Resolved, []byte, error) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return capability.Resolved{}, nil, errors.New("stack: peer session already started")
	}
	p.started = true
	p.mu.Unlock()

	resolved, remoteID, err := p.controller.Connect(ctx)
	if err != nil {
		return resolved, remoteID, err
	}
	p.connected.Store(true)

	if p.replica != nil {
		peerID := fmt.Sprintf("%x", remoteID)
		if id, err := uuid.FromBytes(remoteID); err == nil {
			peerID = id.String()
		}
		if err := p.mux.RegisterFeature(calendarSyncRecipient, &calendarFeature{
			peerID:  peerID,
			replica: p.replica,
			stream:  p.stream,
			logger:  p.logger,
		}); err != nil {
			p.logger.Warn("register calendar feature failed", slog.String("error", err.Error()))
		}
	}

	go p.readLoop(ctx)
	return resolved, remoteID, nil
}

// readLoop decodes every inbound wire.Message and routes it to the
// feature multiplexer by Operation (spec.md §4.3).
func (p *PeerSession) readLoop(ctx context.Context) {
	defer p.connected.Store(false)

	for {
		msg, err := p.stream.RecvContext(ctx)
		if err != nil {
			p.logger.Debug("session read loop exiting", slog.String("error", err.Error()))
			return
		}

		switch msg.Operation {
		case wire.OperationClientMessage:
			p.mux.Dispatch(recipientKey(msg.Recipient), msg.Payload)
		case wire.OperationQuery:
			q, err := wire.UnmarshalQueryPayload(msg.Payload)
			if err != nil {
				p.logger.Warn("malformed query payload", slog.String("error", err.Error()))
				continue
			}
			p.mux.HandleQuery(session.Query{ID: q.ID, Recipient: q.Recipient, Payload: q.Payload, Parameters: q.Parameters})
		case wire.OperationQueryResponse:
			r, err := wire.UnmarshalResponsePayload(msg.Payload)
			if err != nil {
				p.logger.Warn("malformed query response payload", slog.String("error", err.Error()))
				continue
			}
			p.mux.HandleQueryResponse(session.Response{ID: r.ID, Successful: r.Successful, Payload: r.Payload})
		case wire.OperationDisable:
			if err := p.mux.Disable(recipientKey(msg.Recipient)); err != nil {
				p.logger.Debug("disable unregistered recipient", slog.String("error", err.Error()))
			}
		default:
			p.logger.Debug("ignoring message with unexpected operation", slog.String("operation", msg.Operation.String()))
		}
	}
}

// Close tears down the underlying transport, ending the read loop.
func (p *PeerSession) Close() error {
	p.connected.Store(false)
	return p.stream.Close()
}

func recipientKey(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func recipientUUID(key string) *uuid.UUID {
	id, err := uuid.Parse(key)
	if err != nil {
		return nil
	}
	return &id
}

// multiplexerTransport adapts a *PeerSession's MessageStream to
// session.Transport, the narrow outbound surface session.Multiplexer
// uses to send QUERY and QUERY_RESPONSE operations.
type multiplexerTransport PeerSession

// Connected reports whether the pairing handshake has completed and the
// read loop has not since observed the transport fail, matching the
// synchronous-failure contract queries rely on when the peer is not
// reachable (spec.md §4.3: "{id=INVALID, is_successful=false,
// payload=[]}" is returned immediately rather than queued).
func (t *multiplexerTransport) Connected() bool {
	return (*PeerSession)(t).connected.Load()
}

func (t *multiplexerTransport) SendQuery(q session.Query) error {
	payload := wire.QueryPayload{ID: q.ID, Recipient: q.Recipient, Payload: q.Payload, Parameters: q.Parameters}.Marshal()
	return (*PeerSession)(t).stream.Send(wire.OperationQuery, recipientUUID(q.Recipient), payload)
}

func (t *multiplexerTransport) SendQueryResponse(r session.Response) error {
	payload := wire.ResponsePayload{ID: r.ID, Successful: r.Successful, Payload: r.Payload}.Marshal()
	return (*PeerSession)(t).stream.Send(wire.OperationQueryResponse, nil, payload)
}

// calendarFeature adapts calendarsync.Replica to session.Feature,
// decoding CLIENT_MESSAGE payloads into wire.UpdateCalendars and sending
// the ACKNOWLEDGE reply back the same way (spec.md §4.8).
type calendarFeature struct {
	peerID  string
	replica *calendarsync.Replica
	stream  *MessageStream
	logger  *slog.Logger
}

func (f *calendarFeature) OnMessage(payload []byte) {
	update, err := wire.UnmarshalUpdateCalendars(payload)
	if err != nil {
		f.logger.Warn("malformed calendar update", slog.String("error", err.Error()))
		return
	}

	switch update.Type {
	case wire.UpdateTypeDisable:
		if err := f.replica.HandleDisable(f.peerID); err != nil {
			f.logger.Warn("purge peer on disable message failed", slog.String("error", err.Error()))
		}
		return
	case wire.UpdateTypeReceive:
		// falls through to the shared HandleReceive + acknowledge below
	default:
		f.logger.Debug("ignoring calendar update of unexpected type", slog.Int("type", int(update.Type)))
		return
	}

	ack, err := f.replica.HandleReceive(update)
	if err != nil {
		f.logger.Warn("apply calendar update failed", slog.String("error", err.Error()))
		return
	}

	if err := f.stream.Send(wire.OperationClientMessage, recipientUUID(calendarSyncRecipient), ack.Marshal()); err != nil {
		f.logger.Warn("send calendar acknowledge failed", slog.String("error", err.Error()))
	}
}

func (f *calendarFeature) OnQuery(_ session.Query, respond func(session.Response)) {
	respond(session.Response{Successful: false})
}

func (f *calendarFeature) OnDisable() {
	if err := f.replica.HandleDisable(f.peerID); err != nil {
		f.logger.Warn("purge peer on disable failed", slog.String("error", err.Error()))
	}
}
