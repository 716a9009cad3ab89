package stack

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carlinkd/cartrustd/internal/calendarsync"
	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/cryptoutil"
	trustmetrics "github.com/carlinkd/cartrustd/internal/metrics"
	"github.com/carlinkd/cartrustd/internal/oob"
	"github.com/carlinkd/cartrustd/internal/pairing"
	"github.com/carlinkd/cartrustd/internal/peerstore"
	"github.com/carlinkd/cartrustd/internal/transport"
)

// Daemon is the top-level, dependency-injected owner of every peer
// connection the vehicle side of the stack handles concurrently (spec.md
// §9: "global singletons ... become dependency-injected services held by
// a top-level Stack owner; lifecycles start/stop explicitly"). It is the
// vehicle/IHU-side role: it hosts a calendarsync.Replica (the phone is
// presumed to run the Source side, spec.md §4.8) and always plays
// cryptoutil.RoleInitiator in the handshake, since this process is the
// one that opens the GATT connection once a candidate device is
// discovered.
type Daemon struct {
	peers        peerstore.Store
	metrics      *trustmetrics.Collector
	replica      *calendarsync.Replica
	discoverer   *BlueZDiscoverer
	cryptoHelper peerstore.CryptoHelper
	oobManager   *oob.Manager

	services      transport.ServiceUUIDs
	local         capability.VersionRecord
	localChannels []capability.ChannelType
	selfID        []byte

	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*PeerSession
	pending  map[string]*pendingVerification
}

// NewDaemon builds a Daemon. peers and metrics must be non-nil; replica
// and discoverer may be nil in tests that only exercise the admin surface.
// cryptoHelper wraps identification keys before they reach peers (spec.md
// §4.4) and may be nil only if no association will ever run live.
// oobManager resolves the out-of-band verification channel for
// first-time association (spec.md §4.6) and may be nil when none is
// configured, in which case association always falls back to visual
// confirmation.
func NewDaemon(
	peers peerstore.Store,
	metrics *trustmetrics.Collector,
	replica *calendarsync.Replica,
	discoverer *BlueZDiscoverer,
	cryptoHelper peerstore.CryptoHelper,
	oobManager *oob.Manager,
	services transport.ServiceUUIDs,
	local capability.VersionRecord,
	localChannels []capability.ChannelType,
	selfID []byte,
	logger *slog.Logger,
) *Daemon {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Daemon{
		peers:         peers,
		metrics:       metrics,
		replica:       replica,
		discoverer:    discoverer,
		cryptoHelper:  cryptoHelper,
		oobManager:    oobManager,
		services:      services,
		local:         local,
		localChannels: localChannels,
		selfID:        selfID,
		logger:        logger.With(slog.String("component", "stack.daemon")),
		sessions:      make(map[string]*PeerSession),
		pending:       make(map[string]*pendingVerification),
	}
}

// Run drives device discovery until ctx is cancelled, spawning a
// PeerSession for every candidate device the discoverer reports.
func (d *Daemon) Run(ctx context.Context) error {
	if d.discoverer == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return d.discoverer.Run(ctx, func(tr *transport.BlueZ, mac string) {
		go d.handleDevice(ctx, tr, mac)
	})
}

func (d *Daemon) handleDevice(ctx context.Context, tr *transport.BlueZ, mac string) {
	mode, stored := d.resolveMode(ctx, mac)
	start := time.Now()

	verification := &VerificationDeps{OOB: d.oobManager}
	if mode == pairing.ModeReconnection {
		idKey, err := d.cryptoHelper.Unwrap(ctx, stored.WrappedIdentificationKey)
		if err != nil {
			d.logger.Warn("unwrap stored identification key failed", slog.String("error", err.Error()))
			return
		}
		verification.IdentificationKey = &idKey
		verification.ExpectedDeviceID = stored.DeviceID[:]
	} else {
		token := uuid.New().String()
		verification.Confirm = &daemonConfirmer{daemon: d, token: token}
	}

	var deviceID []byte
	callbacks := pairing.Callbacks{
		OnDeviceIDReceived: func(id []byte) { deviceID = append([]byte(nil), id...) },
		OnAssociated: func() {
			d.onAssociated(ctx, mode, mac, deviceID)
			d.metrics.PairingFinished(modeLabel(mode), "success", time.Since(start))
		},
		OnAssociationFailed: func(err error) {
			d.metrics.PairingFinished(modeLabel(mode), "failed", time.Since(start))
			d.logger.Warn("association failed", slog.String("error", err.Error()))
		},
		OnConnectionFailed: func(err error) {
			d.logger.Warn("peer connection failed", slog.String("error", err.Error()))
		},
		OnDisconnected: func() {
			d.forgetSession(deviceID)
		},
	}

	d.metrics.PairingStarted(modeLabel(mode))

	session := NewPeerSession(tr, d.services, mode, d.local, d.localChannels, d.selfID, false, d.replica, verification, callbacks, d.logger)
	if _, _, err := session.Connect(ctx); err != nil {
		d.logger.Warn("peer session connect failed", slog.String("error", err.Error()))
		return
	}

	d.metrics.SessionReady()
	if len(deviceID) > 0 {
		d.mu.Lock()
		d.sessions[string(deviceID)] = session
		d.mu.Unlock()
	}
}

// resolveMode looks up whether mac already has an associated-peer record,
// selecting ModeReconnection and returning that record when it does
// (spec.md §4.1, "the scan's advertised-data filter"). A lookup failure or
// a MAC that was never associated selects ModeAssociation.
func (d *Daemon) resolveMode(ctx context.Context, mac string) (pairing.Mode, peerstore.Record) {
	isAssociated, err := d.peers.LoadIsAssociatedByMAC(ctx, mac)
	if err != nil || !isAssociated {
		return pairing.ModeAssociation, peerstore.Record{}
	}

	records, err := d.peers.RetrieveAll(ctx)
	if err != nil {
		d.logger.Warn("retrieve stored records failed", slog.String("error", err.Error()))
		return pairing.ModeAssociation, peerstore.Record{}
	}
	for _, rec := range records {
		if rec.MACAddress == mac {
			return pairing.ModeReconnection, rec
		}
	}
	return pairing.ModeAssociation, peerstore.Record{}
}

// onAssociated persists the peer following a successful pairing attempt.
// A new 256-bit identification key is generated and wrapped only on
// ModeAssociation, since it is the sole persistent secret (spec.md §3) and
// an existing record's key must never change on reconnection (spec.md
// §8). The encryption-key column is deliberately left unset: session keys
// are ephemeral by design and never touch the store (spec.md §3).
func (d *Daemon) onAssociated(ctx context.Context, mode pairing.Mode, mac string, deviceID []byte) {
	id, err := uuid.FromBytes(deviceID)
	if err != nil {
		d.logger.Warn("associated with malformed device id", slog.String("error", err.Error()))
		return
	}

	if mode == pairing.ModeReconnection {
		return
	}

	idKey, err := cryptoutil.GenerateIdentificationKey()
	if err != nil {
		d.logger.Warn("generate identification key failed", slog.String("error", err.Error()))
		return
	}
	wrapped, err := d.cryptoHelper.Wrap(ctx, idKey)
	if err != nil {
		d.logger.Warn("wrap identification key failed", slog.String("error", err.Error()))
		return
	}

	rec := peerstore.Record{
		DeviceID:                 id,
		WrappedIdentificationKey: wrapped,
		MACAddress:               mac,
	}
	if err := d.peers.Add(ctx, rec); err != nil {
		d.logger.Warn("record associated peer failed", slog.String("error", err.Error()))
	}
}

func (d *Daemon) forgetSession(deviceID []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, string(deviceID))
	d.metrics.SessionClosed()
}

// modeLabel reports a short label for mode, used only in metric labels.
func modeLabel(m pairing.Mode) string {
	if m == pairing.ModeReconnection {
		return "reconnection"
	}
	return "association"
}
