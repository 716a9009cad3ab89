package transport

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors surfaced up to the pairing FSM's retry/failure logic
// (spec.md §4.1, §7: TransportStuck).
var (
	ErrConnectFailed   = errors.New("transport: connect failed")
	ErrMTUTimeout      = errors.New("transport: MTU negotiation timed out")
	ErrServiceNotFound = errors.New("transport: required service/characteristics missing")
	ErrClosed          = errors.New("transport: closed")
)

// RequiredCharacteristic enumerates the GATT characteristics a paired
// service must expose (spec.md §4.1: "the containing service must expose
// a client-write characteristic, a server-write characteristic, and
// (optionally) an advertise-data characteristic").
type RequiredCharacteristic uint8

const (
	CharClientWrite RequiredCharacteristic = iota
	CharServerWrite
	CharAdvertiseData // optional
)

// ServiceUUIDs identifies the GATT service and its characteristics for
// one pairing attempt (spec.md §6, "Advertisement filter").
type ServiceUUIDs struct {
	Service       string
	ClientWrite   string
	ServerWrite   string
	AdvertiseData string // optional, empty if unused
}

// Transport is the bring-up and data-plane contract the pairing FSM
// drives (spec.md §4.1). A Transport is owned by exactly one peer actor
// (spec.md §5) and is never shared.
type Transport interface {
	io.ReadWriteCloser

	// Connect opens the physical link (GATT connect for BLE, socket
	// connect for RFCOMM).
	Connect(ctx context.Context) error

	// RequestMTU asks the stack for the given MTU and returns the
	// negotiated value. An implementation that does not hear back before
	// ctx's deadline returns an error that wraps ctx's error; the pairing
	// FSM, which calls RequestMTU with its own deadline on ctx, treats that
	// as a stale stack and proceeds (spec.md §4.1).
	RequestMTU(ctx context.Context, requested int) (int, error)

	// DiscoverServices validates that want's characteristics are present,
	// optionally refreshing the service cache once on miss (spec.md
	// §4.1: "Missing required characteristics triggers one service-cache
	// refresh and a single retry").
	DiscoverServices(ctx context.Context, want ServiceUUIDs) error

	// BondState reports whether the OS currently reports the peer as
	// BONDING (spec.md §4.1, "Bonding pause").
	BondState(ctx context.Context) (BondState, error)
}

// BondState mirrors the platform bonding state machine relevant to
// pairing (spec.md §4.1: "the OS reports the peer moving into BONDING").
type BondState uint8

const (
	BondNone BondState = iota
	BondBonding
	BondBonded
)

func (s BondState) String() string {
	switch s {
	case BondBonding:
		return "BONDING"
	case BondBonded:
		return "BONDED"
	default:
		return "NONE"
	}
}
