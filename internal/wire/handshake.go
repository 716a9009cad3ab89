package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/cryptoutil"
)

// HandshakeStepKind tags which pre-session bootstrap step a HandshakeStep
// carries. Every step before the stream reaches KEY_CONFIRMED rides over
// Operation = ENCRYPTION_HANDSHAKE (spec.md §6: "ENCRYPTION_HANDSHAKE ...
// carries the version/capability exchange and the three UKEY2 messages");
// this type distinguishes which of those sub-steps a given Message holds.
type HandshakeStepKind uint32

const (
	StepUnspecified   HandshakeStepKind = 0
	StepVersion       HandshakeStepKind = 1
	StepChannels      HandshakeStepKind = 2
	StepInit          HandshakeStepKind = 3
	StepResponse      HandshakeStepKind = 4
	StepFinish        HandshakeStepKind = 5
	StepVisualConfirm HandshakeStepKind = 6
	StepDeviceID      HandshakeStepKind = 7
	// StepChallenge carries a raw byte blob compared for equality by both
	// sides: either the OOB-encrypted verification payload or the
	// reconnection HMAC challenge (spec.md §4.1, "Verification policy").
	// Which one it is follows from the Mode the Controller is already
	// running under, so the two share one wire shape.
	StepChallenge HandshakeStepKind = 8
)

func (k HandshakeStepKind) String() string {
	switch k {
	case StepVersion:
		return "VERSION"
	case StepChannels:
		return "CHANNELS"
	case StepInit:
		return "INIT"
	case StepResponse:
		return "RESPONSE"
	case StepFinish:
		return "FINISH"
	case StepVisualConfirm:
		return "VISUAL_CONFIRM"
	case StepDeviceID:
		return "DEVICE_ID"
	case StepChallenge:
		return "CHALLENGE"
	default:
		return "UNSPECIFIED"
	}
}

// HandshakeStep field numbers. Exactly one payload field is populated per
// Kind; the others are left at their zero value and so are omitted by the
// appendX helpers' implicit-presence behavior.
const (
	stepFieldKind           protowire.Number = 1
	stepFieldVersion        protowire.Number = 2
	stepFieldChannels       protowire.Number = 3
	stepFieldInit           protowire.Number = 4
	stepFieldResponse       protowire.Number = 5
	stepFieldFinish         protowire.Number = 6
	stepFieldVisualAccepted protowire.Number = 7
	stepFieldDeviceID       protowire.Number = 8
	stepFieldChallenge      protowire.Number = 9
)

// HandshakeStep is one message in the bootstrap exchange that precedes
// the encrypted session: version/capability negotiation, the three
// UKEY2-style handshake messages, the visual-confirmation verdict, and
// the device-identifier exchange (spec.md §4.1). All steps travel in
// cleartext except the device-identifier step, which is the session's
// first encrypted payload.
type HandshakeStep struct {
	Kind HandshakeStepKind

	Version  capability.VersionRecord
	Channels []capability.ChannelType

	Init     cryptoutil.InitMessage
	Response cryptoutil.ResponseMessage
	Finish   cryptoutil.FinishMessage

	VisualAccepted bool
	DeviceID       []byte
	Challenge      []byte
}

// Marshal encodes s as a protobuf-wire-compatible HandshakeStep.
func (s HandshakeStep) Marshal() []byte {
	var b []byte
	b = appendVarint(b, stepFieldKind, uint64(s.Kind))

	switch s.Kind {
	case StepVersion:
		b = appendMessage(b, stepFieldVersion, marshalVersionRecord(s.Version))
	case StepChannels:
		b = appendBytes(b, stepFieldChannels, marshalChannelList(s.Channels))
	case StepInit:
		v := append(append([]byte(nil), s.Init.Commitment[:]...), s.Init.Nonce[:]...)
		b = appendBytes(b, stepFieldInit, v)
	case StepResponse:
		v := append(append([]byte(nil), s.Response.PublicKey[:]...), s.Response.Nonce[:]...)
		b = appendBytes(b, stepFieldResponse, v)
	case StepFinish:
		b = appendBytes(b, stepFieldFinish, s.Finish.PublicKey[:])
	case StepVisualConfirm:
		// appendBool omits false, but a rejection (false) must still be
		// distinguishable from "field absent" on the wire -- the Kind tag
		// alone is enough here since this step only ever carries the one
		// boolean, so a missing field unambiguously decodes to false.
		b = appendBool(b, stepFieldVisualAccepted, s.VisualAccepted)
	case StepDeviceID:
		b = appendBytes(b, stepFieldDeviceID, s.DeviceID)
	case StepChallenge:
		b = appendBytes(b, stepFieldChallenge, s.Challenge)
	}
	return b
}

// UnmarshalHandshakeStep decodes a HandshakeStep from its protobuf-wire-
// compatible form.
func UnmarshalHandshakeStep(b []byte) (HandshakeStep, error) {
	var s HandshakeStep
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case stepFieldKind:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: kind", ErrTruncated)
			}
			s.Kind = HandshakeStepKind(v)
			return n, nil
		case stepFieldVersion:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: version", ErrTruncated)
			}
			rec, err := unmarshalVersionRecord(v)
			if err != nil {
				return 0, err
			}
			s.Version = rec
			return n, nil
		case stepFieldChannels:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: channels", ErrTruncated)
			}
			s.Channels = unmarshalChannelList(v)
			return n, nil
		case stepFieldInit:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 || len(v) != 64 {
				return 0, fmt.Errorf("%w: init", ErrTruncated)
			}
			copy(s.Init.Commitment[:], v[:32])
			copy(s.Init.Nonce[:], v[32:])
			return n, nil
		case stepFieldResponse:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 || len(v) != 64 {
				return 0, fmt.Errorf("%w: response", ErrTruncated)
			}
			copy(s.Response.PublicKey[:], v[:32])
			copy(s.Response.Nonce[:], v[32:])
			return n, nil
		case stepFieldFinish:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 || len(v) != 32 {
				return 0, fmt.Errorf("%w: finish", ErrTruncated)
			}
			copy(s.Finish.PublicKey[:], v)
			return n, nil
		case stepFieldVisualAccepted:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: visual_accepted", ErrTruncated)
			}
			s.VisualAccepted = v != 0
			return n, nil
		case stepFieldDeviceID:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: device_id", ErrTruncated)
			}
			s.DeviceID = append([]byte(nil), v...)
			return n, nil
		case stepFieldChallenge:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: challenge", ErrTruncated)
			}
			s.Challenge = append([]byte(nil), v...)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return HandshakeStep{}, err
	}
	return s, nil
}

const (
	versionFieldMinMsg protowire.Number = 1
	versionFieldMaxMsg protowire.Number = 2
	versionFieldMinSec protowire.Number = 3
	versionFieldMaxSec protowire.Number = 4
)

func marshalVersionRecord(v capability.VersionRecord) []byte {
	var b []byte
	b = appendVarint(b, versionFieldMinMsg, uint64(v.MinMessageVersion))
	b = appendVarint(b, versionFieldMaxMsg, uint64(v.MaxMessageVersion))
	b = appendVarint(b, versionFieldMinSec, uint64(v.MinSecurityVersion))
	b = appendVarint(b, versionFieldMaxSec, uint64(v.MaxSecurityVersion))
	return b
}

func unmarshalVersionRecord(b []byte) (capability.VersionRecord, error) {
	var v capability.VersionRecord
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case versionFieldMinMsg:
			n64, n := protowire.ConsumeVarint(rest)
			v.MinMessageVersion = uint32(n64)
			return n, nil
		case versionFieldMaxMsg:
			n64, n := protowire.ConsumeVarint(rest)
			v.MaxMessageVersion = uint32(n64)
			return n, nil
		case versionFieldMinSec:
			n64, n := protowire.ConsumeVarint(rest)
			v.MinSecurityVersion = uint32(n64)
			return n, nil
		case versionFieldMaxSec:
			n64, n := protowire.ConsumeVarint(rest)
			v.MaxSecurityVersion = uint32(n64)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return capability.VersionRecord{}, err
	}
	return v, nil
}

func marshalChannelList(channels []capability.ChannelType) []byte {
	out := make([]byte, len(channels))
	for i, c := range channels {
		out[i] = byte(c)
	}
	return out
}

func unmarshalChannelList(b []byte) []capability.ChannelType {
	if len(b) == 0 {
		return nil
	}
	out := make([]capability.ChannelType, len(b))
	for i, v := range b {
		out[i] = capability.ChannelType(v)
	}
	return out
}
