package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Packet field numbers (spec.md §6, "Wire -- packet layer").
const (
	packetFieldNumber   protowire.Number = 1 // packet_number: varint
	packetFieldTotal    protowire.Number = 2 // total_packets: varint
	packetFieldMsgID    protowire.Number = 3 // message_id: fixed32
	packetFieldPayload  protowire.Number = 4 // payload: bytes
	lengthPrefixSize                     = 4 // little-endian uint32
)

// Packet is the wire packet described in spec.md §3 ("Packet (wire)").
type Packet struct {
	// PacketNumber is 1-based, per spec.md §3.
	PacketNumber uint32
	TotalPackets uint32
	// MessageID is monotonically increasing per sender per session,
	// starts at 1, and never wraps within one session (spec.md §4.2).
	MessageID uint32
	Payload   []byte
}

// Marshal encodes p as a protobuf-wire-compatible Packet message.
func (p Packet) Marshal() []byte {
	var b []byte
	b = appendVarint(b, packetFieldNumber, uint64(p.PacketNumber))
	b = appendVarint(b, packetFieldTotal, uint64(p.TotalPackets))
	b = appendFixed32(b, packetFieldMsgID, p.MessageID)
	b = appendBytes(b, packetFieldPayload, p.Payload)
	return b
}

// UnmarshalPacket decodes a Packet from its protobuf-wire-compatible form.
// Unknown fields are skipped (spec.md §9: "unknown variants are mapped to
// a documented default; never panic" -- unknown fields on the Packet
// carry no payload semantics, so they are simply ignored).
func UnmarshalPacket(b []byte) (Packet, error) {
	var p Packet
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case packetFieldNumber:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: packet_number", ErrTruncated)
			}
			p.PacketNumber = uint32(v)
			return n, nil
		case packetFieldTotal:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: total_packets", ErrTruncated)
			}
			p.TotalPackets = uint32(v)
			return n, nil
		case packetFieldMsgID:
			v, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: message_id", ErrTruncated)
			}
			p.MessageID = v
			return n, nil
		case packetFieldPayload:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: payload", ErrTruncated)
			}
			p.Payload = append([]byte(nil), v...)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return Packet{}, err
	}
	return p, nil
}

// WriteFramed writes the 4-byte little-endian length prefix followed by
// the serialized packet, per spec.md §6 ("Wire -- packet layer").
func WriteFramed(w io.Writer, p Packet) error {
	body := p.Marshal()
	var lenBuf [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write packet body: %w", err)
	}
	return nil
}

// ErrFrameTooLarge bounds how much a single length prefix may claim, as a
// defense against a malicious or corrupt peer requesting an unbounded
// allocation.
var ErrFrameTooLarge = errors.New("wire: framed packet exceeds maximum size")

// MaxFrameSize is the largest length-prefixed body this codec accepts.
const MaxFrameSize = 1 << 20 // 1 MiB; generous relative to any single BLE MTU split.

// ReadFramed reads one length-prefixed Packet from r.
func ReadFramed(r io.Reader) (Packet, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Packet{}, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("read packet body: %w", err)
	}
	return UnmarshalPacket(body)
}
