package wire

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder indicates a packet arrived with a packet_number that is
// neither the expected next number nor a duplicate of the last-accepted
// one (spec.md §4.2, §7 "StreamError::OutOfOrder"). The underlying
// transport is assumed to deliver in order, so this indicates a bug or a
// malicious peer; the caller must tear the stream down.
var ErrOutOfOrder = errors.New("wire: packet received out of order")

// ErrEmptySplit indicates Split was asked to frame a zero-length message.
// The splitter never emits a zero-payload packet (spec.md §4.2), so a
// caller that needs to send an empty message must encode that in the
// message payload itself rather than relying on an empty packet.
var ErrEmptySplit = errors.New("wire: cannot split an empty message")

// ErrPacketTooSmall indicates maxPacketPayload is too small to make any
// forward progress (must hold at least one byte of message data).
var ErrPacketTooSmall = errors.New("wire: maxPacketPayload must be >= 1")

// Split breaks a serialized stream message into one or more Packets, each
// carrying at most maxPacketPayload bytes of the serialization plus the
// fixed Packet envelope overhead already accounted for by the caller via
// maxPacketPayload. packet_number is 1-based; total_packets is identical
// across all returned packets (spec.md §4.2, §8 framer invariants).
func Split(messageID uint32, serialized []byte, maxPacketPayload int) ([]Packet, error) {
	if len(serialized) == 0 {
		return nil, ErrEmptySplit
	}
	if maxPacketPayload < 1 {
		return nil, ErrPacketTooSmall
	}

	total := (len(serialized) + maxPacketPayload - 1) / maxPacketPayload
	packets := make([]Packet, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxPacketPayload
		end := start + maxPacketPayload
		if end > len(serialized) {
			end = len(serialized)
		}
		packets = append(packets, Packet{
			PacketNumber: uint32(i + 1), //nolint:gosec // bounded by len(serialized)/maxPacketPayload
			TotalPackets: uint32(total), //nolint:gosec // same bound
			MessageID:    messageID,
			Payload:      serialized[start:end],
		})
	}
	return packets, nil
}

// Reassembler accumulates packets for a single in-flight message_id and
// reconstructs the original serialization once the final packet arrives.
// One Reassembler is used per message_id currently being received; the
// owning stream typically keeps a single Reassembler alive at a time
// because packets for a new message_id only begin once the previous
// message has been fully delivered (single-reader contract, spec.md §4.2).
type Reassembler struct {
	messageID    uint32
	totalPackets uint32
	lastAccepted uint32 // 0 means no packet accepted yet
	buf          []byte
	started      bool
}

// NewReassembler returns an empty Reassembler ready to receive the first
// packet of a new message.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed processes one received packet. It returns (serialized, true, nil)
// once the final packet of the message has been accepted; otherwise it
// returns (nil, false, nil) and the caller should keep reading. Duplicate
// packets matching the currently-expected or immediately-preceding number
// are silently dropped (returns false, nil error). Gaps or true
// out-of-order arrivals return ErrOutOfOrder.
func (r *Reassembler) Feed(p Packet) ([]byte, bool, error) {
	if !r.started {
		if p.PacketNumber != 1 {
			return nil, false, fmt.Errorf("%w: first packet has number %d", ErrOutOfOrder, p.PacketNumber)
		}
		r.started = true
		r.messageID = p.MessageID
		r.totalPackets = p.TotalPackets
		r.lastAccepted = 0
		r.buf = r.buf[:0]
	} else if p.MessageID != r.messageID {
		return nil, false, fmt.Errorf("%w: message_id changed mid-stream", ErrOutOfOrder)
	}

	switch {
	case r.lastAccepted != 0 && p.PacketNumber == r.lastAccepted:
		// Duplicate of the last-accepted packet: no-op, no double delivery.
		return nil, false, nil
	case p.PacketNumber == r.lastAccepted+1:
		// Expected next packet (also covers the first packet, where
		// lastAccepted is still 0).
	default:
		return nil, false, fmt.Errorf("%w: got %d, expected %d or %d",
			ErrOutOfOrder, p.PacketNumber, r.lastAccepted+1, r.lastAccepted)
	}

	r.buf = append(r.buf, p.Payload...)
	r.lastAccepted = p.PacketNumber

	if p.PacketNumber == p.TotalPackets {
		out := r.buf
		r.reset()
		return out, true, nil
	}
	return nil, false, nil
}

// reset clears accumulated state so the Reassembler can accept the next
// message_id's first packet.
func (r *Reassembler) reset() {
	r.started = false
	r.messageID = 0
	r.totalPackets = 0
	r.lastAccepted = 0
	r.buf = nil
}
