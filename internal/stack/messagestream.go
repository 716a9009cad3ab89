package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/carlinkd/cartrustd/internal/cryptoutil"
	"github.com/carlinkd/cartrustd/internal/wire"
)

// defaultMaxPacketPayload bounds how much serialized message data each
// wire.Packet carries, chosen comfortably under a typical negotiated BLE
// MTU (spec.md §4.1, "MTU negotiation"). PeerSession overrides it with the
// transport's actually negotiated MTU once known.
const defaultMaxPacketPayload = 500

// ErrNoCipher is returned when Send or Recv needs to seal/open a payload
// before SetCipher has installed the session's StreamCipher.
var ErrNoCipher = errors.New("stack: no cipher installed for encrypted operation")

// MessageStream turns a raw transport.Transport (an io.ReadWriteCloser)
// into a duplex wire.Message channel: it packetizes outbound messages with
// wire.Split, reassembles inbound ones with a wire.Reassembler, and seals
// or opens the payload with the installed cryptoutil.StreamCipher once one
// is set (spec.md §4.2, "Transport framer & encrypted stream").
//
// Before KEY_CONFIRMED no cipher is installed and only operations that do
// not require encryption may be sent; Bootstrap drives the stream through
// that phase (see bootstrap.go).
type MessageStream struct {
	rw               io.ReadWriteCloser
	maxPacketPayload int
	messageID        atomic.Uint32

	writeMu sync.Mutex

	mu          sync.Mutex
	cipher      *cryptoutil.StreamCipher
	reassembler *wire.Reassembler
}

// NewMessageStream wraps rw with the default packet payload size.
func NewMessageStream(rw io.ReadWriteCloser) *MessageStream {
	return &MessageStream{
		rw:               rw,
		maxPacketPayload: defaultMaxPacketPayload,
		reassembler:      wire.NewReassembler(),
	}
}

// SetMaxPacketPayload overrides the per-packet payload bound, typically
// with the MTU negotiated during pairing.
func (s *MessageStream) SetMaxPacketPayload(n int) {
	if n > 0 {
		s.maxPacketPayload = n
	}
}

// SetCipher installs the StreamCipher used to seal outbound and open
// inbound payloads for operations that require encryption. It is called
// once, when the handshake reaches KEY_CONFIRMED.
func (s *MessageStream) SetCipher(c *cryptoutil.StreamCipher) {
	s.mu.Lock()
	s.cipher = c
	s.mu.Unlock()
}

func (s *MessageStream) cipherOrErr() (*cryptoutil.StreamCipher, error) {
	s.mu.Lock()
	c := s.cipher
	s.mu.Unlock()
	if c == nil {
		return nil, ErrNoCipher
	}
	return c, nil
}

// Send marshals payload as a wire.Message under op, encrypting it first if
// op.RequiresEncryption() reports true, then splits and writes it as one
// or more framed wire.Packets.
func (s *MessageStream) Send(op wire.Operation, recipient *uuid.UUID, payload []byte) error {
	return s.send(op, recipient, payload, op.RequiresEncryption())
}

// SendEncrypted behaves like Send but always encrypts the payload,
// regardless of op.RequiresEncryption(). The device-identifier exchange
// uses this: it rides on ENCRYPTION_HANDSHAKE (which RequiresEncryption
// reports false for, since most handshake steps are cleartext) but is
// itself the first encrypted payload of the session (spec.md §4.1: "the
// first encrypted payload exchange once the key is accepted").
func (s *MessageStream) SendEncrypted(op wire.Operation, recipient *uuid.UUID, payload []byte) error {
	return s.send(op, recipient, payload, true)
}

func (s *MessageStream) send(op wire.Operation, recipient *uuid.UUID, payload []byte, encrypt bool) error {
	msg := wire.Message{
		Operation:           op,
		Recipient:           recipient,
		OriginalMessageSize: uint32(len(payload)), //nolint:gosec // payload sizes never approach uint32 range
		Payload:             payload,
	}

	if encrypt {
		c, err := s.cipherOrErr()
		if err != nil {
			return err
		}
		msg.Payload = c.Seal(payload)
		msg.IsPayloadEncrypted = true
	}

	id := s.messageID.Add(1)
	packets, err := wire.Split(id, msg.Marshal(), s.maxPacketPayload)
	if err != nil {
		return fmt.Errorf("stack: split message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, p := range packets {
		if err := wire.WriteFramed(s.rw, p); err != nil {
			return fmt.Errorf("stack: write framed packet: %w", err)
		}
	}
	return nil
}

// Recv blocks until the next complete wire.Message has been reassembled,
// decrypting its payload if IsPayloadEncrypted is set.
func (s *MessageStream) Recv() (wire.Message, error) {
	for {
		p, err := wire.ReadFramed(s.rw)
		if err != nil {
			return wire.Message{}, fmt.Errorf("stack: read framed packet: %w", err)
		}

		s.mu.Lock()
		b, done, err := s.reassembler.Feed(p)
		s.mu.Unlock()
		if err != nil {
			return wire.Message{}, fmt.Errorf("stack: reassemble packet: %w", err)
		}
		if !done {
			continue
		}

		msg, err := wire.UnmarshalMessage(b)
		if err != nil {
			return wire.Message{}, fmt.Errorf("stack: unmarshal message: %w", err)
		}
		if msg.IsPayloadEncrypted {
			c, err := s.cipherOrErr()
			if err != nil {
				return wire.Message{}, err
			}
			plaintext, err := c.Open(msg.Payload)
			if err != nil {
				return wire.Message{}, fmt.Errorf("stack: open message: %w", err)
			}
			msg.Payload = plaintext
		}
		return msg, nil
	}
}

// RecvContext behaves like Recv but aborts early if ctx is done, closing
// the underlying transport to unblock the in-flight read (the stream is
// unusable afterward either way -- a context-cancelled bootstrap or
// session always tears the transport down).
func (s *MessageStream) RecvContext(ctx context.Context) (wire.Message, error) {
	type result struct {
		msg wire.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := s.Recv()
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		_ = s.rw.Close()
		return wire.Message{}, ctx.Err()
	case r := <-done:
		return r.msg, r.err
	}
}

// Close closes the underlying transport.
func (s *MessageStream) Close() error {
	return s.rw.Close()
}
