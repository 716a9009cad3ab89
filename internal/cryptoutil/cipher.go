package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// StreamCipher seals and opens stream-message payloads with AES-GCM,
// using the per-direction IV derived at handshake time plus a per-message
// counter folded into the low bits, so no two messages in the same
// direction ever reuse a nonce (spec.md §4.2: "AES-GCM with a 96-bit IV
// per direction ... Associated data: none").
type StreamCipher struct {
	aead      cipher.AEAD
	sendBase  [12]byte
	recvBase  [12]byte
	sendCount atomic.Uint64
	recvCount atomic.Uint64
}

// NewStreamCipher builds a StreamCipher from session keys. sendIV is the
// base IV for outbound messages (the mobile side's sendIV is the IHU's
// recvIV, and vice versa).
func NewStreamCipher(key [32]byte, sendIV, recvIV [12]byte) (*StreamCipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new GCM: %w", err)
	}
	return &StreamCipher{aead: aead, sendBase: sendIV, recvBase: recvIV}, nil
}

// NewMobileStreamCipher builds the StreamCipher for the mobile side of a
// session, given keys derived from the handshake.
func NewMobileStreamCipher(keys SessionKeys) (*StreamCipher, error) {
	return NewStreamCipher(keys.EncryptionKey, keys.MobileIV, keys.IHUIV)
}

// NewIHUStreamCipher builds the StreamCipher for the vehicle head-unit
// side of a session, given keys derived from the handshake.
func NewIHUStreamCipher(keys SessionKeys) (*StreamCipher, error) {
	return NewStreamCipher(keys.EncryptionKey, keys.IHUIV, keys.MobileIV)
}

// nonceFor XORs the message counter into the low 8 bytes of base,
// producing a unique nonce per message without needing to transmit it.
func nonceFor(base [12]byte, counter uint64) []byte {
	nonce := base
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	for i := range ctr {
		nonce[4+i] ^= ctr[i]
	}
	out := make([]byte, 12)
	copy(out, nonce[:])
	return out
}

// Seal encrypts plaintext for the next outbound message. There is no
// associated data (spec.md §4.2).
func (c *StreamCipher) Seal(plaintext []byte) []byte {
	counter := c.sendCount.Add(1) - 1
	nonce := nonceFor(c.sendBase, counter)
	return c.aead.Seal(nil, nonce, plaintext, nil)
}

// Open decrypts the next inbound ciphertext. The stream is
// single-reader/single-writer (spec.md §4.2), so messages must be opened
// in the order they were sent; Open advances the receive counter on every
// call regardless of success, matching that strict ordering contract.
func (c *StreamCipher) Open(ciphertext []byte) ([]byte, error) {
	counter := c.recvCount.Add(1) - 1
	nonce := nonceFor(c.recvBase, counter)
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}
