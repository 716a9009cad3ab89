package peerstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrWrappedKeyTooShort indicates a wrapped key blob is too small to
// contain a nonce and authentication tag.
var ErrWrappedKeyTooShort = errors.New("peerstore: wrapped key too short")

// AEADCryptoHelper wraps peer key material at rest using AES-GCM under a
// master key supplied at construction time (the key itself is expected to
// come from a platform keystore -- out of scope per spec.md §1, "persistent
// key storage (rdb)").
type AEADCryptoHelper struct {
	aead cipher.AEAD
}

// NewAEADCryptoHelper builds a CryptoHelper from a 32-byte master key.
func NewAEADCryptoHelper(masterKey [32]byte) (*AEADCryptoHelper, error) {
	block, err := aes.NewCipher(masterKey[:])
	if err != nil {
		return nil, fmt.Errorf("peerstore: new AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("peerstore: new GCM: %w", err)
	}
	return &AEADCryptoHelper{aead: aead}, nil
}

// Wrap seals plaintext under a fresh random nonce, prefixing the nonce to
// the ciphertext.
func (h *AEADCryptoHelper) Wrap(_ context.Context, plaintext [32]byte) ([]byte, error) {
	nonce := make([]byte, h.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("peerstore: generate wrap nonce: %w", err)
	}
	return h.aead.Seal(nonce, nonce, plaintext[:], nil), nil
}

// Unwrap reverses Wrap.
func (h *AEADCryptoHelper) Unwrap(_ context.Context, wrapped []byte) ([32]byte, error) {
	var out [32]byte
	nonceSize := h.aead.NonceSize()
	if len(wrapped) < nonceSize {
		return out, ErrWrappedKeyTooShort
	}
	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	plaintext, err := h.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return out, fmt.Errorf("peerstore: unwrap key: %w", err)
	}
	copy(out[:], plaintext)
	return out, nil
}
