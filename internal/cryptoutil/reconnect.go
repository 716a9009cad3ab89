package cryptoutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrDecryptFailed indicates an AEAD tag mismatch (spec.md §7,
// "StreamError::DecryptFail").
var ErrDecryptFailed = errors.New("cryptoutil: AEAD tag verification failed")

// ErrAuthMismatch indicates a reconnection HMAC challenge failed
// (spec.md §7, "AuthMismatch").
var ErrAuthMismatch = errors.New("cryptoutil: reconnection verification mismatch")

// IdentificationKeySize is the width of the persistent per-peer secret
// (spec.md §3: "a 256-bit identification key").
const IdentificationKeySize = 32

// ReconnectChallenge computes HMAC-SHA256(identificationKey,
// verificationCode) for the reconnection path (spec.md §4.1:
// "each side HMACs the verification code with the stored identification
// key"). The full digest is returned; callers that need a shorter
// service-data-sized challenge should truncate consistently on both ends.
func ReconnectChallenge(identificationKey [IdentificationKeySize]byte, verificationCode string) []byte {
	mac := hmac.New(sha256.New, identificationKey[:])
	mac.Write([]byte(verificationCode))
	return mac.Sum(nil)
}

// VerifyReconnectChallenge reports whether challenge matches the expected
// HMAC of verificationCode under identificationKey, using a constant-time
// comparison to avoid leaking timing information about the secret.
func VerifyReconnectChallenge(identificationKey [IdentificationKeySize]byte, verificationCode string, challenge []byte) bool {
	want := ReconnectChallenge(identificationKey, verificationCode)
	return subtle.ConstantTimeCompare(want, challenge) == 1
}

// GenerateIdentificationKey returns a fresh random 256-bit identification
// key, generated at association time (spec.md §3).
func GenerateIdentificationKey() ([IdentificationKeySize]byte, error) {
	var key [IdentificationKeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("cryptoutil: generate identification key: %w", err)
	}
	return key, nil
}
