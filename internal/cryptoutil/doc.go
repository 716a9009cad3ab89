// Package cryptoutil implements the cryptographic primitives behind
// pairing and the encrypted stream: a UKEY2-style three-message
// authenticated key exchange, the AES-GCM per-direction stream cipher it
// establishes, and the HMAC-based reconnection challenge.
//
// The AEAD itself is built from the standard library's crypto/cipher and
// crypto/aes -- there is no third-party AEAD in the example pack more
// appropriate than the stdlib primitive here (see DESIGN.md). The
// Diffie-Hellman step of the handshake uses golang.org/x/crypto/curve25519,
// the same ECDH idiom the pack's WireGuard/Noise examples use for their
// handshake key agreement.
package cryptoutil
