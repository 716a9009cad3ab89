package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Role distinguishes which side of the UKEY2-style handshake a Handshake
// value plays. The initiator is the side that opens the GATT connection
// (spec.md §4.1: "Transport connect").
type Role uint8

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

// Handshake-related sentinel errors.
var (
	ErrCommitmentMismatch = errors.New("cryptoutil: revealed public key does not match commitment")
	ErrWrongPhase         = errors.New("cryptoutil: handshake method called out of phase")
	ErrPeerKeyInvalid     = errors.New("cryptoutil: peer public key is invalid")
)

const nonceSize = 32

// InitMessage is the UKEY2 INIT payload: a commitment to the initiator's
// ephemeral public key plus a fresh nonce, sent before the key itself is
// revealed (downgrade protection -- the responder cannot selectively
// influence the initiator's key choice after seeing it).
type InitMessage struct {
	Commitment [32]byte
	Nonce      [nonceSize]byte
}

// ResponseMessage is the UKEY2 INIT_RESPONSE payload: the responder's
// ephemeral public key and nonce, sent in the clear because the responder
// has no analogous commitment step in this simplified two-party exchange.
type ResponseMessage struct {
	PublicKey [32]byte
	Nonce     [nonceSize]byte
}

// FinishMessage is the UKEY2 FINISH payload: the initiator reveals the
// ephemeral public key committed to in InitMessage.
type FinishMessage struct {
	PublicKey [32]byte
}

// SessionKeys holds the symmetric material derived at the end of a
// successful handshake (spec.md §3, "Session state").
type SessionKeys struct {
	EncryptionKey [32]byte
	// MobileIV and IHUIV are distinct per-direction 96-bit IVs
	// (spec.md §4.2: "distinct mobile-IV and IHU-IV").
	MobileIV [12]byte
	IHUIV    [12]byte
}

// phase tracks which handshake step comes next, so out-of-order calls
// fail loudly instead of silently deriving garbage key material.
type phase uint8

const (
	phaseStart phase = iota
	phaseInitSent
	phaseInitReceived
	phaseResponseExchanged
	phaseDone
)

// Handshake drives one side of the three-message UKEY2-style key
// agreement. It is used once per pairing attempt and discarded; it is not
// safe for concurrent use, matching the single-owner pairing FSM that
// drives it (spec.md §4.1: "The FSM is single-owner").
type Handshake struct {
	role Role

	privKey [32]byte
	pubKey  [32]byte
	nonce   [nonceSize]byte

	peerCommitment [32]byte
	peerNonce      [nonceSize]byte
	peerPubKey     [32]byte

	phase phase
}

// New creates a Handshake for the given role, generating a fresh
// ephemeral X25519 keypair and nonce.
func New(role Role) (*Handshake, error) {
	h := &Handshake{role: role}

	if _, err := rand.Read(h.privKey[:]); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	curve25519.ScalarBaseMult(&h.pubKey, &h.privKey)

	if _, err := rand.Read(h.nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return h, nil
}

// commitment computes the binding commitment to (pubKey, nonce).
func commitment(pub [32]byte, nonce [nonceSize]byte) [32]byte {
	h := sha256.New()
	h.Write(pub[:])
	h.Write(nonce[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Init produces the INIT payload. Initiator-only; advances to phaseInitSent.
func (h *Handshake) Init() (InitMessage, error) {
	if h.role != RoleInitiator || h.phase != phaseStart {
		return InitMessage{}, ErrWrongPhase
	}
	h.phase = phaseInitSent
	return InitMessage{Commitment: commitment(h.pubKey, h.nonce), Nonce: h.nonce}, nil
}

// HandleInit consumes the peer's INIT payload. Responder-only.
func (h *Handshake) HandleInit(msg InitMessage) error {
	if h.role != RoleResponder || h.phase != phaseStart {
		return ErrWrongPhase
	}
	h.peerCommitment = msg.Commitment
	h.peerNonce = msg.Nonce
	h.phase = phaseInitReceived
	return nil
}

// Response produces the INIT_RESPONSE payload. Responder-only.
func (h *Handshake) Response() (ResponseMessage, error) {
	if h.role != RoleResponder || h.phase != phaseInitReceived {
		return ResponseMessage{}, ErrWrongPhase
	}
	h.phase = phaseResponseExchanged
	return ResponseMessage{PublicKey: h.pubKey, Nonce: h.nonce}, nil
}

// HandleResponse consumes the peer's INIT_RESPONSE payload. Initiator-only.
func (h *Handshake) HandleResponse(msg ResponseMessage) error {
	if h.role != RoleInitiator || h.phase != phaseInitSent {
		return ErrWrongPhase
	}
	h.peerPubKey = msg.PublicKey
	h.peerNonce = msg.Nonce
	h.phase = phaseResponseExchanged
	return nil
}

// Finish produces the FINISH payload, revealing the initiator's public
// key committed to in Init(). Initiator-only.
func (h *Handshake) Finish() (FinishMessage, error) {
	if h.role != RoleInitiator || h.phase != phaseResponseExchanged {
		return FinishMessage{}, ErrWrongPhase
	}
	h.phase = phaseDone
	return FinishMessage{PublicKey: h.pubKey}, nil
}

// HandleFinish consumes the peer's FINISH payload, verifying it matches
// the commitment sent in INIT. Responder-only.
func (h *Handshake) HandleFinish(msg FinishMessage) error {
	if h.role != RoleResponder || h.phase != phaseResponseExchanged {
		return ErrWrongPhase
	}
	want := commitment(msg.PublicKey, h.peerNonce)
	if subtle.ConstantTimeCompare(want[:], h.peerCommitment[:]) != 1 {
		return ErrCommitmentMismatch
	}
	h.peerPubKey = msg.PublicKey
	h.phase = phaseDone
	return nil
}

// Derive computes the shared SessionKeys once the handshake has completed
// on this side (phaseDone). Both the initiator (immediately after Finish)
// and the responder (immediately after HandleFinish) may call this.
func (h *Handshake) Derive() (SessionKeys, error) {
	if h.phase != phaseDone {
		return SessionKeys{}, ErrWrongPhase
	}

	shared, err := curve25519.X25519(h.privKey[:], h.peerPubKey[:])
	if err != nil {
		return SessionKeys{}, fmt.Errorf("%w: %v", ErrPeerKeyInvalid, err)
	}

	salt := transcriptSalt(h)
	reader := hkdf.New(sha256.New, shared, salt, []byte("cartrustd session keys v1"))

	var keys SessionKeys
	if _, err := readFull(reader, keys.EncryptionKey[:]); err != nil {
		return SessionKeys{}, err
	}

	// Derive direction-specific IVs so the mobile side and the IHU side
	// never reuse the same IV for different plaintexts under the same key
	// (spec.md §4.2: "distinct mobile-IV and IHU-IV").
	mobileReader := hkdf.New(sha256.New, shared, salt, []byte("cartrustd mobile iv v1"))
	if _, err := readFull(mobileReader, keys.MobileIV[:]); err != nil {
		return SessionKeys{}, err
	}
	ihuReader := hkdf.New(sha256.New, shared, salt, []byte("cartrustd ihu iv v1"))
	if _, err := readFull(ihuReader, keys.IHUIV[:]); err != nil {
		return SessionKeys{}, err
	}

	return keys, nil
}

// VerificationCode derives the decimal verification code the user (or an
// OOB channel) confirms out of band. length selects 6 or 16 digits per
// the negotiated security version (spec.md §9, open question: "the exact
// mapping table is left to the version resolver and should be pinned by
// tests" -- internal/capability owns that mapping; this function only
// implements "derive N decimal digits from the transcript").
func (h *Handshake) VerificationCode(length int) (string, error) {
	if h.phase != phaseDone {
		return "", ErrWrongPhase
	}
	shared, err := curve25519.X25519(h.privKey[:], h.peerPubKey[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPeerKeyInvalid, err)
	}
	salt := transcriptSalt(h)
	reader := hkdf.New(sha256.New, shared, salt, []byte("cartrustd verification code v1"))
	return decimalDigits(reader, length)
}

// transcriptSalt binds the derived keys to the full handshake transcript
// (both nonces and both public keys) so a transcript substitution by a
// man-in-the-middle changes every derived value.
func transcriptSalt(h *Handshake) []byte {
	initPub, initNonce, respPub, respNonce := h.pubKey, h.nonce, h.peerPubKey, h.peerNonce
	if h.role == RoleResponder {
		initPub, initNonce, respPub, respNonce = h.peerPubKey, h.peerNonce, h.pubKey, h.nonce
	}
	salt := make([]byte, 0, 32*4)
	salt = append(salt, initPub[:]...)
	salt = append(salt, initNonce[:]...)
	salt = append(salt, respPub[:]...)
	salt = append(salt, respNonce[:]...)
	return salt
}

type reader interface {
	Read(p []byte) (int, error)
}

func readFull(r reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, fmt.Errorf("cryptoutil: derive key material: %w", err)
		}
	}
	return total, nil
}

// decimalDigits reads enough pseudorandom bytes from r to produce length
// decimal digits, zero-padded.
func decimalDigits(r reader, length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("cryptoutil: verification code length must be >= 1")
	}
	buf := make([]byte, 8)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	mod := uint64(1)
	for i := 0; i < length; i++ {
		mod *= 10
	}
	v %= mod
	return fmt.Sprintf("%0*d", length, v), nil
}
