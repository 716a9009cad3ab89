package stack

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/cryptoutil"
	"github.com/carlinkd/cartrustd/internal/oob"
	"github.com/carlinkd/cartrustd/internal/pairing"
	"github.com/carlinkd/cartrustd/internal/wire"
)

// Sentinel errors for the cleartext bootstrap exchange that precedes the
// encrypted session (spec.md §4.1).
var (
	ErrUnexpectedOperation = errors.New("stack: unexpected operation during handshake bootstrap")
	ErrUnexpectedStep      = errors.New("stack: unexpected handshake step kind")
	ErrVisualRejected      = errors.New("stack: visual confirmation rejected")
)

// Bootstrap implements pairing.CapabilityExchanger, pairing.Handshaker and
// pairing.DeviceIDExchanger over a MessageStream, carrying each step as a
// wire.HandshakeStep inside an ENCRYPTION_HANDSHAKE message (spec.md §6).
// It is single-use, one per pairing attempt, mirroring the Controller it
// serves.
type Bootstrap struct {
	stream   *MessageStream
	role     cryptoutil.Role
	isMobile bool

	hs   *cryptoutil.Handshake
	keys cryptoutil.SessionKeys
}

// NewBootstrap builds a Bootstrap driving stream as role. isMobile selects
// which side of the per-direction IVs this process derives its
// StreamCipher from once the handshake completes (NewMobileStreamCipher
// vs. NewIHUStreamCipher, spec.md §4.2).
func NewBootstrap(stream *MessageStream, role cryptoutil.Role, isMobile bool) *Bootstrap {
	return &Bootstrap{stream: stream, role: role, isMobile: isMobile}
}

// ExchangeVersion implements pairing.CapabilityExchanger.
func (b *Bootstrap) ExchangeVersion(ctx context.Context, local capability.VersionRecord) (capability.VersionRecord, error) {
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepVersion, Version: local}, false); err != nil {
		return capability.VersionRecord{}, err
	}
	step, err := b.recvStep(ctx, wire.StepVersion)
	if err != nil {
		return capability.VersionRecord{}, err
	}
	return step.Version, nil
}

// ExchangeChannels implements pairing.CapabilityExchanger.
func (b *Bootstrap) ExchangeChannels(ctx context.Context, local []capability.ChannelType) ([]capability.ChannelType, error) {
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepChannels, Channels: local}, false); err != nil {
		return nil, err
	}
	step, err := b.recvStep(ctx, wire.StepChannels)
	if err != nil {
		return nil, err
	}
	return step.Channels, nil
}

// Run implements pairing.Handshaker, driving the three-message UKEY2-style
// exchange to completion and installing the derived StreamCipher on the
// underlying MessageStream.
func (b *Bootstrap) Run(ctx context.Context, _ pairing.Mode, securityVersion uint32) (string, error) {
	hs, err := cryptoutil.New(b.role)
	if err != nil {
		return "", fmt.Errorf("stack: new handshake: %w", err)
	}
	b.hs = hs

	switch b.role {
	case cryptoutil.RoleInitiator:
		if err := b.runInitiator(ctx); err != nil {
			return "", err
		}
	case cryptoutil.RoleResponder:
		if err := b.runResponder(ctx); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("stack: unknown handshake role %d", b.role)
	}

	keys, err := b.hs.Derive()
	if err != nil {
		return "", fmt.Errorf("stack: derive session keys: %w", err)
	}
	b.keys = keys

	cipher, err := b.newCipher(keys)
	if err != nil {
		return "", err
	}
	b.stream.SetCipher(cipher)

	return b.hs.VerificationCode(capability.VerificationCodeLength(securityVersion))
}

func (b *Bootstrap) newCipher(keys cryptoutil.SessionKeys) (*cryptoutil.StreamCipher, error) {
	if b.isMobile {
		return cryptoutil.NewMobileStreamCipher(keys)
	}
	return cryptoutil.NewIHUStreamCipher(keys)
}

func (b *Bootstrap) runInitiator(ctx context.Context) error {
	init, err := b.hs.Init()
	if err != nil {
		return fmt.Errorf("stack: handshake init: %w", err)
	}
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepInit, Init: init}, false); err != nil {
		return err
	}

	respStep, err := b.recvStep(ctx, wire.StepResponse)
	if err != nil {
		return err
	}
	if err := b.hs.HandleResponse(respStep.Response); err != nil {
		return fmt.Errorf("stack: handle response: %w", err)
	}

	finish, err := b.hs.Finish()
	if err != nil {
		return fmt.Errorf("stack: handshake finish: %w", err)
	}
	return b.sendStep(wire.HandshakeStep{Kind: wire.StepFinish, Finish: finish}, false)
}

func (b *Bootstrap) runResponder(ctx context.Context) error {
	initStep, err := b.recvStep(ctx, wire.StepInit)
	if err != nil {
		return err
	}
	if err := b.hs.HandleInit(initStep.Init); err != nil {
		return fmt.Errorf("stack: handle init: %w", err)
	}

	resp, err := b.hs.Response()
	if err != nil {
		return fmt.Errorf("stack: handshake response: %w", err)
	}
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepResponse, Response: resp}, false); err != nil {
		return err
	}

	finishStep, err := b.recvStep(ctx, wire.StepFinish)
	if err != nil {
		return err
	}
	return b.hs.HandleFinish(finishStep.Finish)
}

// ConfirmVisual implements pairing.Handshaker, exchanging the local and
// peer visual-confirmation verdicts. Pairing only succeeds if both sides
// accepted (spec.md §4.1, "Verifying").
func (b *Bootstrap) ConfirmVisual(ctx context.Context, accepted bool) error {
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepVisualConfirm, VisualAccepted: accepted}, false); err != nil {
		return err
	}
	peerStep, err := b.recvStep(ctx, wire.StepVisualConfirm)
	if err != nil {
		return err
	}
	if !accepted || !peerStep.VisualAccepted {
		return ErrVisualRejected
	}
	return nil
}

// ConfirmOOB implements pairing.Handshaker, sending verificationCode sealed
// under oobData's key over the MessageStream as a StepChallenge and
// accepting immediately on byte-equality with the peer's decrypted
// verification code, without any host input (spec.md §4.1, "Association
// with OOB available").
func (b *Bootstrap) ConfirmOOB(ctx context.Context, verificationCode string, oobData oob.Data) error {
	keys := cryptoutil.SessionKeys{
		EncryptionKey: oobData.EncryptionKey,
		MobileIV:      oobData.MobileIV,
		IHUIV:         oobData.IHUIV,
	}
	cipher, err := b.newCipher(keys)
	if err != nil {
		return fmt.Errorf("stack: new OOB cipher: %w", err)
	}

	sealed := cipher.Seal([]byte(verificationCode))
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepChallenge, Challenge: sealed}, false); err != nil {
		return err
	}

	peerStep, err := b.recvStep(ctx, wire.StepChallenge)
	if err != nil {
		return err
	}
	plaintext, err := cipher.Open(peerStep.Challenge)
	if err != nil {
		return fmt.Errorf("stack: open OOB challenge: %w", cryptoutil.ErrAuthMismatch)
	}
	if !bytes.Equal(plaintext, []byte(verificationCode)) {
		return fmt.Errorf("stack: OOB verification code mismatch: %w", cryptoutil.ErrAuthMismatch)
	}
	return nil
}

// ConfirmReconnect implements pairing.Handshaker, exchanging
// HMAC(identificationKey, verificationCode) as a StepChallenge and
// accepting on byte-equality with the peer's challenge (spec.md §4.1,
// "Reconnection").
func (b *Bootstrap) ConfirmReconnect(ctx context.Context, verificationCode string, identificationKey [cryptoutil.IdentificationKeySize]byte) error {
	local := cryptoutil.ReconnectChallenge(identificationKey, verificationCode)
	if err := b.sendStep(wire.HandshakeStep{Kind: wire.StepChallenge, Challenge: local}, false); err != nil {
		return err
	}

	peerStep, err := b.recvStep(ctx, wire.StepChallenge)
	if err != nil {
		return err
	}
	if !cryptoutil.VerifyReconnectChallenge(identificationKey, verificationCode, peerStep.Challenge) {
		return fmt.Errorf("stack: reconnection challenge mismatch: %w", cryptoutil.ErrAuthMismatch)
	}
	return nil
}

// Exchange implements pairing.DeviceIDExchanger, sending localID as the
// first encrypted payload of the session and returning the peer's device
// identifier (spec.md §4.1, "DeviceIDExchange").
func (b *Bootstrap) Exchange(ctx context.Context, localID []byte) ([]byte, error) {
	payload := wire.HandshakeStep{Kind: wire.StepDeviceID, DeviceID: localID}.Marshal()
	if err := b.stream.SendEncrypted(wire.OperationEncryptionHandshake, nil, payload); err != nil {
		return nil, fmt.Errorf("stack: send device id: %w", err)
	}

	msg, err := b.stream.RecvContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("stack: recv device id: %w", err)
	}
	if msg.Operation != wire.OperationEncryptionHandshake {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedOperation, msg.Operation)
	}
	step, err := wire.UnmarshalHandshakeStep(msg.Payload)
	if err != nil {
		return nil, err
	}
	if step.Kind != wire.StepDeviceID {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedStep, step.Kind, wire.StepDeviceID)
	}
	return step.DeviceID, nil
}

func (b *Bootstrap) sendStep(step wire.HandshakeStep, encrypted bool) error {
	payload := step.Marshal()
	if encrypted {
		return b.stream.SendEncrypted(wire.OperationEncryptionHandshake, nil, payload)
	}
	return b.stream.Send(wire.OperationEncryptionHandshake, nil, payload)
}

func (b *Bootstrap) recvStep(ctx context.Context, want wire.HandshakeStepKind) (wire.HandshakeStep, error) {
	msg, err := b.stream.RecvContext(ctx)
	if err != nil {
		return wire.HandshakeStep{}, err
	}
	if msg.Operation != wire.OperationEncryptionHandshake {
		return wire.HandshakeStep{}, fmt.Errorf("%w: got %s", ErrUnexpectedOperation, msg.Operation)
	}
	step, err := wire.UnmarshalHandshakeStep(msg.Payload)
	if err != nil {
		return wire.HandshakeStep{}, err
	}
	if step.Kind != want {
		return wire.HandshakeStep{}, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedStep, step.Kind, want)
	}
	return step, nil
}
