package capability

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is returned when the local and remote version
// ranges do not intersect (spec.md §4.1: "Resolved version = per-side
// min(max_local, max_remote); if the intersection is empty ->
// FAILED(UnsupportedVersion)").
var ErrUnsupportedVersion = errors.New("capability: no overlapping version range")

// ErrPeerTimeout and ErrTransportLost are surfaced by the pairing FSM
// (which owns the actual wait) when the remote side's version/capability
// reply does not arrive in time, or the transport drops mid-exchange
// (spec.md §4.5).
var (
	ErrPeerTimeout   = errors.New("capability: timed out waiting for peer reply")
	ErrTransportLost = errors.New("capability: transport lost during exchange")
)

// ChannelType identifies an OOB verification channel kind (spec.md §4.6).
type ChannelType uint8

const (
	ChannelUnspecified ChannelType = iota
	ChannelBTRFCOMM
	ChannelPreAssociation
)

func (c ChannelType) String() string {
	switch c {
	case ChannelBTRFCOMM:
		return "BT_RFCOMM"
	case ChannelPreAssociation:
		return "PRE_ASSOCIATION"
	default:
		return "UNSPECIFIED"
	}
}

// VersionRecord is the {min,max} range each side advertises for the
// stream-message protocol and the security (handshake) protocol
// (spec.md §4.1: "each side sends a {min_msg_ver, max_msg_ver,
// min_sec_ver, max_sec_ver} record").
type VersionRecord struct {
	MinMessageVersion  uint32
	MaxMessageVersion  uint32
	MinSecurityVersion uint32
	MaxSecurityVersion uint32
}

// Resolved is the tuple both sides agree to operate under after a
// successful exchange (spec.md §4.5: "computes the resolved tuple
// (message_version, security_version, oob_channels)").
type Resolved struct {
	MessageVersion  uint32
	SecurityVersion uint32
	OOBChannels     []ChannelType
}

// Resolve computes the resolved (message_version, security_version,
// oob_channels) tuple from a local and a remote version/capability
// record, once both have already been received over the wire. Waiting
// for the remote reply, and translating a timeout or dropped transport
// into ErrPeerTimeout/ErrTransportLost, is the caller's (pairing FSM's)
// responsibility -- this function is pure.
func Resolve(local, remote VersionRecord, localChannels, remoteChannels []ChannelType) (Resolved, error) {
	msgVer, err := intersect(local.MinMessageVersion, local.MaxMessageVersion, remote.MinMessageVersion, remote.MaxMessageVersion)
	if err != nil {
		return Resolved{}, fmt.Errorf("message version: %w", err)
	}
	secVer, err := intersect(local.MinSecurityVersion, local.MaxSecurityVersion, remote.MinSecurityVersion, remote.MaxSecurityVersion)
	if err != nil {
		return Resolved{}, fmt.Errorf("security version: %w", err)
	}
	return Resolved{
		MessageVersion:  msgVer,
		SecurityVersion: secVer,
		OOBChannels:     intersectChannels(localChannels, remoteChannels),
	}, nil
}

// intersect implements "Resolved version = per-side min(max_local,
// max_remote)", rejecting an empty [min,max] intersection.
func intersect(localMin, localMax, remoteMin, remoteMax uint32) (uint32, error) {
	lo := localMin
	if remoteMin > lo {
		lo = remoteMin
	}
	hi := localMax
	if remoteMax < hi {
		hi = remoteMax
	}
	if lo > hi {
		return 0, ErrUnsupportedVersion
	}
	return hi, nil
}

// intersectChannels returns the channels present in both sets, in the
// order they appear in localChannels (spec.md §4.1: "resolved set =
// intersection; used by §4.6").
func intersectChannels(localChannels, remoteChannels []ChannelType) []ChannelType {
	remoteSet := make(map[ChannelType]struct{}, len(remoteChannels))
	for _, c := range remoteChannels {
		remoteSet[c] = struct{}{}
	}
	var out []ChannelType
	for _, c := range localChannels {
		if _, ok := remoteSet[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// VerificationCodeLength maps a resolved security version to the decimal
// verification-code length the handshake should derive (spec.md §9, open
// question: "Source uses 16-character verification codes in some paths
// and 6-character in others depending on security version; the exact
// mapping table is left to the version resolver and should be pinned by
// tests"). Decision recorded in DESIGN.md: security version 1 is the
// original 6-digit visual-confirmation code; version 2 and above widen to
// a 16-digit code for the stronger OOB/reconnection paths.
func VerificationCodeLength(securityVersion uint32) int {
	if securityVersion <= 1 {
		return 6
	}
	return 16
}
