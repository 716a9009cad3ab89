package capability_test

import (
	"errors"
	"testing"

	"github.com/carlinkd/cartrustd/internal/capability"
)

func TestResolveIntersectingRanges(t *testing.T) {
	t.Parallel()

	local := capability.VersionRecord{MinMessageVersion: 1, MaxMessageVersion: 3, MinSecurityVersion: 1, MaxSecurityVersion: 2}
	remote := capability.VersionRecord{MinMessageVersion: 2, MaxMessageVersion: 4, MinSecurityVersion: 1, MaxSecurityVersion: 1}

	resolved, err := capability.Resolve(local, remote,
		[]capability.ChannelType{capability.ChannelBTRFCOMM, capability.ChannelPreAssociation},
		[]capability.ChannelType{capability.ChannelPreAssociation},
	)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.MessageVersion != 3 {
		t.Fatalf("expected message version 3, got %d", resolved.MessageVersion)
	}
	if resolved.SecurityVersion != 1 {
		t.Fatalf("expected security version 1, got %d", resolved.SecurityVersion)
	}
	if len(resolved.OOBChannels) != 1 || resolved.OOBChannels[0] != capability.ChannelPreAssociation {
		t.Fatalf("expected channel intersection {PRE_ASSOCIATION}, got %v", resolved.OOBChannels)
	}
}

func TestResolveEmptyIntersectionFails(t *testing.T) {
	t.Parallel()

	local := capability.VersionRecord{MinMessageVersion: 1, MaxMessageVersion: 2, MinSecurityVersion: 1, MaxSecurityVersion: 1}
	remote := capability.VersionRecord{MinMessageVersion: 3, MaxMessageVersion: 4, MinSecurityVersion: 1, MaxSecurityVersion: 1}

	_, err := capability.Resolve(local, remote, nil, nil)
	if !errors.Is(err, capability.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestVerificationCodeLengthMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		secVer uint32
		want   int
	}{
		{0, 6},
		{1, 6},
		{2, 16},
		{9, 16},
	}
	for _, tc := range cases {
		if got := capability.VerificationCodeLength(tc.secVer); got != tc.want {
			t.Fatalf("VerificationCodeLength(%d) = %d, want %d", tc.secVer, got, tc.want)
		}
	}
}
