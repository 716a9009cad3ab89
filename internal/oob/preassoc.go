package oob

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/wire"
)

// oobQueryKey is the reserved query parameter carrying the base64url
// protobuf token (spec.md §6: "oob=<base64url-protobuf>").
const oobQueryKey = "oob"

// reservedPrefixes are query-parameter prefixes no caller-supplied
// parameter may use; a URI carrying one that isn't the recognized oob
// key is rejected outright (spec.md §4.6: "Unknown parameters starting
// with reserved prefixes (oob, bat) cause the URI to be rejected").
var reservedPrefixes = []string{"oob", "bat"}

// ErrReservedParameter is returned when a URI carries an unrecognized
// query parameter under a reserved prefix.
var ErrReservedParameter = errors.New("oob: unrecognized reserved query parameter")

// ErrMissingToken is returned when a PRE_ASSOCIATION URI carries no oob token.
var ErrMissingToken = errors.New("oob: URI carries no oob token")

// ParsedURI is the decoded form of a PRE_ASSOCIATION OOB URI (spec.md
// §6: "On decode, produces {queries, oob_data, device_identifier,
// flags}"). Flags is reserved for future reserved-prefix parameters;
// none are defined yet, so it is always empty.
type ParsedURI struct {
	Queries          map[string]string
	OOBData          Data
	DeviceIdentifier []byte
	Flags            map[string]string
}

// ParseURI parses a PRE_ASSOCIATION OOB URI of the form
// "scheme://authority/path?oob=<base64url-protobuf>[&<user-params>]".
func ParseURI(raw string) (ParsedURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURI{}, fmt.Errorf("oob: parse URI: %w", err)
	}

	queries := make(map[string]string)
	flags := make(map[string]string)
	var tokenParam string
	haveToken := false

	for key, values := range u.Query() {
		value := ""
		if len(values) > 0 {
			value = values[0]
		}
		if key == oobQueryKey {
			tokenParam, haveToken = value, true
			continue
		}
		if hasReservedPrefix(key) {
			return ParsedURI{}, fmt.Errorf("%w: %s", ErrReservedParameter, key)
		}
		queries[key] = value
	}

	if !haveToken {
		return ParsedURI{}, ErrMissingToken
	}

	raw64, err := base64.RawURLEncoding.DecodeString(tokenParam)
	if err != nil {
		// Tolerate padded base64url too.
		raw64, err = base64.URLEncoding.DecodeString(tokenParam)
		if err != nil {
			return ParsedURI{}, fmt.Errorf("oob: decode token: %w", err)
		}
	}

	token, err := wire.UnmarshalOobToken(raw64)
	if err != nil {
		return ParsedURI{}, fmt.Errorf("oob: unmarshal token: %w", err)
	}
	if len(token.EncryptionKey) != 32 || len(token.MobileIV) != 12 || len(token.IHUIV) != 12 {
		return ParsedURI{}, fmt.Errorf("oob: malformed token field sizes")
	}

	var data Data
	copy(data.EncryptionKey[:], token.EncryptionKey)
	copy(data.MobileIV[:], token.MobileIV)
	copy(data.IHUIV[:], token.IHUIV)

	return ParsedURI{
		Queries:          queries,
		OOBData:          data,
		DeviceIdentifier: token.DeviceIdentifier,
		Flags:            flags,
	}, nil
}

func hasReservedPrefix(key string) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// PreAssociationChannel is a Channel whose Data was already delivered
// out of band (e.g. scanned from a QR code) before pairing began; Read
// returns it immediately.
type PreAssociationChannel struct {
	data Data
}

// NewPreAssociationChannel wraps the OOB data recovered from ParseURI.
func NewPreAssociationChannel(data Data) *PreAssociationChannel {
	return &PreAssociationChannel{data: data}
}

func (c *PreAssociationChannel) Type() capability.ChannelType {
	return capability.ChannelPreAssociation
}

func (c *PreAssociationChannel) Read(_ context.Context) (Data, error) {
	return c.data, nil
}
