package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// OobToken field numbers (spec.md §4.6, "PRE_ASSOCIATION URI parsing":
// "a base64url-encoded protobuf { token: {encryption_key, ihu_iv,
// mobile_iv}, device_identifier }"). The nested "token" message is
// flattened into this one type for simplicity; field numbers 1-3 are the
// token's fields, 4 is the sibling device_identifier.
const (
	oobTokenFieldEncryptionKey    protowire.Number = 1
	oobTokenFieldIHUIV            protowire.Number = 2
	oobTokenFieldMobileIV         protowire.Number = 3
	oobTokenFieldDeviceIdentifier protowire.Number = 4
)

// OobToken is the payload carried by a PRE_ASSOCIATION OOB URI's
// reserved query parameter.
type OobToken struct {
	EncryptionKey    []byte
	IHUIV            []byte
	MobileIV         []byte
	DeviceIdentifier []byte
}

// Marshal encodes t as a protobuf-wire-compatible OobToken.
func (t OobToken) Marshal() []byte {
	var b []byte
	b = appendBytes(b, oobTokenFieldEncryptionKey, t.EncryptionKey)
	b = appendBytes(b, oobTokenFieldIHUIV, t.IHUIV)
	b = appendBytes(b, oobTokenFieldMobileIV, t.MobileIV)
	b = appendBytes(b, oobTokenFieldDeviceIdentifier, t.DeviceIdentifier)
	return b
}

// UnmarshalOobToken decodes an OobToken from its protobuf-wire-compatible form.
func UnmarshalOobToken(b []byte) (OobToken, error) {
	var t OobToken
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case oobTokenFieldEncryptionKey:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: encryption_key", ErrTruncated)
			}
			t.EncryptionKey = append([]byte(nil), v...)
			return n, nil
		case oobTokenFieldIHUIV:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: ihu_iv", ErrTruncated)
			}
			t.IHUIV = append([]byte(nil), v...)
			return n, nil
		case oobTokenFieldMobileIV:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: mobile_iv", ErrTruncated)
			}
			t.MobileIV = append([]byte(nil), v...)
			return n, nil
		case oobTokenFieldDeviceIdentifier:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: device_identifier", ErrTruncated)
			}
			t.DeviceIdentifier = append([]byte(nil), v...)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return OobToken{}, err
	}
	return t, nil
}
