package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncated indicates the buffer ended before a complete field could be
// consumed.
var ErrTruncated = errors.New("wire: truncated field")

// ErrUnknownField is returned when strict decoding encounters a field
// number it does not recognize. No decoder in this package returns it:
// every decoder skips unknown fields, per the duck-typed-enum
// forward-compatibility rule in spec.md §9 ("Design Notes").
var ErrUnknownField = errors.New("wire: unknown field")

// appendString appends a length-delimited string field.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendBytes appends a length-delimited bytes field.
func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendVarint appends a varint field, omitting the zero value (proto3
// implicit-presence semantics).
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// appendBool appends a boolean varint field.
func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// appendFixed32 appends a fixed32 field, omitting the zero value.
func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

// appendMessage appends a nested length-delimited message field.
func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	if len(msg) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// fieldVisitor is invoked once per decoded field. It returns the number of
// bytes it consumed from the value portion (for BytesType, the payload
// plus its length prefix) or an error.
type fieldVisitor func(num protowire.Number, typ protowire.Type, b []byte) (n int, err error)

// walkFields decodes b as a sequence of tagged fields, calling visit for
// each one. Unknown field numbers are skipped by the default fall-through
// in each visitor (skipUnknown does the actual skip arithmetic).
func walkFields(b []byte, visit fieldVisitor) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return fmt.Errorf("%w: bad tag", ErrTruncated)
		}
		b = b[tagLen:]

		n, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 || n > len(b) {
			return fmt.Errorf("%w: field %d", ErrTruncated, num)
		}
		b = b[n:]
	}
	return nil
}

// skipUnknown consumes and discards one field value of the given type,
// returning the number of bytes consumed.
func skipUnknown(typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: unsupported wire type %d", ErrTruncated, typ)
	}
	return n, nil
}
