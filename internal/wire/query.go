package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// QueryPayload field numbers (spec.md §4.3, "a QUERY carries an ID, the
// recipient feature it targets, a payload and out-of-band parameters").
const (
	queryFieldID         protowire.Number = 1
	queryFieldRecipient  protowire.Number = 2
	queryFieldPayload    protowire.Number = 3
	queryFieldParameters protowire.Number = 4
)

// ResponsePayload field numbers.
const (
	responseFieldID         protowire.Number = 1
	responseFieldSuccessful protowire.Number = 2
	responseFieldPayload    protowire.Number = 3
)

// QueryPayload is the wire form of a session.Query, carried as the
// Message.Payload of a QUERY operation.
type QueryPayload struct {
	ID         uint32
	Recipient  string
	Payload    []byte
	Parameters []byte
}

// Marshal encodes q as a protobuf-wire-compatible QueryPayload.
func (q QueryPayload) Marshal() []byte {
	var b []byte
	b = appendVarint(b, queryFieldID, uint64(q.ID))
	b = appendString(b, queryFieldRecipient, q.Recipient)
	b = appendBytes(b, queryFieldPayload, q.Payload)
	b = appendBytes(b, queryFieldParameters, q.Parameters)
	return b
}

// UnmarshalQueryPayload decodes a QueryPayload from its protobuf-wire-compatible form.
func UnmarshalQueryPayload(b []byte) (QueryPayload, error) {
	var q QueryPayload
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case queryFieldID:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: id", ErrTruncated)
			}
			q.ID = uint32(v)
			return n, nil
		case queryFieldRecipient:
			v, n := protowire.ConsumeString(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: recipient", ErrTruncated)
			}
			q.Recipient = v
			return n, nil
		case queryFieldPayload:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: payload", ErrTruncated)
			}
			q.Payload = append([]byte(nil), v...)
			return n, nil
		case queryFieldParameters:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: parameters", ErrTruncated)
			}
			q.Parameters = append([]byte(nil), v...)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return QueryPayload{}, err
	}
	return q, nil
}

// ResponsePayload is the wire form of a session.Response, carried as the
// Message.Payload of a QUERY_RESPONSE operation.
type ResponsePayload struct {
	ID         uint32
	Successful bool
	Payload    []byte
}

// Marshal encodes r as a protobuf-wire-compatible ResponsePayload.
func (r ResponsePayload) Marshal() []byte {
	var b []byte
	b = appendVarint(b, responseFieldID, uint64(r.ID))
	b = appendBool(b, responseFieldSuccessful, r.Successful)
	b = appendBytes(b, responseFieldPayload, r.Payload)
	return b
}

// UnmarshalResponsePayload decodes a ResponsePayload from its protobuf-wire-compatible form.
func UnmarshalResponsePayload(b []byte) (ResponsePayload, error) {
	var r ResponsePayload
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case responseFieldID:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: id", ErrTruncated)
			}
			r.ID = uint32(v)
			return n, nil
		case responseFieldSuccessful:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: successful", ErrTruncated)
			}
			r.Successful = v != 0
			return n, nil
		case responseFieldPayload:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: payload", ErrTruncated)
			}
			r.Payload = append([]byte(nil), v...)
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return ResponsePayload{}, err
	}
	return r, nil
}
