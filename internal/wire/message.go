package wire

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Operation enumerates the stream message operation types (spec.md §6).
type Operation uint32

const (
	// OperationUnspecified is never sent on the wire; it is the default
	// recovered for any operation value this codec does not recognize
	// (spec.md §9: unknown wire enum values map to a documented default).
	OperationUnspecified Operation = 0

	OperationEncryptionHandshake Operation = 1
	OperationClientMessage       Operation = 2
	OperationQuery               Operation = 3
	OperationQueryResponse       Operation = 4
	OperationAck                 Operation = 5
	OperationDisable             Operation = 6
)

// String returns the human-readable operation name.
func (o Operation) String() string {
	switch o {
	case OperationEncryptionHandshake:
		return "ENCRYPTION_HANDSHAKE"
	case OperationClientMessage:
		return "CLIENT_MESSAGE"
	case OperationQuery:
		return "QUERY"
	case OperationQueryResponse:
		return "QUERY_RESPONSE"
	case OperationAck:
		return "ACK"
	case OperationDisable:
		return "DISABLE"
	default:
		return "UNSPECIFIED"
	}
}

// RequiresEncryption reports whether a message with this operation must be
// sent with is_payload_encrypted=true once the session has reached
// KEY_CONFIRMED (spec.md §4.2).
func (o Operation) RequiresEncryption() bool {
	switch o {
	case OperationClientMessage, OperationQuery, OperationQueryResponse, OperationDisable:
		return true
	default:
		return false
	}
}

// Message field numbers (spec.md §6, "Wire -- stream message").
const (
	messageFieldPayload       protowire.Number = 1
	messageFieldOperation     protowire.Number = 2
	messageFieldEncrypted     protowire.Number = 3
	messageFieldOriginalSize  protowire.Number = 4
	messageFieldRecipient     protowire.Number = 5
)

// Message is the stream message described in spec.md §3 ("Stream message").
type Message struct {
	Payload []byte
	// Operation holds the decoded operation; UnmarshalMessage folds
	// unknown wire values to OperationUnspecified rather than failing.
	Operation           Operation
	IsPayloadEncrypted  bool
	OriginalMessageSize uint32
	// Recipient is nil when the message carries no recipient.
	Recipient *uuid.UUID
}

// Marshal encodes m as a protobuf-wire-compatible Message.
func (m Message) Marshal() []byte {
	var b []byte
	b = appendBytes(b, messageFieldPayload, m.Payload)
	b = appendVarint(b, messageFieldOperation, uint64(m.Operation))
	b = appendBool(b, messageFieldEncrypted, m.IsPayloadEncrypted)
	b = appendVarint(b, messageFieldOriginalSize, uint64(m.OriginalMessageSize))
	if m.Recipient != nil {
		id := *m.Recipient
		b = appendBytes(b, messageFieldRecipient, id[:])
	}
	return b
}

// UnmarshalMessage decodes a Message from its protobuf-wire-compatible form.
func UnmarshalMessage(b []byte) (Message, error) {
	var m Message
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, rest []byte) (int, error) {
		switch num {
		case messageFieldPayload:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: payload", ErrTruncated)
			}
			m.Payload = append([]byte(nil), v...)
			return n, nil
		case messageFieldOperation:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: operation", ErrTruncated)
			}
			m.Operation = decodeOperation(v)
			return n, nil
		case messageFieldEncrypted:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: is_payload_encrypted", ErrTruncated)
			}
			m.IsPayloadEncrypted = v != 0
			return n, nil
		case messageFieldOriginalSize:
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: original_message_size", ErrTruncated)
			}
			m.OriginalMessageSize = uint32(v)
			return n, nil
		case messageFieldRecipient:
			v, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return 0, fmt.Errorf("%w: recipient", ErrTruncated)
			}
			if len(v) == 16 {
				id, err := uuid.FromBytes(v)
				if err == nil {
					m.Recipient = &id
				}
			}
			return n, nil
		default:
			return skipUnknown(typ, rest)
		}
	})
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// decodeOperation maps an unrecognized wire value to OperationUnspecified
// rather than propagating an invalid Operation (spec.md §9).
func decodeOperation(v uint64) Operation {
	switch Operation(v) {
	case OperationEncryptionHandshake, OperationClientMessage, OperationQuery,
		OperationQueryResponse, OperationAck, OperationDisable:
		return Operation(v)
	default:
		return OperationUnspecified
	}
}
