package oob

import (
	"context"
	"fmt"
	"io"

	"github.com/carlinkd/cartrustd/internal/capability"
)

// rfcommPayloadSize is the raw wire size of a Data value: a 32-byte
// encryption key followed by two distinct 12-byte IVs.
const rfcommPayloadSize = 32 + 12 + 12

// RFCOMMChannel reads a Data value from a bonded RFCOMM socket (spec.md
// §4.6: "BT_RFCOMM (in-band over a bonded RFCOMM socket after pairing)").
// The socket is expected to already be connected and bonded by the time
// Read is called; RFCOMM bring-up itself goes through internal/transport.
type RFCOMMChannel struct {
	conn io.Reader
}

// NewRFCOMMChannel wraps an already-connected, bonded RFCOMM socket.
func NewRFCOMMChannel(conn io.Reader) *RFCOMMChannel {
	return &RFCOMMChannel{conn: conn}
}

func (c *RFCOMMChannel) Type() capability.ChannelType {
	return capability.ChannelBTRFCOMM
}

// Read blocks until the peer writes its Data payload over the socket, or
// ctx is done.
func (c *RFCOMMChannel) Read(ctx context.Context) (Data, error) {
	type result struct {
		data Data
		err  error
	}
	done := make(chan result, 1)

	go func() {
		buf := make([]byte, rfcommPayloadSize)
		if _, err := io.ReadFull(c.conn, buf); err != nil {
			done <- result{err: fmt.Errorf("oob: read RFCOMM payload: %w", err)}
			return
		}
		var d Data
		copy(d.EncryptionKey[:], buf[0:32])
		copy(d.MobileIV[:], buf[32:44])
		copy(d.IHUIV[:], buf[44:56])
		done <- result{data: d}
	}()

	select {
	case <-ctx.Done():
		return Data{}, ctx.Err()
	case r := <-done:
		return r.data, r.err
	}
}
