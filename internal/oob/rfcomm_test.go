package oob_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/carlinkd/cartrustd/internal/capability"
	"github.com/carlinkd/cartrustd/internal/oob"
)

func TestRFCOMMChannelReadsPayload(t *testing.T) {
	t.Parallel()

	var payload bytes.Buffer
	key := bytes.Repeat([]byte{0xAB}, 32)
	mobileIV := bytes.Repeat([]byte{0x01}, 12)
	ihuIV := bytes.Repeat([]byte{0x02}, 12)
	payload.Write(key)
	payload.Write(mobileIV)
	payload.Write(ihuIV)

	ch := oob.NewRFCOMMChannel(&payload)
	if ch.Type() != capability.ChannelBTRFCOMM {
		t.Fatalf("Type() = %v, want ChannelBTRFCOMM", ch.Type())
	}

	data, err := ch.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(data.EncryptionKey[:], key) {
		t.Fatalf("EncryptionKey mismatch")
	}
	if !bytes.Equal(data.MobileIV[:], mobileIV) {
		t.Fatalf("MobileIV mismatch")
	}
	if !bytes.Equal(data.IHUIV[:], ihuIV) {
		t.Fatalf("IHUIV mismatch")
	}
}

func TestRFCOMMChannelReadRespectsContext(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ch := oob.NewRFCOMMChannel(pr)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ch.Read(ctx)
	if err == nil {
		t.Fatalf("expected Read to fail when context is canceled before any data arrives")
	}
}
