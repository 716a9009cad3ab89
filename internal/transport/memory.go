package transport

import (
	"context"
	"io"
	"sync"
)

// Memory is an in-memory Transport backed by an io.Pipe, used by tests
// and by local-loopback tooling. Connect, RequestMTU, DiscoverServices
// and BondState all succeed immediately.
type Memory struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu        sync.Mutex
	connected bool
	closed    bool
}

// NewMemoryPair returns two Memory transports, each other's peer: writes
// to one are readable from the other.
func NewMemoryPair() (a, b *Memory) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &Memory{reader: ar, writer: aw}, &Memory{reader: br, writer: bw}
}

func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.connected = true
	return nil
}

func (m *Memory) RequestMTU(_ context.Context, requested int) (int, error) {
	return requested, nil
}

func (m *Memory) DiscoverServices(_ context.Context, _ ServiceUUIDs) error {
	return nil
}

func (m *Memory) BondState(_ context.Context) (BondState, error) {
	return BondNone, nil
}

func (m *Memory) Read(p []byte) (int, error) {
	return m.reader.Read(p)
}

func (m *Memory) Write(p []byte) (int, error) {
	return m.writer.Write(p)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	_ = m.reader.Close()
	return m.writer.Close()
}
