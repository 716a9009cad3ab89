package oob

import (
	"context"
	"errors"

	"github.com/carlinkd/cartrustd/internal/capability"
)

// ErrAllChannelsFailed is returned by Manager.Resolve when every
// configured channel failed or the manager had none configured; the
// caller should fall back to visual verification (spec.md §4.6: "If all
// fail, returns none and the FSM falls back to visual verification").
var ErrAllChannelsFailed = errors.New("oob: all channels failed")

// Data is the key material an OOB channel reader produces (spec.md
// §4.6). MobileIV and IHUIV are always distinct.
type Data struct {
	EncryptionKey [32]byte
	MobileIV      [12]byte
	IHUIV         [12]byte
}

// Channel is a single OOB verification source (spec.md §4.6: "Each
// channel is either a reader ... or a failure").
type Channel interface {
	Type() capability.ChannelType
	Read(ctx context.Context) (Data, error)
}

// Manager starts every configured Channel in parallel and returns the
// first one to succeed, cancelling the rest (spec.md §4.6, "A single
// OobChannelManager starts all configured channels in parallel, returns
// the first successful OobData, and cancels the others").
type Manager struct {
	channels []Channel
}

// NewManager builds a Manager over the given channels.
func NewManager(channels ...Channel) *Manager {
	return &Manager{channels: channels}
}

// Resolve runs every channel concurrently and returns the first
// successful Data, or ErrAllChannelsFailed if none succeed (or none were
// configured).
func (m *Manager) Resolve(ctx context.Context) (Data, error) {
	if len(m.channels) == 0 {
		return Data{}, ErrAllChannelsFailed
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		data Data
		err  error
	}
	results := make(chan result, len(m.channels))

	for _, ch := range m.channels {
		ch := ch
		go func() {
			data, err := ch.Read(raceCtx)
			results <- result{data: data, err: err}
		}()
	}

	var lastErr error
	for range m.channels {
		r := <-results
		if r.err == nil {
			cancel()
			return r.data, nil
		}
		lastErr = r.err
	}
	if lastErr == nil {
		lastErr = ErrAllChannelsFailed
	}
	return Data{}, errors.Join(ErrAllChannelsFailed, lastErr)
}
