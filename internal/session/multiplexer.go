package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// maxUnclaimedMessages bounds the per-recipient FIFO of CLIENT_MESSAGE
// payloads that arrive before any feature has registered for that
// recipient. Once full, the oldest queued message is dropped to make room
// for the newest rather than blocking or growing unbounded when a
// consumer falls behind.
const maxUnclaimedMessages = 32

var (
	// ErrCallbackConflict is returned when a different Feature is already
	// registered for a recipient.
	ErrCallbackConflict = errors.New("session: different callback already registered for recipient")

	// ErrNotRegistered is returned when clearing, or disabling, a recipient
	// with no registered Feature.
	ErrNotRegistered = errors.New("session: no callback registered for recipient")

	// ErrCallbackMismatch is returned when clearing a recipient with a
	// Feature value that does not equal the one currently registered.
	ErrCallbackMismatch = errors.New("session: callback does not match registered callback")

	// ErrNotSupported names the case of a recipient with no registered
	// Feature to answer a query. HandleQuery reports that case to the peer
	// as a failure Response and returns no error, so no function in this
	// package returns ErrNotSupported.
	ErrNotSupported = errors.New("session: recipient not supported")
)

// Multiplexer routes CLIENT_MESSAGE, QUERY, QUERY_RESPONSE and DISABLE
// operations for a single peer's stream to per-recipient Features (spec'd
// operation routing in §4.3). It holds no reference to the transport
// itself beyond the narrow Transport interface used to send queries and
// responses back out.
type Multiplexer struct {
	mu sync.Mutex

	features  map[string]Feature
	unclaimed map[string][][]byte

	nextQueryID uint32
	pending     map[uint32]ResponseHandler

	transport Transport
	logger    *slog.Logger
}

// New builds a Multiplexer over the given outbound Transport. logger may
// be nil, in which case a discarding logger is used.
func New(transport Transport, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Multiplexer{
		features:    make(map[string]Feature),
		unclaimed:   make(map[string][][]byte),
		pending:     make(map[uint32]ResponseHandler),
		nextQueryID: InvalidQueryID + 1,
		transport:   transport,
		logger:      logger.With(slog.String("component", "session.multiplexer")),
	}
}

// RegisterFeature registers f for recipient. Registering the same Feature
// value again is a no-op; registering a different one while one is already
// registered is an error. Any messages queued for recipient before
// registration are drained into f.OnMessage in arrival order.
func (m *Multiplexer) RegisterFeature(recipient string, f Feature) error {
	m.mu.Lock()
	existing, ok := m.features[recipient]
	if ok && existing != f {
		m.mu.Unlock()
		return fmt.Errorf("register %q: %w", recipient, ErrCallbackConflict)
	}
	m.features[recipient] = f
	queued := m.unclaimed[recipient]
	delete(m.unclaimed, recipient)
	m.mu.Unlock()

	for _, payload := range queued {
		f.OnMessage(payload)
	}
	return nil
}

// ClearFeature removes f's registration for recipient. f must equal the
// currently registered Feature.
func (m *Multiplexer) ClearFeature(recipient string, f Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.features[recipient]
	if !ok {
		return fmt.Errorf("clear %q: %w", recipient, ErrNotRegistered)
	}
	if existing != f {
		return fmt.Errorf("clear %q: %w", recipient, ErrCallbackMismatch)
	}
	delete(m.features, recipient)
	return nil
}

// Dispatch routes an incoming CLIENT_MESSAGE to recipient's Feature. If no
// Feature is registered yet, payload is queued in recipient's bounded
// unclaimed FIFO for delivery once one registers.
func (m *Multiplexer) Dispatch(recipient string, payload []byte) {
	m.mu.Lock()
	f, ok := m.features[recipient]
	if !ok {
		m.enqueueUnclaimedLocked(recipient, payload)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	f.OnMessage(payload)
}

func (m *Multiplexer) enqueueUnclaimedLocked(recipient string, payload []byte) {
	q := m.unclaimed[recipient]
	if len(q) >= maxUnclaimedMessages {
		m.logger.Warn("unclaimed message FIFO full, dropping oldest",
			slog.String("recipient", recipient),
		)
		q = q[1:]
	}
	m.unclaimed[recipient] = append(q, payload)
}

// HandleQuery dispatches an incoming QUERY to recipient's Feature. If no
// Feature is registered, a failure Response carrying query.ID is sent back
// immediately. Otherwise the Feature's respond callback is wrapped so it
// can be invoked at most once; later invocations are silently dropped.
func (m *Multiplexer) HandleQuery(query Query) {
	m.mu.Lock()
	f, ok := m.features[query.Recipient]
	m.mu.Unlock()

	if !ok {
		if err := m.transport.SendQueryResponse(Response{ID: query.ID, Successful: false}); err != nil {
			m.logger.Warn("send query-not-supported response failed",
				slog.String("recipient", query.Recipient),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	var once sync.Once
	respond := func(r Response) {
		once.Do(func() {
			r.ID = query.ID
			if err := m.transport.SendQueryResponse(r); err != nil {
				m.logger.Warn("send query response failed",
					slog.String("recipient", query.Recipient),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	f.OnQuery(query, respond)
}

// HandleQueryResponse routes an incoming QUERY_RESPONSE to the handler
// registered for its query ID. A response with no matching pending query
// (stale, or from a different operation) is dropped silently.
func (m *Multiplexer) HandleQueryResponse(resp Response) {
	m.mu.Lock()
	handler, ok := m.pending[resp.ID]
	if ok {
		delete(m.pending, resp.ID)
	}
	m.mu.Unlock()

	if ok {
		handler(resp)
	}
}

// Disable invokes recipient's Feature.OnDisable, if one is registered.
func (m *Multiplexer) Disable(recipient string) error {
	m.mu.Lock()
	f, ok := m.features[recipient]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("disable %q: %w", recipient, ErrNotRegistered)
	}
	f.OnDisable()
	return nil
}

// SendQuery sends a QUERY to recipient and arranges for handler to receive
// its Response. If the peer is not currently connected, handler is invoked
// synchronously with a well-formed failure and no query is sent.
func (m *Multiplexer) SendQuery(recipient string, payload, parameters []byte, handler ResponseHandler) {
	if handler == nil {
		handler = func(Response) {}
	}
	if !m.transport.Connected() {
		handler(failureResponse())
		return
	}

	m.mu.Lock()
	id := m.nextQueryID
	m.nextQueryID++
	m.pending[id] = handler
	m.mu.Unlock()

	q := Query{ID: id, Recipient: recipient, Payload: payload, Parameters: parameters}
	if err := m.transport.SendQuery(q); err != nil {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		m.logger.Warn("send query failed",
			slog.String("recipient", recipient),
			slog.String("error", err.Error()),
		)
		handler(failureResponse())
	}
}
