package session_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/carlinkd/cartrustd/internal/session"
)

// fakeTransport is a minimal session.Transport recording what it was asked
// to send.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	sentQuery  []session.Query
	sentResp   []session.Response
	sendErr    error
	respondErr error
}

func (f *fakeTransport) Connected() bool { return f.connected }

func (f *fakeTransport) SendQuery(q session.Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentQuery = append(f.sentQuery, q)
	return nil
}

func (f *fakeTransport) SendQueryResponse(r session.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.respondErr != nil {
		return f.respondErr
	}
	f.sentResp = append(f.sentResp, r)
	return nil
}

// fakeFeature records every callback invocation.
type fakeFeature struct {
	mu       sync.Mutex
	messages [][]byte
	queries  []session.Query
	disabled int
	onQuery  func(session.Query, func(session.Response))
}

func (f *fakeFeature) OnMessage(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, payload)
}

func (f *fakeFeature) OnQuery(q session.Query, respond func(session.Response)) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	handler := f.onQuery
	f.mu.Unlock()
	if handler != nil {
		handler(q, respond)
		return
	}
	respond(session.Response{Successful: true})
}

func (f *fakeFeature) OnDisable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled++
}

func TestDispatchQueuesUnclaimedThenDrainsOnRegister(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	mux.Dispatch("calendar", []byte("one"))
	mux.Dispatch("calendar", []byte("two"))

	f := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("RegisterFeature: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) != 2 || string(f.messages[0]) != "one" || string(f.messages[1]) != "two" {
		t.Fatalf("drained messages = %v, want [one two] in order", f.messages)
	}
}

func TestDispatchAfterRegistrationGoesStraightToFeature(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	f := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("RegisterFeature: %v", err)
	}
	mux.Dispatch("calendar", []byte("hello"))

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) != 1 || string(f.messages[0]) != "hello" {
		t.Fatalf("messages = %v, want [hello]", f.messages)
	}
}

func TestRegisterFeatureIsIdempotentForSameCallback(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	f := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("first RegisterFeature: %v", err)
	}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("second RegisterFeature with same callback should be a no-op, got %v", err)
	}
}

func TestRegisterFeatureRejectsConflictingCallback(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	a := &fakeFeature{}
	b := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", a); err != nil {
		t.Fatalf("RegisterFeature(a): %v", err)
	}
	if err := mux.RegisterFeature("calendar", b); !errors.Is(err, session.ErrCallbackConflict) {
		t.Fatalf("expected ErrCallbackConflict, got %v", err)
	}
}

func TestClearFeatureRequiresEqualityMatch(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	a := &fakeFeature{}
	b := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", a); err != nil {
		t.Fatalf("RegisterFeature: %v", err)
	}
	if err := mux.ClearFeature("calendar", b); !errors.Is(err, session.ErrCallbackMismatch) {
		t.Fatalf("expected ErrCallbackMismatch, got %v", err)
	}
	if err := mux.ClearFeature("calendar", a); err != nil {
		t.Fatalf("ClearFeature with matching callback: %v", err)
	}
}

func TestUnclaimedFIFOIsBoundedAndDropsOldest(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	for i := 0; i < 64; i++ {
		mux.Dispatch("calendar", []byte{byte(i)})
	}

	f := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("RegisterFeature: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) != 32 {
		t.Fatalf("drained %d messages, want 32 (bounded FIFO)", len(f.messages))
	}
	if f.messages[0][0] != 32 {
		t.Fatalf("oldest surviving message = %d, want 32 (first 32 dropped)", f.messages[0][0])
	}
}

func TestHandleQueryDispatchesToFeatureAndRespondsOnce(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{connected: true}
	mux := session.New(transport, nil)
	f := &fakeFeature{
		onQuery: func(q session.Query, respond func(session.Response)) {
			respond(session.Response{Successful: true, Payload: []byte("ok")})
			respond(session.Response{Successful: false}) // must be dropped
		},
	}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("RegisterFeature: %v", err)
	}

	mux.HandleQuery(session.Query{ID: 7, Recipient: "calendar"})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.sentResp) != 1 {
		t.Fatalf("sent %d responses, want exactly 1 (second respond() call must be dropped)", len(transport.sentResp))
	}
	if transport.sentResp[0].ID != 7 || !transport.sentResp[0].Successful {
		t.Fatalf("response = %+v, want {ID:7 Successful:true ...}", transport.sentResp[0])
	}
}

func TestHandleQueryWithNoFeatureSendsFailure(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{connected: true}
	mux := session.New(transport, nil)

	mux.HandleQuery(session.Query{ID: 3, Recipient: "unknown"})

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.sentResp) != 1 || transport.sentResp[0].Successful {
		t.Fatalf("response = %v, want one failure response", transport.sentResp)
	}
}

func TestHandleQueryResponseRoutesToPendingHandler(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{connected: true}
	mux := session.New(transport, nil)

	var got session.Response
	done := make(chan struct{})
	mux.SendQuery("calendar", []byte("req"), nil, func(r session.Response) {
		got = r
		close(done)
	})

	transport.mu.Lock()
	if len(transport.sentQuery) != 1 {
		t.Fatalf("expected one sent query, got %d", len(transport.sentQuery))
	}
	id := transport.sentQuery[0].ID
	transport.mu.Unlock()

	mux.HandleQueryResponse(session.Response{ID: id, Successful: true, Payload: []byte("ack")})
	<-done
	if !got.Successful || string(got.Payload) != "ack" {
		t.Fatalf("handler received %+v, want successful ack", got)
	}
}

func TestHandleQueryResponseDropsStaleID(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{connected: true}
	mux := session.New(transport, nil)

	// No query was ever sent with ID 99; this must not panic or misfire.
	mux.HandleQueryResponse(session.Response{ID: 99, Successful: true})
}

func TestSendQueryWhenNotConnectedFailsSynchronously(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{connected: false}
	mux := session.New(transport, nil)

	var got session.Response
	invoked := false
	mux.SendQuery("calendar", []byte("req"), nil, func(r session.Response) {
		got = r
		invoked = true
	})

	if !invoked {
		t.Fatalf("handler was not invoked synchronously")
	}
	if got.ID != session.InvalidQueryID || got.Successful || len(got.Payload) != 0 {
		t.Fatalf("response = %+v, want well-formed failure", got)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.sentQuery) != 0 {
		t.Fatalf("expected no query sent while disconnected, got %d", len(transport.sentQuery))
	}
}

func TestDisableInvokesRegisteredFeature(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	f := &fakeFeature{}
	if err := mux.RegisterFeature("calendar", f); err != nil {
		t.Fatalf("RegisterFeature: %v", err)
	}
	if err := mux.Disable("calendar"); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled != 1 {
		t.Fatalf("disabled = %d, want 1", f.disabled)
	}
}

func TestDisableWithNoFeatureReturnsErrNotRegistered(t *testing.T) {
	t.Parallel()

	mux := session.New(&fakeTransport{}, nil)
	if err := mux.Disable("unknown"); !errors.Is(err, session.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}
