package session

// Feature is the callback surface a recipient registers once per session.
// OnMessage handles an unsolicited CLIENT_MESSAGE. OnQuery handles an
// incoming QUERY; respond must be invoked exactly once, subsequent calls
// are dropped. OnDisable handles the peer-initiated DISABLE operation.
type Feature interface {
	OnMessage(payload []byte)
	OnQuery(query Query, respond func(Response))
	OnDisable()
}

// Transport is the outbound half of the query layer: sending a QUERY to
// the peer and a QUERY_RESPONSE back. Connected reports whether the
// underlying encrypted stream can currently carry a query.
type Transport interface {
	Connected() bool
	SendQuery(q Query) error
	SendQueryResponse(r Response) error
}
