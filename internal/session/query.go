package session

// InvalidQueryID is carried by a synthetic failure Response manufactured
// locally (peer not connected, send failed) rather than received over the
// wire from the peer.
const InvalidQueryID uint32 = 0

// Query is a request sent to, or received from, a single recipient
// feature on the peer. ID is per-session monotonic, allocated by the
// sending side.
type Query struct {
	ID         uint32
	Recipient  string
	Payload    []byte
	Parameters []byte
}

// Response answers a Query carrying the same ID.
type Response struct {
	ID         uint32
	Successful bool
	Payload    []byte
}

// failureResponse builds the well-formed synthetic failure returned when a
// query can't even be sent.
func failureResponse() Response {
	return Response{ID: InvalidQueryID, Successful: false, Payload: nil}
}

// ResponseHandler receives exactly one Response for the Query it was
// registered against.
type ResponseHandler func(Response)
