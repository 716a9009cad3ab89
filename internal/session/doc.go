// Package session multiplexes a single peer's encrypted stream across the
// independent features built on top of it (calendar sync today, others
// later), keeping each feature decoupled from the stream that drives it:
// a feature only implements Feature and never holds a reference back to
// the Transport.
package session
