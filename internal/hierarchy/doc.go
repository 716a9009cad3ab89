// Package hierarchy implements a generic diff/patch engine over an
// ordered, keyed tree of arbitrary depth: given two snapshots of the same
// shape, it computes the minimal set of CREATE/UPDATE/DELETE/UNCHANGED
// update messages that transform the first into the second (spec.md
// §4.7). The engine has no knowledge of any specific domain (calendars,
// events, attendees); each hierarchy level supplies its own Ops value
// describing how to read and rebuild its message type, and wires the
// next level down through explicit closures rather than a fixed nested
// generic type, since Go does not support open-ended recursive type
// parameters.
package hierarchy
