// Package capability resolves the version and OOB-capability intersection
// between two peers during pairing (spec.md §4.5): each side sends its
// supported version range and OOB channel set, and the resolver computes
// the tuple both sides will operate under, or a typed failure if local
// and remote advertise no overlap.
package capability
