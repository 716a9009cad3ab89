// Package calendarsync implements the source (handheld) and replica
// (vehicle) controllers for calendar content sync: a Calendar/Event/
// Attendee specialization of internal/hierarchy's generic diff/patch
// engine, a debounced change observer, a per-peer time window with
// periodic refresh, and legacy-peer REPLACE fallback.
package calendarsync
