// Package oob implements the out-of-band verification channels that let
// a pairing attempt confirm the UKEY2 handshake without a visual
// confirmation step: a bonded RFCOMM socket, or a caller-supplied
// PRE_ASSOCIATION token delivered out of band (e.g. via QR code or deep
// link) (spec.md §4.6).
package oob
