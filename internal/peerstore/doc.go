// Package peerstore holds the associated-peer record store: the CRUD
// surface over devices that have completed pairing, with keys always
// wrapped at rest by an injected CryptoHelper so the store itself never
// observes plaintext key material (spec.md §4.4).
package peerstore
