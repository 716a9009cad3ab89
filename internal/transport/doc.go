// Package transport abstracts the physical link a pairing session runs
// over: GATT (BLE) bring-up -- connect, MTU negotiation, service
// discovery, notify enable -- and, optionally, a bonded RFCOMM socket
// used as an OOB channel (spec.md §4.1, §4.2). The platform Bluetooth
// adapter itself is an out-of-scope external collaborator (spec.md §1);
// this package only defines the Transport contract the pairing FSM
// drives, plus a BlueZ/D-Bus-backed implementation for Linux hosts and
// an in-memory implementation for tests.
package transport
