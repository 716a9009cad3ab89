// Package stack wires the per-package collaborators -- transport,
// pairing, cryptoutil, wire, session and calendarsync -- into the running
// daemon. It is the dependency-injected owner named in spec.md §9's
// design notes ("global singletons ... become dependency-injected
// services held by a top-level Stack owner; lifecycles start/stop
// explicitly"): nothing here duplicates algorithmic logic from those
// packages, it only connects them for one peer (PeerSession) and for the
// whole daemon (Daemon).
package stack
