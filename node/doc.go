// Package node owns this participant's registration with the exchange.
//
// A Session serializes every request for its node id: at most one request
// is outstanding at a time, heartbeats included. Publishing and bounty
// components send through Session.Do so they share the same gate and the
// same view of credits, reputation, and heartbeat cadence.
//
// Session lifecycle:
//
//	Unregistered -> Registering -> Active -> Disconnected -> Registering ...
//
// Counters are server-authoritative: every reply that carries them
// overwrites the local values.
package node
