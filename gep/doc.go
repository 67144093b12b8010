// Package gep defines the gep-a2a wire protocol spoken between a node and
// the asset exchange: message types, envelopes, identifiers, and the
// generic response shape.
package gep
