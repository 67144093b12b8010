package node

import (
	"errors"
	"time"
)

// State is the session lifecycle state.
type State int

const (
	Unregistered State = iota
	Registering
	Active
	Disconnected
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var (
	// ErrNotRegistered is returned before any node id is known.
	ErrNotRegistered = errors.New("node: not registered")
	// ErrNotActive is returned for non-hello operations outside Active.
	ErrNotActive = errors.New("node: session not active")
)

// Defaults for values the exchange may later override.
const (
	DefaultInitialCredits    = 500
	DefaultHeartbeatInterval = 15 * time.Minute
	DefaultFailureThreshold  = 3
)

// Status is a point-in-time copy of the session counters.
type Status struct {
	NodeID              string
	State               State
	Credits             int64
	Reputation          int64
	HeartbeatInterval   time.Duration
	ConsecutiveFailures int
	LastHeartbeat       time.Time
}
