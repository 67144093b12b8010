// Package bounty drives the client side of the exchange's bounty tasks:
// fetch a snapshot of open tasks, claim one, complete it with a published
// asset.
//
//	Available --Claim--> Claimed --Complete--> Completed
//	                        \--Release--> Released
//
// A claim the exchange refuses because another node holds the task drops
// the task from the local view. The exchange owns task state; the view
// here is only what this node has learned and done.
package bounty

import (
	"errors"
	"fmt"

	"xdao.co/gep/transport"
)

type State int

const (
	Available State = iota
	Claimed
	Completed
	Released
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Claimed:
		return "claimed"
	case Completed:
		return "completed"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrUnknownTask      = errors.New("bounty: task not in local view")
	ErrSequence         = errors.New("bounty: operation out of sequence")
	ErrUnpublishedAsset = errors.New("bounty: asset has not been published")

	// ErrTaskUnavailable is transport.ErrTaskUnavailable, re-exported so
	// callers of this package need not import transport.
	ErrTaskUnavailable = transport.ErrTaskUnavailable
)

// Task is the local view of one bounty task.
type Task struct {
	ID     string
	Title  string
	Reward int64
	State  State

	// AssetID is set once the task is completed.
	AssetID string

	// Raw is the task object as the exchange sent it.
	Raw map[string]any
}
