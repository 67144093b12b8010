package node

import (
	"log/slog"
	"runtime"
	"time"

	"xdao.co/gep/gep"
)

// Capabilities are the flags declared in hello.
type Capabilities struct {
	GenePublishing    bool
	CapsulePublishing bool
	BountyClaiming    bool
}

// AllCapabilities declares every capability this client implements.
func AllCapabilities() Capabilities {
	return Capabilities{GenePublishing: true, CapsulePublishing: true, BountyClaiming: true}
}

func (c Capabilities) payload() map[string]any {
	return map[string]any{
		"gene_publishing":    c.GenePublishing,
		"capsule_publishing": c.CapsulePublishing,
		"bounty_claiming":    c.BountyClaiming,
	}
}

// Options configures a Session. The zero value is usable.
type Options struct {
	// NodeID is a previously assigned id. Empty means the exchange assigns one.
	NodeID   string
	Referrer string

	Capabilities Capabilities

	// FailureThreshold is the number of consecutive heartbeat failures that
	// disconnect the session.
	FailureThreshold int

	InitialCredits    int64
	HeartbeatInterval time.Duration

	// Reconnect makes Run re-hello after a disconnect, backing off
	// between ReconnectMin and ReconnectMax.
	Reconnect    bool
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	Platform string
	Arch     string

	Builder *gep.Builder
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.InitialCredits == 0 {
		o.InitialCredits = DefaultInitialCredits
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = time.Second
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 5 * time.Minute
		if o.ReconnectMax < o.ReconnectMin {
			o.ReconnectMax = o.ReconnectMin
		}
	}
	if o.Platform == "" {
		o.Platform = runtime.GOOS
	}
	if o.Arch == "" {
		o.Arch = runtime.GOARCH
	}
	if o.Builder == nil {
		o.Builder = gep.NewBuilder()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
