package node

import (
	"context"
	"errors"
	"time"

	"xdao.co/gep/transport"
)

// ErrDisconnected is returned by Run when the session drops and
// reconnection is disabled.
var ErrDisconnected = errors.New("node: session disconnected")

// Run drives heartbeats until ctx ends. The wait before each beat is the
// interval most recently directed by the exchange. Beats go through the
// same gate as every other request, so a beat that falls due while a
// publish or claim is in flight waits for it to finish.
//
// With Options.Reconnect, a disconnected (or never registered) session is
// re-registered with exponential backoff; a registration rejection still
// ends Run. Run returns nil when ctx ends.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.opts.ReconnectMin
	wait := s.HeartbeatInterval()
	if s.State() != Active {
		if !s.opts.Reconnect {
			return ErrNotActive
		}
		wait = 0
	}

	for {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		if s.State() == Active {
			if err := s.Heartbeat(ctx); err != nil && ctx.Err() != nil {
				return nil
			}
			if s.State() == Active {
				wait = s.HeartbeatInterval()
				continue
			}
		}

		if !s.opts.Reconnect {
			return ErrDisconnected
		}
		_, err := s.Register(ctx)
		switch {
		case err == nil:
			backoff = s.opts.ReconnectMin
			wait = s.HeartbeatInterval()
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, transport.ErrRegistrationRejected):
			return err
		default:
			s.logger.Warn("re-registration failed", "retry_in", backoff, "err", err)
			wait = backoff
			backoff *= 2
			if backoff > s.opts.ReconnectMax {
				backoff = s.opts.ReconnectMax
			}
		}
	}
}
