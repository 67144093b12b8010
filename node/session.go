package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"xdao.co/gep/gep"
	"xdao.co/gep/transport"
)

// Session is one node's registration with the exchange.
//
// A process constructs one Session and passes it explicitly to the
// components that talk to the exchange.
type Session struct {
	tr     transport.Transport
	opts   Options
	logger *slog.Logger

	// gate admits one outstanding request. A channel rather than a mutex
	// so waiters can give up when their context ends.
	gate chan struct{}

	mu         sync.Mutex
	nodeID     string
	state      State
	credits    int64
	reputation int64
	interval   time.Duration
	failures   int
	lastBeat   time.Time
}

// New constructs an unregistered session sending through tr.
func New(tr transport.Transport, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		tr:       tr,
		opts:     opts,
		logger:   opts.Logger,
		gate:     make(chan struct{}, 1),
		nodeID:   opts.NodeID,
		state:    Unregistered,
		credits:  opts.InitialCredits,
		interval: opts.HeartbeatInterval,
	}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.gate }

// Status returns a copy of the session counters.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		NodeID:              s.nodeID,
		State:               s.state,
		Credits:             s.credits,
		Reputation:          s.reputation,
		HeartbeatInterval:   s.interval,
		ConsecutiveFailures: s.failures,
		LastHeartbeat:       s.lastBeat,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NodeID returns the id the session sends as, empty before registration
// unless one was configured.
func (s *Session) NodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeID
}

// HeartbeatInterval is the cadence currently directed by the exchange.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if from != to {
		s.logger.Info("session state changed", "from", from.String(), "to", to.String())
	}
}

// Register sends hello and, on success, moves the session to Active.
//
// The exchange-assigned id replaces any local one. A reply without a
// usable id is ErrRegistrationRejected unless the caller supplied an id.
// Rejections are returned, never retried here.
func (s *Session) Register(ctx context.Context) (gep.Response, error) {
	if err := s.acquire(ctx); err != nil {
		return gep.Response{}, err
	}
	defer s.release()

	s.mu.Lock()
	prev := s.state
	localID := s.nodeID
	s.mu.Unlock()
	s.setState(Registering)

	payload := map[string]any{
		"capabilities": s.opts.Capabilities.payload(),
		"env_fingerprint": map[string]any{
			"platform": s.opts.Platform,
			"arch":     s.opts.Arch,
		},
	}
	if s.opts.Referrer != "" {
		payload["referrer"] = s.opts.Referrer
	}

	resp, err := s.exchange(ctx, gep.Hello, localID, payload)
	if err != nil {
		s.setState(prev)
		return gep.Response{}, err
	}

	assigned, ok := resp.String("sender_id", "node_id")
	if !ok {
		assigned = localID
	}
	if assigned == "" {
		s.setState(prev)
		return resp, &transport.Error{
			Kind:     transport.KindRemoteRejected,
			Op:       gep.Hello,
			Message:  "hello reply carries no node id",
			Cause:    transport.ErrRegistrationRejected,
			Response: resp,
		}
	}

	s.mu.Lock()
	s.nodeID = assigned
	s.failures = 0
	s.mu.Unlock()
	s.absorb(resp)
	s.setState(Active)

	st := s.Status()
	s.logger.Info("node registered", "node_id", st.NodeID, "credits", st.Credits, "heartbeat_interval", st.HeartbeatInterval)
	return resp, nil
}

// Heartbeat refreshes liveness. It is valid only while Active; otherwise it
// fails with ErrNotActive without sending anything. Consecutive failures
// reaching the configured threshold disconnect the session, as does a
// reply saying the exchange no longer knows this node.
func (s *Session) Heartbeat(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	state, id := s.state, s.nodeID
	s.mu.Unlock()
	if state != Active {
		return ErrNotActive
	}

	resp, err := s.exchange(ctx, gep.Heartbeat, id, nil)
	if err != nil {
		s.mu.Lock()
		s.failures++
		n := s.failures
		s.mu.Unlock()
		s.logger.Warn("heartbeat failed", "node_id", id, "consecutive_failures", n, "threshold", s.opts.FailureThreshold, "err", err)
		if n >= s.opts.FailureThreshold || errors.Is(err, transport.ErrUnknownNode) {
			s.setState(Disconnected)
		}
		return err
	}

	s.mu.Lock()
	s.failures = 0
	s.lastBeat = time.Now()
	s.mu.Unlock()
	s.absorb(resp)
	return nil
}

// Do sends one non-hello operation under the session's single-flight gate.
// Overlapping callers queue; a caller whose ctx ends while queued gets
// ctx.Err() and nothing is sent.
func (s *Session) Do(ctx context.Context, op gep.MessageType, payload map[string]any) (gep.Response, error) {
	if op == gep.Hello {
		return gep.Response{}, fmt.Errorf("node: use Register for hello")
	}
	if err := s.acquire(ctx); err != nil {
		return gep.Response{}, err
	}
	defer s.release()

	s.mu.Lock()
	state, id := s.state, s.nodeID
	s.mu.Unlock()
	if id == "" {
		return gep.Response{}, ErrNotRegistered
	}
	if state != Active {
		return gep.Response{}, ErrNotActive
	}

	resp, err := s.exchange(ctx, op, id, payload)
	if err != nil {
		if errors.Is(err, transport.ErrUnknownNode) {
			s.setState(Disconnected)
		}
		return gep.Response{}, err
	}
	s.absorb(resp)
	return resp, nil
}

// exchange sends with the gate held. Once a request starts it runs to
// completion or transport timeout even if ctx is cancelled.
func (s *Session) exchange(ctx context.Context, op gep.MessageType, senderID string, payload map[string]any) (gep.Response, error) {
	env, err := s.opts.Builder.Build(op, senderID, payload)
	if err != nil {
		return gep.Response{}, err
	}
	return s.tr.Send(context.WithoutCancel(ctx), op, env)
}
