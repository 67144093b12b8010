package node

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/gep/gep"
	"xdao.co/gep/transport"
)

func TestRunHonorsServerInterval(t *testing.T) {
	var beats atomic.Int32
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Hello {
			return reply(t, `{"sender_id":"n","heartbeat_interval_ms":5}`), nil
		}
		beats.Add(1)
		return reply(t, `{}`), nil
	}
	s := newSession(f, Options{})
	_, err := s.Register(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return beats.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunWithoutReconnectStopsWhenDisconnected(t *testing.T) {
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Hello {
			return reply(t, `{"sender_id":"n","heartbeat_interval_ms":1}`), nil
		}
		return gep.Response{}, &transport.Error{Kind: transport.KindUnreachable, Op: op, Message: "down"}
	}
	s := newSession(f, Options{FailureThreshold: 2})
	_, err := s.Register(context.Background())
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, Disconnected, s.State())
}

func TestRunReconnectsAfterDisconnect(t *testing.T) {
	var hellos, failing atomic.Int32
	failing.Store(2)
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Hello {
			hellos.Add(1)
			return reply(t, `{"sender_id":"n","heartbeat_interval_ms":1}`), nil
		}
		if failing.Add(-1) >= 0 {
			return gep.Response{}, &transport.Error{Kind: transport.KindUnreachable, Op: op, Message: "down"}
		}
		return reply(t, `{}`), nil
	}
	s := newSession(f, Options{FailureThreshold: 2, Reconnect: true, ReconnectMin: time.Millisecond, ReconnectMax: 2 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return hellos.Load() >= 2 && s.State() == Active }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRunRequiresActiveWithoutReconnect(t *testing.T) {
	s := newSession(&fakeExchange{}, Options{})
	require.ErrorIs(t, s.Run(context.Background()), ErrNotActive)
}
