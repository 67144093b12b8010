package node

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/gep/gep"
	"xdao.co/gep/transport"
)

type fakeExchange struct {
	mu     sync.Mutex
	sent   []gep.Envelope
	handle func(op gep.MessageType, env gep.Envelope) (gep.Response, error)
	delay  time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeExchange) Send(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		m := f.maxInflight.Load()
		if n <= m || f.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, env)
	h := f.handle
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if h == nil {
		return gep.Response{Body: map[string]any{}}, nil
	}
	return h(op, env)
}

func (f *fakeExchange) envelopes() []gep.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gep.Envelope(nil), f.sent...)
}

func reply(t *testing.T, s string) gep.Response {
	t.Helper()
	r, err := gep.DecodeResponse([]byte(s))
	require.NoError(t, err)
	return r
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(f *fakeExchange, opts Options) *Session {
	opts.Logger = quietLogger()
	return New(f, opts)
}

func helloHandler(t *testing.T, body string) func(gep.MessageType, gep.Envelope) (gep.Response, error) {
	return func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Hello {
			return reply(t, body), nil
		}
		return reply(t, `{"status":"ok"}`), nil
	}
}

func TestHeartbeatBeforeRegisterSendsNothing(t *testing.T) {
	f := &fakeExchange{}
	s := newSession(f, Options{})

	err := s.Heartbeat(context.Background())
	require.ErrorIs(t, err, ErrNotActive)

	_, err = s.Do(context.Background(), gep.Fetch, map[string]any{"limit": 1})
	require.ErrorIs(t, err, ErrNotRegistered)
	assert.Empty(t, f.envelopes())
}

func TestRegisterThenHeartbeatCarriesAssignedID(t *testing.T) {
	f := &fakeExchange{}
	f.handle = helloHandler(t, `{"sender_id":"node_abc","credits":500,"heartbeat_interval_ms":60000}`)
	s := newSession(f, Options{Capabilities: Capabilities{GenePublishing: true}, Referrer: "node_ref"})

	_, err := s.Register(context.Background())
	require.NoError(t, err)

	st := s.Status()
	assert.Equal(t, "node_abc", st.NodeID)
	assert.Equal(t, Active, st.State)
	assert.EqualValues(t, 500, st.Credits)
	assert.Equal(t, time.Minute, st.HeartbeatInterval)

	require.NoError(t, s.Heartbeat(context.Background()))

	sent := f.envelopes()
	require.Len(t, sent, 2)
	hello, beat := sent[0], sent[1]
	assert.Equal(t, gep.Hello, hello.MessageType)
	assert.Empty(t, hello.SenderID)
	caps := hello.Payload["capabilities"].(map[string]any)
	assert.Equal(t, true, caps["gene_publishing"])
	assert.Equal(t, "node_ref", hello.Payload["referrer"])
	assert.Contains(t, hello.Payload, "env_fingerprint")

	assert.Equal(t, gep.Heartbeat, beat.MessageType)
	assert.Equal(t, "node_abc", beat.SenderID)
	assert.Empty(t, beat.Payload)
	assert.NotEqual(t, hello.MessageID, beat.MessageID)
}

func TestRegisterWithoutNodeIDIsRejected(t *testing.T) {
	f := &fakeExchange{}
	f.handle = helloHandler(t, `{"status":"ok","credits":100}`)
	s := newSession(f, Options{})

	_, err := s.Register(context.Background())
	require.ErrorIs(t, err, transport.ErrRegistrationRejected)
	assert.True(t, transport.IsKind(err, transport.KindRemoteRejected))
	assert.Equal(t, Unregistered, s.State())
	assert.Len(t, f.envelopes(), 1, "rejection must not be retried")
}

func TestRegisterFallsBackPastEmptySenderID(t *testing.T) {
	f := &fakeExchange{}
	f.handle = helloHandler(t, `{"sender_id":"","node_id":"node_x"}`)
	s := newSession(f, Options{})

	_, err := s.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "node_x", s.NodeID())
	assert.Equal(t, Active, s.State())
}

func TestRegisterKeepsCallerSuppliedID(t *testing.T) {
	f := &fakeExchange{}
	f.handle = helloHandler(t, `{"status":"ok"}`)
	s := newSession(f, Options{NodeID: "node_mine"})

	_, err := s.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "node_mine", s.NodeID())
	assert.Equal(t, "node_mine", f.envelopes()[0].SenderID)
	assert.EqualValues(t, DefaultInitialCredits, s.Status().Credits)
}

func TestCreditsFromEitherShape(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int64
	}{
		{"top level", `{"sender_id":"n","credits":480}`, 480},
		{"nested", `{"sender_id":"n","payload":{"credit_balance":470}}`, 470},
		{"both disagree prefers top", `{"sender_id":"n","credits":460,"payload":{"credit_balance":450}}`, 460},
		{"missing keeps local", `{"sender_id":"n"}`, DefaultInitialCredits},
		{"zero is authoritative", `{"sender_id":"n","credits":0}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeExchange{}
			f.handle = helloHandler(t, tc.body)
			s := newSession(f, Options{})
			_, err := s.Register(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, s.Status().Credits)
		})
	}
}

func TestResponsesOverwriteCounters(t *testing.T) {
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		switch op {
		case gep.Hello:
			return reply(t, `{"sender_id":"n","credits":500}`), nil
		default:
			return reply(t, `{"credits":525,"reputation":7,"heartbeat_interval_ms":250}`), nil
		}
	}
	s := newSession(f, Options{})
	_, err := s.Register(context.Background())
	require.NoError(t, err)
	_, err = s.Do(context.Background(), gep.Fetch, map[string]any{"asset_type": "Capsule", "limit": 5})
	require.NoError(t, err)

	st := s.Status()
	assert.EqualValues(t, 525, st.Credits)
	assert.EqualValues(t, 7, st.Reputation)
	assert.Equal(t, 250*time.Millisecond, st.HeartbeatInterval)
}

func TestHeartbeatFailuresDisconnectAtThreshold(t *testing.T) {
	var down atomic.Bool
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Hello {
			return reply(t, `{"sender_id":"n"}`), nil
		}
		if down.Load() {
			return gep.Response{}, &transport.Error{Kind: transport.KindUnreachable, Op: op, Message: "timeout"}
		}
		return reply(t, `{}`), nil
	}
	s := newSession(f, Options{FailureThreshold: 3})
	_, err := s.Register(context.Background())
	require.NoError(t, err)

	down.Store(true)
	for i := 0; i < 2; i++ {
		require.Error(t, s.Heartbeat(context.Background()))
		assert.Equal(t, Active, s.State())
	}
	down.Store(false)
	require.NoError(t, s.Heartbeat(context.Background()))
	assert.Zero(t, s.Status().ConsecutiveFailures)

	down.Store(true)
	for i := 0; i < 3; i++ {
		require.Error(t, s.Heartbeat(context.Background()))
	}
	assert.Equal(t, Disconnected, s.State())
	require.ErrorIs(t, s.Heartbeat(context.Background()), ErrNotActive)
}

func TestUnknownNodeDisconnectsImmediately(t *testing.T) {
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Hello {
			return reply(t, `{"sender_id":"n"}`), nil
		}
		return gep.Response{}, &transport.Error{Kind: transport.KindRemoteRejected, Op: op, Message: "unknown_node", Cause: transport.ErrUnknownNode}
	}
	s := newSession(f, Options{})
	_, err := s.Register(context.Background())
	require.NoError(t, err)

	require.Error(t, s.Heartbeat(context.Background()))
	assert.Equal(t, Disconnected, s.State())
}

func TestDoIsSingleFlight(t *testing.T) {
	f := &fakeExchange{delay: 5 * time.Millisecond}
	f.handle = helloHandler(t, `{"sender_id":"n"}`)
	s := newSession(f, Options{})
	_, err := s.Register(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Do(context.Background(), gep.Fetch, nil)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Heartbeat(context.Background())
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, f.maxInflight.Load())
	assert.Len(t, f.envelopes(), 17)
}

func TestQueuedCallerGivesUpWithoutSending(t *testing.T) {
	block := make(chan struct{})
	f := &fakeExchange{}
	f.handle = func(op gep.MessageType, env gep.Envelope) (gep.Response, error) {
		if op == gep.Publish {
			<-block
		}
		return reply(t, `{"sender_id":"n"}`), nil
	}
	s := newSession(f, Options{})
	_, err := s.Register(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Do(context.Background(), gep.Publish, nil)
	}()
	require.Eventually(t, func() bool { return len(f.envelopes()) == 2 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = s.Heartbeat(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	close(block)
	<-done
	assert.Len(t, f.envelopes(), 2)
}
