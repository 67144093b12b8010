package transport

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"xdao.co/gep/gep"
)

// BreakerSettings configures Breaker.
type BreakerSettings struct {
	// Failures is the number of consecutive Unreachable results that open
	// the circuit. Zero means 5.
	Failures uint32
	// Cooldown is how long the circuit stays open before a probe call.
	// Zero means 30s.
	Cooldown time.Duration
}

// Breaker fails fast while the exchange is down. Only Unreachable results
// count against the circuit; rejections and malformed replies pass
// through untouched. An open circuit is reported as Unreachable.
type Breaker struct {
	next Transport
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Transport, s BreakerSettings, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	failures := s.Failures
	if failures == 0 {
		failures = 5
	}
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("exchange circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Send(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error) {
	var (
		resp gep.Response
		pass error
	)
	_, err := b.cb.Execute(func() (interface{}, error) {
		r, err := b.next.Send(ctx, op, env)
		if err != nil && IsKind(err, KindUnreachable) {
			return nil, err
		}
		resp, pass = r, err
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return gep.Response{}, &Error{Kind: KindUnreachable, Op: op, Message: "circuit open", Cause: err}
		}
		return gep.Response{}, err
	}
	return resp, pass
}

// State reports the circuit state for diagnostics.
func (b *Breaker) State() string { return b.cb.State().String() }
