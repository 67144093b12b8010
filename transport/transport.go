// Package transport delivers gep envelopes to the exchange.
//
// Transports never retry. Every call is bounded by a timeout, and a timeout
// is reported as KindUnreachable. Retry policy belongs to the caller.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"xdao.co/gep/gep"
)

// DefaultTimeout bounds a single exchange call when none is configured.
const DefaultTimeout = 30 * time.Second

// Transport sends one envelope and returns the decoded reply.
type Transport interface {
	Send(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error)

func (f Func) Send(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error) {
	return f(ctx, op, env)
}

var (
	claimTakenMarkers  = []string{"already_claimed", "already claimed", "claimed_by_other", "task_unavailable", "unavailable", "not available", "not_available", "task_taken"}
	unknownNodeMarkers = []string{"unknown_node", "unknown node", "node_not_found", "node not found", "not registered", "not_registered"}
)

// Interpret turns a raw reply into a Response or a classified error.
// status is the HTTP status code, or 0 for transports without one.
func Interpret(op gep.MessageType, status int, raw []byte) (gep.Response, error) {
	resp, derr := gep.DecodeResponse(raw)
	if status >= 500 {
		return gep.Response{}, unreachable(op, fmt.Errorf("exchange returned HTTP %d", status))
	}
	if status >= 400 {
		msg := rejectionMessage(resp)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", status)
		}
		return gep.Response{}, rejected(op, status, msg, resp)
	}
	if derr != nil {
		return gep.Response{}, malformed(op, derr)
	}
	if msg, ok := rejection(resp); ok {
		return gep.Response{}, rejected(op, status, msg, resp)
	}
	return resp, nil
}

// rejection reports whether a well-formed reply carries an explicit error
// indicator: an "error" field, status "error"/"rejected"/"failed", or
// ok/success false.
func rejection(resp gep.Response) (string, bool) {
	if resp.Body == nil {
		return "", false
	}
	if v, ok := resp.Body["error"]; ok && v != nil && v != false && v != "" {
		return rejectionMessage(resp), true
	}
	if s, ok := resp.Body["status"].(string); ok {
		switch strings.ToLower(s) {
		case "error", "rejected", "failed", "denied":
			return rejectionMessage(resp), true
		}
	}
	for _, k := range []string{"ok", "success"} {
		if b, ok := resp.Body[k].(bool); ok && !b {
			return rejectionMessage(resp), true
		}
	}
	return "", false
}

func rejectionMessage(resp gep.Response) string {
	if resp.Body == nil {
		return ""
	}
	var parts []string
	switch e := resp.Body["error"].(type) {
	case string:
		parts = append(parts, e)
	case map[string]any:
		for _, k := range []string{"code", "message"} {
			if s, ok := e[k].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
	}
	for _, k := range []string{"code", "reason", "message"} {
		if s, ok := resp.Body[k].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "rejected"
	}
	return strings.Join(parts, ": ")
}

func rejected(op gep.MessageType, status int, msg string, resp gep.Response) error {
	e := &Error{Kind: KindRemoteRejected, Op: op, Message: msg, Response: resp}
	lower := strings.ToLower(msg)
	switch {
	case op == gep.Hello:
		e.Cause = ErrRegistrationRejected
	case op == gep.TaskClaim && (status == http.StatusConflict || containsAny(lower, claimTakenMarkers)):
		e.Cause = ErrTaskUnavailable
	case containsAny(lower, unknownNodeMarkers) || status == http.StatusUnauthorized:
		e.Cause = ErrUnknownNode
	}
	return e
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
