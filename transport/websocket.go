package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"xdao.co/gep/gep"
)

// WebSocket carries envelopes over one persistent connection, strictly one
// request and one reply at a time. A broken connection is dropped and
// redialed on the next call.
type WebSocket struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer

	// Timeout applies per call when non-zero; DefaultTimeout otherwise.
	Timeout time.Duration

	Logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocket(url string, timeout time.Duration, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{URL: url, Timeout: timeout, Logger: logger, Dialer: websocket.DefaultDialer}
}

func (w *WebSocket) Send(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error) {
	if !op.Valid() {
		return gep.Response{}, fmt.Errorf("transport: unknown operation %q", op)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return gep.Response{}, fmt.Errorf("transport: encode %s envelope: %w", op, err)
	}

	ctx, cancel := withTimeout(ctx, w.Timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	w.mu.Lock()
	defer w.mu.Unlock()

	conn, err := w.connect(ctx)
	if err != nil {
		return gep.Response{}, unreachable(op, err)
	}

	// Unblock reads and writes if ctx ends before the deadline does.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		w.drop()
		return gep.Response{}, unreachable(op, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		w.drop()
		return gep.Response{}, unreachable(op, err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		w.drop()
		return gep.Response{}, unreachable(op, err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		w.drop()
		return gep.Response{}, unreachable(op, err)
	}
	w.logger().Debug("exchange call", "op", op, "message_id", env.MessageID, "transport", "websocket")
	return Interpret(op, 0, raw)
}

func (w *WebSocket) connect(ctx context.Context) (*websocket.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}
	d := w.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	conn, resp, err := d.DialContext(ctx, w.URL, w.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	w.conn = conn
	return conn, nil
}

func (w *WebSocket) drop() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}

// Close closes the underlying connection, if any.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = w.conn.Close()
	w.conn = nil
	return err
}

func (w *WebSocket) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}
