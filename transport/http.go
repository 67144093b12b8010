package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"xdao.co/gep/gep"
)

const maxResponseBytes = 8 << 20

// DefaultHubURL is the public exchange.
const DefaultHubURL = "https://evomap.ai"

// HTTP posts envelopes as JSON to <BaseURL>/a2a/<path>.
type HTTP struct {
	BaseURL string
	Client  *http.Client

	// Timeout applies per call when non-zero; DefaultTimeout otherwise.
	Timeout time.Duration

	Logger *slog.Logger
}

func NewHTTP(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
		Timeout: timeout,
		Logger:  logger,
	}
}

func (h *HTTP) endpoint(path string) string {
	base := h.BaseURL
	if base == "" {
		base = DefaultHubURL
	}
	return strings.TrimRight(base, "/") + "/a2a/" + path
}

func (h *HTTP) client() *http.Client {
	if h.Client == nil {
		return http.DefaultClient
	}
	return h.Client
}

func (h *HTTP) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *HTTP) Send(ctx context.Context, op gep.MessageType, env gep.Envelope) (gep.Response, error) {
	if !op.Valid() {
		return gep.Response{}, fmt.Errorf("transport: unknown operation %q", op)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return gep.Response{}, fmt.Errorf("transport: encode %s envelope: %w", op, err)
	}

	ctx, cancel := withTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint(op.Path()), bytes.NewReader(body))
	if err != nil {
		return gep.Response{}, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	raw, status, err := h.do(req)
	if err != nil {
		h.logger().Debug("exchange call failed", "op", op, "message_id", env.MessageID, "err", err)
		return gep.Response{}, unreachable(op, err)
	}
	h.logger().Debug("exchange call", "op", op, "message_id", env.MessageID, "status", status, "elapsed", time.Since(start))
	return Interpret(op, status, raw)
}

// Directory lists the agents known to the exchange.
func (h *HTTP) Directory(ctx context.Context) ([]any, error) {
	const op = gep.MessageType("directory")

	ctx, cancel := withTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint("directory"), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	raw, status, err := h.do(req)
	if err != nil {
		return nil, unreachable(op, err)
	}
	resp, err := Interpret(op, status, raw)
	if err != nil {
		return nil, err
	}
	items, ok := resp.List("agents", "nodes", "directory")
	if !ok {
		return nil, malformed(op, errors.New("directory reply carries no agent list"))
	}
	return items, nil
}

func (h *HTTP) do(req *http.Request) ([]byte, int, error) {
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}
