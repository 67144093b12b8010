package gep

import (
	"errors"
	"fmt"
	"time"
)

const (
	Protocol        = "gep-a2a"
	ProtocolVersion = "1.0.0"
)

// MessageType names a protocol operation.
type MessageType string

const (
	Hello        MessageType = "hello"
	Heartbeat    MessageType = "heartbeat"
	Fetch        MessageType = "fetch"
	Publish      MessageType = "publish"
	TaskClaim    MessageType = "task_claim"
	TaskComplete MessageType = "task_complete"
)

var paths = map[MessageType]string{
	Hello:        "hello",
	Heartbeat:    "heartbeat",
	Fetch:        "fetch",
	Publish:      "publish",
	TaskClaim:    "task/claim",
	TaskComplete: "task/complete",
}

// Path returns the exchange endpoint path for t, relative to the a2a root.
func (t MessageType) Path() string { return paths[t] }

// Valid reports whether t is an operation the exchange serves.
func (t MessageType) Valid() bool {
	_, ok := paths[t]
	return ok
}

var ErrNoSender = errors.New("gep: sender_id required for every message but hello")

// Envelope is the outer object of every request.
type Envelope struct {
	Protocol        string         `json:"protocol"`
	ProtocolVersion string         `json:"protocol_version"`
	MessageType     MessageType    `json:"message_type"`
	MessageID       string         `json:"message_id"`
	SenderID        string         `json:"sender_id,omitempty"`
	Timestamp       string         `json:"timestamp"`
	Payload         map[string]any `json:"payload"`
}

// Builder stamps envelopes with message ids and timestamps.
type Builder struct {
	IDs *IDGenerator
	Now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{IDs: NewIDGenerator(), Now: time.Now}
}

// Build returns an envelope for t. senderID may be empty only for Hello.
// A nil payload is sent as an empty object.
func (b *Builder) Build(t MessageType, senderID string, payload map[string]any) (Envelope, error) {
	if !t.Valid() {
		return Envelope{}, fmt.Errorf("gep: unknown message type %q", t)
	}
	if senderID == "" && t != Hello {
		return Envelope{}, ErrNoSender
	}
	if payload == nil {
		payload = map[string]any{}
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return Envelope{
		Protocol:        Protocol,
		ProtocolVersion: ProtocolVersion,
		MessageType:     t,
		MessageID:       b.IDs.Next(),
		SenderID:        senderID,
		Timestamp:       Timestamp(now()),
		Payload:         payload,
	}, nil
}

// Timestamp formats t as the exchange expects: UTC, ISO-8601, microseconds
// only when non-zero, trailing Z.
func Timestamp(t time.Time) string {
	t = t.UTC()
	s := t.Format("2006-01-02T15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s + "Z"
}
