// Package relay forwards acknowledged Socket Mode events to local
// consumers: server-sent events subscribers and Redis.
package relay

import (
	"context"
	"encoding/json"
	"time"
)

// Record is the forwarded form of one app event.
type Record struct {
	EnvelopeID   string          `json:"envelope_id"`
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype,omitempty"`
	RetryAttempt int             `json:"retry_attempt,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
	Payload      json.RawMessage `json:"payload"`
}

// Sink receives records after the event has been acknowledged.
type Sink interface {
	Name() string
	Publish(ctx context.Context, rec Record) error
}
