package socket

import (
	"context"

	"socketmode/internal/protocol"
)

// Handler consumes app events. Handle must call evt.Ack before returning
// from the first invocation. If it also calls evt.Defer, Handle is invoked a
// second time, with evt.PostAck() true, once the ack has been written.
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

type HandlerFunc func(ctx context.Context, evt *Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error { return f(ctx, evt) }

// Event is the per-envelope context handed to a Handler.
type Event struct {
	envelope   *protocol.AppEvent
	id         string
	acked      bool
	ackPayload map[string]any
	deferred   bool
	postAck    bool
}

func newEvent(env *protocol.AppEvent) (*Event, error) {
	id, err := env.EnvelopeID()
	if err != nil {
		return nil, err
	}
	if _, err := env.Payload(); err != nil {
		return nil, err
	}
	return &Event{envelope: env, id: id}, nil
}

func (e *Event) Envelope() *protocol.AppEvent { return e.envelope }
func (e *Event) EnvelopeID() string           { return e.id }
func (e *Event) Type() string                 { return e.envelope.Type() }

// Payload returns a fresh copy of the event payload on every call.
func (e *Event) Payload() map[string]any {
	p, _ := e.envelope.Payload()
	return p
}

// Ack records the acknowledgment. payload may be nil. Only the first call
// counts; calls after the ack was sent are ignored.
func (e *Event) Ack(payload map[string]any) {
	if e.acked {
		return
	}
	e.acked = true
	e.ackPayload = payload
}

// Defer requests a second, post-ack invocation.
func (e *Event) Defer() {
	if e.postAck {
		return
	}
	e.deferred = true
}

func (e *Event) Acked() bool                { return e.acked }
func (e *Event) AckPayload() map[string]any { return e.ackPayload }
func (e *Event) Deferred() bool             { return e.deferred }
func (e *Event) PostAck() bool              { return e.postAck }
