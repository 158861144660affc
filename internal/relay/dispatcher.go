package relay

import (
	"context"
	"time"

	"socketmode/internal/logging"
	"socketmode/internal/metrics"
	"socketmode/internal/socket"
)

type DispatcherOptions struct {
	Sinks []Sink
	// SlashResponses maps a command such as "/deploy" to the text returned
	// in the ack when the envelope accepts a response payload.
	SlashResponses map[string]string

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Dispatcher is the default socket.Handler: it acknowledges every event
// immediately and forwards it to the sinks once the ack is on the wire.
type Dispatcher struct {
	opts   DispatcherOptions
	logger logging.Logger
	now    func() time.Time
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	return &Dispatcher{opts: opts, logger: logger, now: time.Now}
}

func (d *Dispatcher) Handle(ctx context.Context, evt *socket.Event) error {
	if evt.PostAck() {
		d.publish(ctx, evt)
		return nil
	}

	evt.Ack(d.response(evt))
	if len(d.opts.Sinks) > 0 {
		evt.Defer()
	}
	return nil
}

func (d *Dispatcher) response(evt *socket.Event) map[string]any {
	env := evt.Envelope()
	if len(d.opts.SlashResponses) == 0 || !env.AcceptsResponsePayload() {
		return nil
	}
	cmd, ok := evt.Payload()["command"].(string)
	if !ok {
		return nil
	}
	text, ok := d.opts.SlashResponses[cmd]
	if !ok {
		return nil
	}
	return map[string]any{"text": text}
}

func (d *Dispatcher) publish(ctx context.Context, evt *socket.Event) {
	env := evt.Envelope()
	logger := d.logger.With("envelope_id", evt.EnvelopeID(), "type", evt.Type())

	payload, err := env.PayloadJSON()
	if err != nil {
		logger.Warn("event payload not forwardable", "err", err.Error())
		return
	}
	subtype, err := subtypeOf(evt.Type(), payload)
	if err != nil {
		logger.Debug("event payload not decoded", "err", err.Error())
	}

	rec := Record{
		EnvelopeID:   evt.EnvelopeID(),
		Type:         evt.Type(),
		Subtype:      subtype,
		RetryAttempt: env.RetryAttempt(),
		ReceivedAt:   d.now().UTC(),
		Payload:      payload,
	}
	for _, sink := range d.opts.Sinks {
		if err := sink.Publish(ctx, rec); err != nil {
			d.opts.Metrics.SinkFailed(sink.Name())
			logger.Warn("relay sink failed", "sink", sink.Name(), "err", err.Error())
		}
	}
	logger.Debug("event relayed", "subtype", subtype, "sinks", len(d.opts.Sinks))
}
