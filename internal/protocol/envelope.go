package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Envelope is one classified inbound frame. The concrete type is one of
// *Hello, *Disconnect, *Reconnect or *AppEvent; switch on it (or on Kind)
// before reading kind-specific fields.
type Envelope interface {
	Kind() Kind
	// Type is the declared wire type, e.g. "events_api".
	Type() string
	// Body is a copy of the full decoded frame.
	Body() map[string]any
	Raw() string
	EnvelopeID() (string, error)
	Payload() (map[string]any, error)

	sealed()
}

type frame struct {
	typ  string
	body map[string]any
	raw  string
}

func (f frame) Type() string         { return f.typ }
func (f frame) Body() map[string]any { return cloneMap(f.body) }
func (f frame) Raw() string          { return f.raw }
func (f frame) sealed()              {}

func (f frame) unavailable(field string) error {
	return newError("envelope", ErrFieldUnavailable, field+" on "+f.typ+" envelope", f.raw, nil)
}

// Hello confirms the remote side is ready to deliver events.
type Hello struct{ frame }

func (*Hello) Kind() Kind                         { return KindConnection }
func (h *Hello) EnvelopeID() (string, error)      { return "", h.unavailable("envelope_id") }
func (h *Hello) Payload() (map[string]any, error) { return nil, h.unavailable("payload") }
func (h *Hello) NumConnections() int              { return intField(h.body, "num_connections") }
func (h *Hello) DebugHost() string                { return debugHost(h.body) }

// Disconnect asks the client to stop for good.
type Disconnect struct {
	frame
	reason string
}

func (*Disconnect) Kind() Kind                         { return KindDisconnect }
func (d *Disconnect) Reason() string                   { return d.reason }
func (d *Disconnect) DebugHost() string                { return debugHost(d.body) }
func (d *Disconnect) EnvelopeID() (string, error)      { return "", d.unavailable("envelope_id") }
func (d *Disconnect) Payload() (map[string]any, error) { return nil, d.unavailable("payload") }

// Reconnect is a disconnect notice with a recoverable reason: the client
// must open a new connection before dropping the current one.
type Reconnect struct {
	frame
	reason string
}

func (*Reconnect) Kind() Kind                         { return KindReconnect }
func (r *Reconnect) Reason() string                   { return r.reason }
func (r *Reconnect) DebugHost() string                { return debugHost(r.body) }
func (r *Reconnect) EnvelopeID() (string, error)      { return "", r.unavailable("envelope_id") }
func (r *Reconnect) Payload() (map[string]any, error) { return nil, r.unavailable("payload") }

// AppEvent carries an application payload that must be acknowledged.
type AppEvent struct {
	frame
}

func (*AppEvent) Kind() Kind { return KindAppEvent }

func (a *AppEvent) EnvelopeID() (string, error) {
	id, ok := a.body["envelope_id"].(string)
	if !ok || id == "" {
		return "", a.unavailable("envelope_id")
	}
	return id, nil
}

// Payload returns a copy; changes made by the caller are not seen by later
// accessors.
func (a *AppEvent) Payload() (map[string]any, error) {
	payload, err := a.payload()
	if err != nil {
		return nil, err
	}
	return cloneMap(payload), nil
}

func (a *AppEvent) payload() (map[string]any, error) {
	payload, ok := a.body["payload"].(map[string]any)
	if !ok {
		return nil, a.unavailable("payload")
	}
	return payload, nil
}

// PayloadJSON re-encodes the payload for typed decoding.
func (a *AppEvent) PayloadJSON() (json.RawMessage, error) {
	payload, err := a.payload()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, newError("envelope", ErrInvalidJSON, "payload", a.raw, err)
	}
	return b, nil
}

// AcceptsResponsePayload reports whether the remote side will use an ack
// payload as the response to the event.
func (a *AppEvent) AcceptsResponsePayload() bool {
	v, _ := a.body["accepts_response_payload"].(bool)
	return v
}

func (a *AppEvent) RetryAttempt() int { return intField(a.body, "retry_attempt") }

func (a *AppEvent) RetryReason() string {
	v, _ := a.body["retry_reason"].(string)
	return v
}

// Classify decodes one raw frame. Frames whose type is missing or not
// recognised are rejected.
func Classify(raw string) (Envelope, error) {
	body, err := decodeObject(raw)
	if err != nil {
		return nil, newError("classify", ErrInvalidJSON, "", raw, err)
	}

	typ, _ := body["type"].(string)
	kind, ok := typeKinds[typ]
	if !ok {
		detail := "missing type"
		if typ != "" {
			detail = "type " + typ
		}
		return nil, newError("classify", ErrUnknownType, detail, raw, nil)
	}

	f := frame{typ: typ, body: body, raw: raw}
	switch kind {
	case KindConnection:
		return &Hello{frame: f}, nil
	case KindDisconnect:
		reason, _ := body["reason"].(string)
		if reconnectReasons[reason] {
			return &Reconnect{frame: f, reason: reason}, nil
		}
		return &Disconnect{frame: f, reason: reason}, nil
	default:
		return &AppEvent{frame: f}, nil
	}
}

// decodeObject parses exactly one JSON object. Numbers are kept as
// json.Number so payloads survive a round trip unchanged.
func decodeObject(raw string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("envelope is not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after envelope")
	}
	return body, nil
}

func intField(body map[string]any, key string) int {
	switch v := body[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func debugHost(body map[string]any) string {
	info, _ := body["debug_info"].(map[string]any)
	host, _ := info["host"].(string)
	return host
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the containers a JSON decode produces; scalars are
// immutable and shared.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
