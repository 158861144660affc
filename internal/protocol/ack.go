package protocol

import (
	"encoding/json"
)

// Ack acknowledges one app event. A nil Payload is left off the wire; a
// non-nil empty one is sent as {}.
type Ack struct {
	EnvelopeID string
	Payload    map[string]any
}

type ackFrame struct {
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Encode returns the ack frame text.
func (a Ack) Encode() (string, error) {
	frame := ackFrame{EnvelopeID: a.EnvelopeID}
	if a.Payload != nil {
		b, err := json.Marshal(a.Payload)
		if err != nil {
			return "", newError("encode ack", ErrEncodingFailure, "envelope "+a.EnvelopeID, "", err)
		}
		frame.Payload = b
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return "", newError("encode ack", ErrEncodingFailure, "envelope "+a.EnvelopeID, "", err)
	}
	return string(b), nil
}

// EncodeAck builds the ack frame for envelopeID.
func EncodeAck(envelopeID string, payload map[string]any) (string, error) {
	return Ack{EnvelopeID: envelopeID, Payload: payload}.Encode()
}
