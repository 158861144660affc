package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidJSON         = errors.New("invalid envelope json")
	ErrUnknownType         = errors.New("unknown envelope type")
	ErrFieldUnavailable    = errors.New("field not available for envelope kind")
	ErrEncodingFailure     = errors.New("ack encoding failed")
	ErrUnacknowledgedEvent = errors.New("event handler did not acknowledge")
)

const maxRawInError = 512

// Error is a protocol failure tied to one frame. Raw carries the offending
// frame (or ack) text so the failure can be diagnosed from the message alone.
type Error struct {
	Op     string
	Err    error
	Detail string
	Raw    string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Op + ": "
	if e.Detail != "" {
		msg += e.Detail + ": "
	}
	msg += e.Err.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Raw != "" {
		raw := e.Raw
		if len(raw) > maxRawInError {
			raw = raw[:maxRawInError] + "..."
		}
		msg += fmt.Sprintf(" (envelope=%s)", raw)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func newError(op string, sentinel error, detail, raw string, cause error) *Error {
	return &Error{Op: op, Err: sentinel, Detail: detail, Raw: raw, Cause: cause}
}

// NewUnacknowledgedError reports an app event whose handler returned
// without recording an ack decision.
func NewUnacknowledgedError(env *AppEvent) *Error {
	return newError("dispatch", ErrUnacknowledgedEvent, "", env.Raw(), nil)
}
