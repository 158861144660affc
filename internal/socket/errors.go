package socket

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrMissingCredential          = errors.New("app token not configured")
	ErrHandshakeRejected          = errors.New("open connection request rejected")
	ErrMalformedHandshakeResponse = errors.New("open connection response has no usable url")
	ErrRemoteDisconnect           = errors.New("remote side requested disconnect")
	ErrStopped                    = errors.New("socket mode stopped")
	ErrClosed                     = errors.New("socket mode manager already closed")
)

// Remote error codes that no amount of retrying will fix.
var permanentHandshakeErrors = map[string]bool{
	"invalid_auth":           true,
	"not_authed":             true,
	"account_inactive":       true,
	"token_revoked":          true,
	"not_allowed_token_type": true,
}

type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// ConnectError is a failed handshake. Remote is the error code reported in
// the response body, if any.
type ConnectError struct {
	Err        error
	Status     int
	Remote     string
	RetryAfter time.Duration
	Cause      error
}

func (e *ConnectError) Error() string {
	msg := "connect: " + e.Err.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Remote != "" {
		msg += ": " + e.Remote
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConnectError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Permanent reports whether the failure is an authentication problem.
func (e *ConnectError) Permanent() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || permanentHandshakeErrors[e.Remote]
}

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// DisconnectError ends a run on a non-recoverable disconnect notice.
type DisconnectError struct {
	Reason string
	Raw    string
}

func (e *DisconnectError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unspecified"
	}
	return fmt.Sprintf("%s: reason %s (envelope=%s)", ErrRemoteDisconnect, reason, e.Raw)
}

func (e *DisconnectError) Unwrap() error { return ErrRemoteDisconnect }
