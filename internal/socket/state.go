package socket

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CredentialSource supplies the app-level bearer token. It is read on every
// handshake so a rotated token is picked up on reconnect.
type CredentialSource interface {
	AppToken() (string, bool)
}

// StaticToken is a fixed token; the empty string means no token.
type StaticToken string

func (t StaticToken) AppToken() (string, bool) { return string(t), t != "" }
