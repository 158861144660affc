package protocol

// Wire values of the envelope "type" field.
const (
	TypeHello         = "hello"
	TypeDisconnect    = "disconnect"
	TypeSlashCommands = "slash_commands"
	TypeInteractive   = "interactive"
	TypeEventsAPI     = "events_api"
)

// Disconnect reasons that ask the client to open a fresh connection rather
// than give up.
const (
	ReasonWarning          = "warning"
	ReasonRefreshRequested = "refresh_requested"
)

// Kind is the classified meaning of an envelope.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindDisconnect
	KindReconnect
	KindAppEvent
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindDisconnect:
		return "disconnect"
	case KindReconnect:
		return "reconnect"
	case KindAppEvent:
		return "app_event"
	default:
		return "unknown"
	}
}

var typeKinds = map[string]Kind{
	TypeHello:         KindConnection,
	TypeDisconnect:    KindDisconnect,
	TypeSlashCommands: KindAppEvent,
	TypeInteractive:   KindAppEvent,
	TypeEventsAPI:     KindAppEvent,
}

var reconnectReasons = map[string]bool{
	ReasonWarning:          true,
	ReasonRefreshRequested: true,
}
