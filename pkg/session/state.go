package session

// State represents the lifecycle phase of a voice session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateNegotiating
	StateOpen
	StateDisconnected
	StateFailed
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateOpen:
		return "open"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status strings surfaced to the UI sink for each phase.
const (
	StatusConnecting      = "Connecting..."
	StatusConnected       = "Connected"
	StatusReconnecting    = "Reconnecting..."
	StatusManualReconnect = "Connection lost - reconnect manually"
)
