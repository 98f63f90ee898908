package session

import "context"

// TransportState is the coarse state of the underlying channel.
type TransportState int

const (
	TransportIdle TransportState = iota
	TransportConnecting
	TransportOpen
	TransportClosed
	TransportFailed
)

func (s TransportState) String() string {
	switch s {
	case TransportIdle:
		return "idle"
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportClosed:
		return "closed"
	case TransportFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transport carries envelopes to and from the realtime endpoint. The
// session owns exactly one transport at a time; implementations are the
// WebRTC data channel (canonical) and a WebSocket fallback.
type Transport interface {
	// Connect performs the full handshake through establishment. It
	// returns once the channel is open or the context is done.
	Connect(ctx context.Context) error

	// Send transmits one encoded envelope.
	Send(data []byte) error

	// State returns the current channel state.
	State() TransportState

	// OnMessage sets the inbound message callback. Must be set before
	// Connect.
	OnMessage(fn func(data []byte))

	// OnStateChange sets the state transition callback. Must be set
	// before Connect.
	OnStateChange(fn func(state TransportState))

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// TransportFactory builds a fresh transport for each connection attempt.
// Sessions are constructed with a factory rather than a transport so that
// reconnects never reuse a dead handle.
type TransportFactory func() (Transport, error)
