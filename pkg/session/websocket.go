package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WSConfig configures the WebSocket fallback transport.
type WSConfig struct {
	// Credential is the bearer key sent on the handshake.
	Credential string

	// Endpoint is the realtime API base URL. An https scheme is
	// rewritten to wss for the dial.
	Endpoint string

	// Model is appended to the dial URL.
	Model string

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// WSTransport carries envelopes over a single WebSocket. It is the
// fallback for environments where UDP is blocked; there is no audio
// path, only the event channel.
type WSTransport struct {
	cfg    WSConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  TransportState
	conn   *websocket.Conn
	closed bool

	onMessage func([]byte)
	onState   func(TransportState)
}

// NewWSTransport creates the transport. Connect does all the work.
func NewWSTransport(cfg WSConfig) *WSTransport {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WSTransport{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "session.websocket"),
		state:  TransportIdle,
	}
}

// Connect dials the realtime endpoint and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	if t.cfg.Credential == "" {
		return &SetupError{Message: "missing credential", Cause: ErrMissingCredential}
	}

	t.setState(TransportConnecting)

	url := fmt.Sprintf("%s?model=%s", wsURL(t.cfg.Endpoint), t.cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+t.cfg.Credential)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		t.setState(TransportFailed)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &SetupError{StatusCode: resp.StatusCode, Message: "credential rejected"}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewChannelError("websocket dial", err, true)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)

	t.setState(TransportOpen)
	t.logger.Info("websocket transport open")
	return nil
}

func wsURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Warn("websocket read error", "error", err)
				t.setState(TransportFailed)
			}
			return
		}
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(data)
		}
	}
}

// Send transmits one encoded envelope as a text frame.
func (t *WSTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TransportOpen || t.conn == nil {
		return NewChannelError("websocket not open", nil, true)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return NewChannelError("websocket write", err, true)
	}
	return nil
}

// State returns the current channel state.
func (t *WSTransport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnMessage sets the inbound message callback.
func (t *WSTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

// OnStateChange sets the state transition callback.
func (t *WSTransport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

// Close shuts the connection down. Idempotent.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.state = TransportClosed
	t.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		return conn.Close()
	}
	return nil
}

func (t *WSTransport) setState(s TransportState) {
	t.mu.Lock()
	if t.closed && s != TransportClosed {
		t.mu.Unlock()
		return
	}
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Ensure WSTransport implements Transport.
var _ Transport = (*WSTransport)(nil)
