package session

import (
	"context"
	"sync"
)

// MockTransport is a scriptable transport for tests. It records sends and
// lets tests inject inbound messages and state transitions.
type MockTransport struct {
	mu           sync.Mutex
	state        TransportState
	onMessage    func([]byte)
	onState      func(TransportState)
	sent         [][]byte
	connectErr   error
	failSends    int
	blockConnect chan struct{}
	connectCalls int
}

// NewMockTransport creates a mock transport that connects successfully.
func NewMockTransport() *MockTransport {
	return &MockTransport{state: TransportIdle}
}

// Connect moves the transport to open, honoring any scripted failure or
// block.
func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connectCalls++
	m.state = TransportConnecting
	block := m.blockConnect
	err := m.connectErr
	m.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			m.setState(TransportFailed)
			return ctx.Err()
		case <-block:
		}
	}

	if err != nil {
		m.setState(TransportFailed)
		return err
	}

	m.setState(TransportOpen)
	return nil
}

// Send records the payload, honoring scripted failures.
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != TransportOpen {
		return NewChannelError("mock transport not open", nil, true)
	}
	if m.failSends > 0 {
		m.failSends--
		return NewChannelError("scripted send failure", nil, true)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	m.sent = append(m.sent, cp)
	return nil
}

// State returns the current scripted state.
func (m *MockTransport) State() TransportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnMessage sets the inbound message callback.
func (m *MockTransport) OnMessage(fn func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// OnStateChange sets the state transition callback.
func (m *MockTransport) OnStateChange(fn func(TransportState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

// Close moves to closed without firing the state callback; the session
// initiates closes itself and must not observe them as failures.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = TransportClosed
	return nil
}

// Scripting helpers.

// SetConnectErr makes the next Connect fail with err.
func (m *MockTransport) SetConnectErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// BlockConnect makes Connect hang until the returned release func is
// called, simulating a negotiation that never completes.
func (m *MockTransport) BlockConnect() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.blockConnect = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// FailNextSends makes the next n sends fail.
func (m *MockTransport) FailNextSends(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSends = n
}

// Fail simulates a transport-level loss.
func (m *MockTransport) Fail() {
	m.setState(TransportFailed)
}

// InjectMessage delivers an inbound message to the session.
func (m *MockTransport) InjectMessage(data []byte) {
	m.mu.Lock()
	fn := m.onMessage
	m.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// Sent returns a copy of all transmitted payloads.
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// ConnectCalls returns how many times Connect was invoked.
func (m *MockTransport) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

func (m *MockTransport) setState(s TransportState) {
	m.mu.Lock()
	m.state = s
	fn := m.onState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Ensure MockTransport implements Transport.
var _ Transport = (*MockTransport)(nil)
