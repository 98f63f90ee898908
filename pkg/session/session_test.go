package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paddleworks/go-courtside/pkg/envelope"
)

// recordSink records everything the session reports.
type recordSink struct {
	mu       sync.Mutex
	statuses []string
	messages [][2]string
	fulls    []string
}

func (r *recordSink) Status(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordSink) Transcript(full, delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fulls = append(r.fulls, full)
}

func (r *recordSink) Message(role, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, [2]string{role, text})
}

func (r *recordSink) sawStatus(status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *recordSink) sawMessage(role, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m[0] == role && m[1] == text {
			return true
		}
	}
	return false
}

// mockFactory builds a fresh MockTransport per attempt, optionally
// scripted via prep.
type mockFactory struct {
	mu   sync.Mutex
	made []*MockTransport
	prep func(*MockTransport)
}

func (f *mockFactory) factory() (Transport, error) {
	f.mu.Lock()
	prep := f.prep
	f.mu.Unlock()

	m := NewMockTransport()
	if prep != nil {
		prep(m)
	}

	f.mu.Lock()
	f.made = append(f.made, m)
	f.mu.Unlock()
	return m, nil
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func (f *mockFactory) last() *MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.made) == 0 {
		return nil
	}
	return f.made[len(f.made)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession builds a session with fast timings. The open pushes are
// parked far in the future unless a test overrides the delays.
func newTestSession(t *testing.T, f *mockFactory, sink *recordSink, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithLogger(discardLogger()),
		WithSink(sink),
		WithCredential("test-key"),
		WithMessageSpacing(time.Millisecond),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithNegotiationTimeout(200 * time.Millisecond),
		WithDelays(time.Hour, time.Hour),
	}
	s := New(f.factory, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnectReachesOpen(t *testing.T) {
	f := &mockFactory{}
	sink := &recordSink{}
	s := newTestSession(t, f, sink)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := s.State(); got != StateOpen {
		t.Fatalf("State = %v, want Open", got)
	}
	if !sink.sawStatus(StatusConnecting) {
		t.Error("sink never saw the connecting status")
	}
	if !sink.sawStatus(StatusConnected) {
		t.Error("sink never saw the connected status")
	}
}

func TestConnectInvalidFromOpen(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Connect = %v, want ErrInvalidState", err)
	}
}

func TestSendBeforeConnect(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{})

	if err := s.SendUser("hello"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendUser before Connect = %v, want ErrNotOpen", err)
	}
}

func TestOpenPushesStaggered(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{},
		WithDelays(5*time.Millisecond, 20*time.Millisecond),
		WithInstructions(func() string { return "You are the courtside announcer." }),
		WithGreeting(func() string { return "Hello" }),
	)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	mock := f.last()
	waitFor(t, 2*time.Second, func() bool { return len(mock.Sent()) >= 3 }, "open pushes never transmitted")

	sent := mock.Sent()
	first, err := envelope.Parse(sent[0])
	if err != nil {
		t.Fatalf("first payload unparseable: %v", err)
	}
	if first.Kind != envelope.KindSessionUpdate {
		t.Fatalf("first push kind = %q, want session.update", first.Kind)
	}
	if first.Session == nil || first.Session.Instructions == "" {
		t.Error("session.update carried no instructions")
	}

	second, err := envelope.Parse(sent[1])
	if err != nil {
		t.Fatalf("second payload unparseable: %v", err)
	}
	if second.Kind != envelope.KindItemCreate || second.Item.Role != envelope.RoleUser {
		t.Errorf("greeting = kind %q role %q, want user item", second.Kind, second.Item.Role)
	}
	if second.Item.Content[0].Type != envelope.ContentInputText {
		t.Errorf("greeting content type = %q, want input_text", second.Item.Content[0].Type)
	}

	third, err := envelope.Parse(sent[2])
	if err != nil {
		t.Fatalf("third payload unparseable: %v", err)
	}
	if third.Kind != envelope.KindResponseCreate {
		t.Errorf("third push kind = %q, want response.create", third.Kind)
	}
}

func TestNegotiationTimeout(t *testing.T) {
	var releases []func()
	var mu sync.Mutex

	f := &mockFactory{}
	f.prep = func(m *MockTransport) {
		release := m.BlockConnect()
		mu.Lock()
		releases = append(releases, release)
		mu.Unlock()
	}
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range releases {
			r()
		}
	})

	sink := &recordSink{}
	s := newTestSession(t, f, sink,
		WithNegotiationTimeout(30*time.Millisecond),
		WithMaxReconnectAttempts(0),
	)

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrNegotiationTimeout) {
		t.Fatalf("Connect = %v, want ErrNegotiationTimeout", err)
	}

	waitFor(t, 2*time.Second, func() bool { return s.State() == StateFailed }, "session never settled in Failed")
	if !sink.sawStatus(StatusManualReconnect) {
		t.Error("sink never saw the manual-reconnect status")
	}
}

func TestReconnectOnTransportLoss(t *testing.T) {
	f := &mockFactory{}
	sink := &recordSink{}
	s := newTestSession(t, f, sink, WithErrorCooldown(time.Millisecond))

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	f.last().Fail()

	waitFor(t, 2*time.Second, func() bool {
		return f.count() == 2 && s.State() == StateOpen
	}, "session never reconnected")

	if !sink.sawStatus(StatusReconnecting) {
		t.Error("sink never saw the reconnecting status")
	}
}

func TestReconnectSingleFlight(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{}, WithErrorCooldown(time.Millisecond))

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Two loss signals from the same root cause.
	mock := f.last()
	mock.Fail()
	mock.Fail()

	waitFor(t, 2*time.Second, func() bool { return s.State() == StateOpen && f.count() > 1 },
		"session never reconnected")

	// Give a hypothetical second loop time to dial.
	time.Sleep(50 * time.Millisecond)
	if got := f.count(); got != 2 {
		t.Errorf("factory invoked %d times, want 2 (initial + one reconnect)", got)
	}
}

func TestReconnectExhaustion(t *testing.T) {
	var attempts atomic.Int32

	f := &mockFactory{}
	f.prep = func(m *MockTransport) {
		if attempts.Add(1) > 1 {
			m.SetConnectErr(NewChannelError("scripted dial failure", nil, true))
		}
	}

	sink := &recordSink{}
	s := newTestSession(t, f, sink,
		WithMaxReconnectAttempts(2),
		WithBackoff(time.Millisecond, 4*time.Millisecond),
		WithErrorCooldown(time.Millisecond),
	)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	f.last().Fail()

	waitFor(t, 2*time.Second, func() bool { return s.State() == StateFailed }, "session never gave up")
	if !sink.sawStatus(StatusManualReconnect) {
		t.Error("sink never saw the manual-reconnect status")
	}
	// Initial dial plus the two budgeted retries.
	if got := f.count(); got != 3 {
		t.Errorf("factory invoked %d times, want 3", got)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}

	if got := s.State(); got != StateClosed {
		t.Errorf("State = %v, want Closed", got)
	}
	if got := f.last().State(); got != TransportClosed {
		t.Errorf("transport state = %v, want closed", got)
	}
	if err := s.SendUser("late"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendUser after Disconnect = %v, want ErrNotOpen", err)
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{}, WithErrorCooldown(time.Millisecond))

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	mock := f.last()
	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	// A late loss signal from the torn-down transport must not revive
	// the session.
	mock.Fail()
	time.Sleep(50 * time.Millisecond)

	if got := s.State(); got != StateClosed {
		t.Errorf("State = %v after late loss signal, want Closed", got)
	}
	if got := f.count(); got != 1 {
		t.Errorf("factory invoked %d times, want 1", got)
	}
}

func TestContentTypeErrorRecovered(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	f.last().InjectMessage([]byte(`{"type":"error","error":{` +
		`"type":"invalid_request_error","code":"invalid_value",` +
		`"param":"item.content[0].type",` +
		`"message":"Invalid value: 'text'. Supported values are: 'input_text'."}}`))

	waitFor(t, time.Second, func() bool { return s.ContentTypeErrors() == 1 },
		"content-type complaint never recorded")
	if got := s.State(); got != StateOpen {
		t.Errorf("State = %v after recoverable error, want Open", got)
	}
}

func TestRepeatedRemoteErrorsSuppressReconnect(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{}, WithErrorCooldown(time.Millisecond))

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	mock := f.last()

	// A burst of channel errors pushes the score over the threshold,
	// which extends the cooldown. The loss that follows must wait it
	// out instead of dialing immediately.
	for i := 0; i < 7; i++ {
		mock.InjectMessage([]byte(`{"type":"error","error":{"message":"server error"}}`))
	}
	mock.Fail()

	time.Sleep(50 * time.Millisecond)
	if got := f.count(); got != 1 {
		t.Errorf("factory invoked %d times during extended cooldown, want 1", got)
	}
	if got := s.State(); got != StateDisconnected {
		t.Errorf("State = %v, want Disconnected", got)
	}
}

func TestTranscriptDispatch(t *testing.T) {
	f := &mockFactory{}
	sink := &recordSink{}
	s := newTestSession(t, f, sink)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	mock := f.last()

	mock.InjectMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"Game "}`))
	mock.InjectMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"on!"}`))
	mock.InjectMessage([]byte(`{"type":"response.audio_transcript.done","transcript":"Game on!"}`))

	waitFor(t, time.Second, func() bool { return sink.sawMessage("assistant", "Game on!") },
		"assistant line never reached the sink")
	if got := s.TranscriptText(); got != "Game on!" {
		t.Errorf("TranscriptText = %q, want %q", got, "Game on!")
	}

	mock.InjectMessage([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"nice shot"}`))
	waitFor(t, time.Second, func() bool { return sink.sawMessage("user", "nice shot") },
		"user line never reached the sink")
}

func TestUnknownInboundIgnored(t *testing.T) {
	f := &mockFactory{}
	s := newTestSession(t, f, &recordSink{})

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	f.last().InjectMessage([]byte(`{"type":"response.output_item.added"}`))
	f.last().InjectMessage([]byte(`not json at all`))

	if got := s.State(); got != StateOpen {
		t.Errorf("State = %v after junk inbound, want Open", got)
	}
}
