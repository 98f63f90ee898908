package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/paddleworks/go-courtside/pkg/game"
	"github.com/paddleworks/go-courtside/pkg/session"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewFrame(TypeStatus, StatusData{Status: "Connected", QueueLen: 2})
	if err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}

	data, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	back, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if back.Type != TypeStatus {
		t.Errorf("type = %q, want %q", back.Type, TypeStatus)
	}

	var status StatusData
	if err := json.Unmarshal(back.Data, &status); err != nil {
		t.Fatalf("unmarshal data failed: %v", err)
	}
	if status.Status != "Connected" || status.QueueLen != 2 {
		t.Errorf("data = %+v", status)
	}
}

func TestParseFrameRejectsUntyped(t *testing.T) {
	if _, err := ParseFrame([]byte(`{"ts":123}`)); err == nil {
		t.Error("expected error for untyped frame")
	}
	if _, err := ParseFrame([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(quietLogger())

	if hub.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if stats := hub.GetStats(); stats.EventsReceived != 0 || stats.FramesSent != 0 {
		t.Errorf("fresh hub stats = %+v", stats)
	}
}

func dialClient(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var ws *websocket.Conn
	var err error
	for i := 0; i < 20; i++ {
		ws, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { ws.Close() })
			return ws
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("WebSocket dial error: %v", err)
	return nil
}

func TestClientLifecycle(t *testing.T) {
	hub := NewHub(quietLogger())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)

	go app.Listen(":18090")
	defer app.Shutdown()

	ws := dialClient(t, "ws://localhost:18090/ws/game/test-client")

	waitCond(t, func() bool { return hub.ClientCount() == 1 }, "client never registered")

	ws.Close()
	waitCond(t, func() bool { return hub.ClientCount() == 0 }, "client never deregistered")
}

func waitCond(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEventCallback(t *testing.T) {
	hub := NewHub(quietLogger())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)

	var gotType atomic.Value
	hub.OnEvent(func(clientID string, ev *game.Event) {
		gotType.Store(string(ev.Type))
	})

	go app.Listen(":18091")
	defer app.Shutdown()

	ws := dialClient(t, "ws://localhost:18091/ws/game/event-test")

	ev, err := game.NewScoreEvent(1, 0, "player")
	if err != nil {
		t.Fatalf("NewScoreEvent failed: %v", err)
	}
	data, err := ev.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitCond(t, func() bool {
		v, _ := gotType.Load().(string)
		return v == string(game.TypeScoreUpdate)
	}, "event callback never fired")

	if stats := hub.GetStats(); stats.EventsReceived != 1 {
		t.Errorf("EventsReceived = %d, want 1", stats.EventsReceived)
	}
}

func TestAudioCallback(t *testing.T) {
	hub := NewHub(quietLogger())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)

	var gotBytes atomic.Int64
	hub.OnAudio(func(clientID string, pcm []byte) {
		gotBytes.Store(int64(len(pcm)))
	})

	go app.Listen(":18092")
	defer app.Shutdown()

	ws := dialClient(t, "ws://localhost:18092/ws/game/audio-test")

	if err := ws.WriteMessage(websocket.BinaryMessage, make([]byte, 960)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitCond(t, func() bool { return gotBytes.Load() == 960 }, "audio callback never fired")
}

func TestSinkBroadcast(t *testing.T) {
	hub := NewHub(quietLogger())
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	hub.RegisterRoutes(app)

	go app.Listen(":18093")
	defer app.Shutdown()

	ws := dialClient(t, "ws://localhost:18093/ws/game/sink-test")
	waitCond(t, func() bool { return hub.ClientCount() == 1 }, "client never registered")

	sink := NewSink(hub)
	sink.Status(session.StatusConnected)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	f, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if f.Type != TypeStatus {
		t.Fatalf("frame type = %q, want status", f.Type)
	}
	var status StatusData
	if err := json.Unmarshal(f.Data, &status); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if status.Status != session.StatusConnected {
		t.Errorf("status = %q, want %q", status.Status, session.StatusConnected)
	}
}

// fakeController satisfies Controller for API tests.
type fakeController struct {
	state session.State
	queue *session.Queue
}

func newFakeController() *fakeController {
	q := session.NewQueue(10, time.Millisecond, quietLogger(),
		func([]byte) error { return nil },
		func() session.TransportState { return session.TransportOpen },
		func() bool { return true },
	)
	return &fakeController{state: session.StateOpen, queue: q}
}

func (f *fakeController) Connect(ctx context.Context) error { f.state = session.StateOpen; return nil }
func (f *fakeController) Disconnect() error                 { f.state = session.StateClosed; return nil }
func (f *fakeController) State() session.State              { return f.state }
func (f *fakeController) TranscriptText() string            { return "Game on!" }
func (f *fakeController) ContentTypeErrors() int64          { return 0 }
func (f *fakeController) Queue() *session.Queue             { return f.queue }

func TestAPIStatus(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := NewServer(hub, newFakeController(), quietLogger())

	req := httptest.NewRequest("GET", "/api/status", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["session_state"] != session.StateOpen.String() {
		t.Errorf("session_state = %v", body["session_state"])
	}
}

func TestAPITranscript(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := NewServer(hub, newFakeController(), quietLogger())

	req := httptest.NewRequest("GET", "/api/transcript", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["transcript"] != "Game on!" {
		t.Errorf("transcript = %q", body["transcript"])
	}
}

func TestAPIDisconnect(t *testing.T) {
	hub := NewHub(quietLogger())
	ctrl := newFakeController()
	srv := NewServer(hub, ctrl, quietLogger())

	req := httptest.NewRequest("POST", "/api/disconnect", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ctrl.state != session.StateClosed {
		t.Errorf("controller state = %v, want Closed", ctrl.state)
	}
}
