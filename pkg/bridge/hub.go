// Package bridge is the WebSocket boundary between the browser game
// and the voice sidecar. Game clients connect to /ws/game, push game
// events as JSON frames and microphone PCM as binary frames, and
// receive status, transcript and message-log frames back. The hub also
// implements the session's sink so lifecycle updates fan out to every
// connected client.
package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/paddleworks/go-courtside/pkg/game"
)

// ClientConnection is one connected game client.
type ClientConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes one frame to the client.
func (c *ClientConnection) Send(f *Frame) error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// SendAudio writes one binary PCM frame to the client.
func (c *ClientConnection) SendAudio(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.BinaryMessage, data)
}

// Hub manages game client connections.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*ClientConnection

	onEvent func(clientID string, ev *game.Event)
	onAudio func(clientID string, pcm []byte)

	eventsReceived atomic.Uint64
	audioReceived  atomic.Uint64
	framesSent     atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "bridge"),
		clients: make(map[string]*ClientConnection),
	}
}

// OnEvent sets the callback for parsed game events.
func (h *Hub) OnEvent(callback func(clientID string, ev *game.Event)) {
	h.mu.Lock()
	h.onEvent = callback
	h.mu.Unlock()
}

// OnAudio sets the callback for inbound microphone PCM.
func (h *Hub) OnAudio(callback func(clientID string, pcm []byte)) {
	h.mu.Lock()
	h.onAudio = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the WebSocket routes on a Fiber app.
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/game", websocket.New(h.handleClient))
	app.Get("/ws/game/:id", websocket.New(h.handleClient))
}

// handleClient runs one client connection until it drops.
func (h *Hub) handleClient(c *websocket.Conn) {
	clientID := c.Params("id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := &ClientConnection{
		ID:        clientID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("game client connected", "client", clientID, "total", count)

	defer func() {
		h.mu.Lock()
		delete(h.clients, clientID)
		count := len(h.clients)
		h.mu.Unlock()
		h.logger.Info("game client disconnected", "client", clientID, "total", count)
	}()

	for {
		msgType, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		client.mu.Lock()
		client.LastSeen = time.Now()
		client.mu.Unlock()

		switch msgType {
		case websocket.BinaryMessage:
			h.audioReceived.Add(1)
			h.mu.RLock()
			cb := h.onAudio
			h.mu.RUnlock()
			if cb != nil {
				cb(clientID, data)
			}
		case websocket.TextMessage:
			h.handleEvent(clientID, data)
		}
	}
}

func (h *Hub) handleEvent(clientID string, data []byte) {
	ev, err := game.ParseEvent(data)
	if err != nil {
		h.logger.Warn("unparseable game event", "client", clientID, "error", err)
		return
	}

	h.eventsReceived.Add(1)

	h.mu.RLock()
	cb := h.onEvent
	h.mu.RUnlock()
	if cb != nil {
		cb(clientID, ev)
	}
}

// Broadcast sends a frame to every connected client.
func (h *Hub) Broadcast(f *Frame) {
	for _, client := range h.Clients() {
		h.framesSent.Add(1)
		if err := client.Send(f); err != nil {
			h.logger.Warn("broadcast failed", "client", client.ID, "error", err)
		}
	}
}

// BroadcastAudio sends a binary PCM frame to every connected client.
func (h *Hub) BroadcastAudio(pcm []byte) {
	for _, client := range h.Clients() {
		h.framesSent.Add(1)
		if err := client.SendAudio(pcm); err != nil {
			h.logger.Warn("audio broadcast failed", "client", client.ID, "error", err)
		}
	}
}

// Clients returns all connected clients.
func (h *Hub) Clients() []*ClientConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*ClientConnection, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats are the hub's transfer counters.
type Stats struct {
	ClientCount    int    `json:"client_count"`
	EventsReceived uint64 `json:"events_received"`
	AudioReceived  uint64 `json:"audio_received"`
	FramesSent     uint64 `json:"frames_sent"`
}

// GetStats returns a snapshot of the counters.
func (h *Hub) GetStats() Stats {
	return Stats{
		ClientCount:    h.ClientCount(),
		EventsReceived: h.eventsReceived.Load(),
		AudioReceived:  h.audioReceived.Load(),
		FramesSent:     h.framesSent.Load(),
	}
}
