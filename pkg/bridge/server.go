package bridge

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/paddleworks/go-courtside/pkg/session"
)

// Controller is the slice of the session the HTTP API needs. The
// session type satisfies it.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect() error
	State() session.State
	TranscriptText() string
	ContentTypeErrors() int64
	Queue() *session.Queue
}

// Server hosts the bridge WebSocket and the control API.
type Server struct {
	app    *fiber.App
	hub    *Hub
	ctrl   Controller
	logger *slog.Logger
}

// NewServer builds the Fiber app with all routes registered.
func NewServer(hub *Hub, ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			AppName:               "courtside-bridge",
		}),
		hub:    hub,
		ctrl:   ctrl,
		logger: logger.With("component", "bridge.server"),
	}

	hub.RegisterRoutes(s.app)
	s.registerAPI(s.app.Group("/api"))
	return s
}

func (s *Server) registerAPI(api fiber.Router) {
	api.Get("/status", s.handleStatus)
	api.Get("/transcript", s.handleTranscript)
	api.Post("/connect", s.handleConnect)
	api.Post("/disconnect", s.handleDisconnect)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"session_state":       s.ctrl.State().String(),
		"queue_len":           s.ctrl.Queue().Len(),
		"queue_shed":          s.ctrl.Queue().Shed(),
		"content_type_errors": s.ctrl.ContentTypeErrors(),
		"bridge":              s.hub.GetStats(),
	})
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"transcript": s.ctrl.TranscriptText(),
	})
}

func (s *Server) handleConnect(c *fiber.Ctx) error {
	if err := s.ctrl.Connect(c.Context()); err != nil {
		s.logger.Error("connect via API failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"state": s.ctrl.State().String(),
		})
	}
	return c.JSON(fiber.Map{"state": s.ctrl.State().String()})
}

func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	if err := s.ctrl.Disconnect(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"state": s.ctrl.State().String()})
}

// Listen serves until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("bridge listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
