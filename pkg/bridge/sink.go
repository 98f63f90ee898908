package bridge

import (
	"sync"

	"github.com/paddleworks/go-courtside/pkg/session"
)

// Sink fans session callbacks out to every connected game client. It
// satisfies the session's sink contract.
type Sink struct {
	hub *Hub

	mu   sync.Mutex
	ctrl Controller
}

// NewSink creates a sink over the hub.
func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

// BindController attaches the session controller so status frames can
// carry state and queue stats. Called after the session exists; the
// sink works without it.
func (s *Sink) BindController(ctrl Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()
}

// Status broadcasts a connection status update.
func (s *Sink) Status(status string) {
	data := StatusData{Status: status}

	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl != nil {
		data.SessionState = ctrl.State().String()
		data.QueueLen = ctrl.Queue().Len()
		data.ContentTypeErrors = ctrl.ContentTypeErrors()
	}

	f, err := NewFrame(TypeStatus, data)
	if err != nil {
		return
	}
	s.hub.Broadcast(f)
}

// Transcript broadcasts the running assistant transcript.
func (s *Sink) Transcript(full, delta string) {
	f, err := NewFrame(TypeTranscript, TranscriptData{Full: full, Delta: delta})
	if err != nil {
		return
	}
	s.hub.Broadcast(f)
}

// Message broadcasts one conversation log entry.
func (s *Sink) Message(role, text string) {
	f, err := NewFrame(TypeMessage, MessageData{Role: role, Text: text})
	if err != nil {
		return
	}
	s.hub.Broadcast(f)
}

// Ensure Sink satisfies the session sink contract.
var _ session.Sink = (*Sink)(nil)
