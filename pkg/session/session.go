// Package session implements the voice-assistant connection lifecycle: the
// transport handshake, the data channel, reconnect/backoff policy and
// inbound dispatch. One Session covers one connect-to-close lifetime; all
// collaborators (transport factory, sink, instruction source) are injected.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/paddleworks/go-courtside/pkg/envelope"
)

// Session is the connection state machine. Exactly one transport is live
// at a time; a reconnect-in-progress guard prevents concurrent attempts.
type Session struct {
	cfg     *Config
	logger  *slog.Logger
	sink    Sink
	factory TransportFactory

	queue      *Queue
	transcript *Transcript

	mu            sync.Mutex
	state         State
	transport     Transport
	gen           uint64
	reconnecting  bool
	attempts      int
	cooldownUntil time.Time
	errScore      float64
	lastErrAt     time.Time
	contentErrs   int64
}

// New creates a session. The factory builds a fresh transport for each
// connection attempt.
func New(factory TransportFactory, opts ...Option) *Session {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	s := &Session{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "session"),
		sink:       cfg.Sink,
		factory:    factory,
		transcript: &Transcript{},
		state:      StateIdle,
	}
	s.queue = NewQueue(cfg.QueueCap, cfg.MessageSpacing, cfg.Logger,
		s.sendRaw, s.transportState, s.isOpen)
	s.queue.Start()
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Queue exposes the outbound queue for stats.
func (s *Session) Queue() *Queue {
	return s.queue
}

// TranscriptText returns the full assistant transcript.
func (s *Session) TranscriptText() string {
	return s.transcript.Full()
}

// ContentTypeErrors returns how many content-type complaints the remote
// endpoint has reported. They are recovered, not fatal.
func (s *Session) ContentTypeErrors() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentErrs
}

// Connect establishes the session. Valid from Idle, Closed or Failed.
// On success the session is Open and the instruction push and greeting
// are scheduled, staggered so the remote side has stabilized.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateClosed, StateFailed:
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = StateConnecting
	s.attempts = 0
	gen := s.bumpGenLocked()
	s.mu.Unlock()

	s.sink.Status(StatusConnecting)
	s.transcript.Reset()

	if err := s.establish(ctx, gen); err != nil {
		s.mu.Lock()
		superseded := s.gen != gen
		if !superseded {
			s.state = StateFailed
		}
		s.mu.Unlock()
		if superseded {
			return err
		}
		s.logger.Error("connect failed", "error", err)
		// One automatic retry is scheduled even for setup errors; the
		// attempt budget stops it from thrashing on a bad credential.
		s.triggerReconnect(err)
		return err
	}
	return nil
}

// Disconnect tears down capture, channel and transport, in that order,
// inside the transport's Close. Teardown errors never propagate past this
// boundary and all handles are nulled regardless. Idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.bumpGenLocked()
	t := s.transport
	s.transport = nil
	s.reconnecting = false
	s.state = StateClosed
	s.mu.Unlock()

	s.queue.Clear()

	if t != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("teardown panic swallowed", "panic", r)
				}
			}()
			if err := t.Close(); err != nil {
				s.logger.Warn("teardown error", "error", err)
			}
		}()
	}

	s.logger.Info("session closed")
	return nil
}

// Close disconnects and stops the queue. The session cannot be reused
// for sending after Close, though Connect from Closed remains legal for
// the lifetime of the drain goroutine.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.queue.Stop()
	return err
}

// Enqueue queues an envelope for transmission.
func (s *Session) Enqueue(e *envelope.Envelope) error {
	return s.queue.Enqueue(e)
}

// SendUser queues a user message and requests a response.
func (s *Session) SendUser(text string) error {
	if err := s.queue.Enqueue(envelope.NewItem(envelope.RoleUser, text)); err != nil {
		return err
	}
	return s.queue.Enqueue(envelope.NewResponse())
}

// SendSystem queues a system context message and requests a response.
// The narrator uses this for game-state deltas.
func (s *Session) SendSystem(text string) error {
	if err := s.queue.Enqueue(envelope.NewItem(envelope.RoleSystem, text)); err != nil {
		return err
	}
	return s.queue.Enqueue(envelope.NewResponse())
}

// establish builds a transport, runs the handshake and moves the session
// to Open. gen guards against a superseding Disconnect or reconnect.
func (s *Session) establish(ctx context.Context, gen uint64) error {
	t, err := s.factory()
	if err != nil {
		return err
	}

	t.OnMessage(func(data []byte) {
		if s.currentGen() != gen {
			return
		}
		s.handleMessage(data)
	})
	t.OnStateChange(func(ts TransportState) {
		if s.currentGen() != gen {
			return
		}
		s.handleTransportState(ts)
	})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = t.Close()
		return ErrClosed
	}
	s.transport = t
	s.state = StateNegotiating
	s.mu.Unlock()

	nctx, cancel := context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
	defer cancel()

	if err := t.Connect(nctx); err != nil {
		_ = t.Close()
		s.mu.Lock()
		if s.transport == t {
			s.transport = nil
		}
		s.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrNegotiationTimeout
		}
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = t.Close()
		return ErrClosed
	}
	s.state = StateOpen
	s.mu.Unlock()

	s.sink.Status(StatusConnected)
	s.logger.Info("session open")
	s.queue.Notify()
	s.scheduleOpenPushes(gen)
	return nil
}

// scheduleOpenPushes arms the two one-shot side effects of reaching Open:
// the instruction push after a short delay, then the greeting after a
// longer one.
func (s *Session) scheduleOpenPushes(gen uint64) {
	time.AfterFunc(s.cfg.InstructionsDelay, func() {
		if s.currentGen() != gen {
			return
		}
		s.pushInstructions()
	})
	time.AfterFunc(s.cfg.GreetingDelay, func() {
		if s.currentGen() != gen {
			return
		}
		s.sendGreeting()
	})
}

func (s *Session) pushInstructions() {
	e := envelope.NewSessionUpdate(envelope.SessionConfig{
		Instructions: s.cfg.Instructions(),
		Voice:        s.cfg.Voice,
		Modalities:   []string{"text", "audio"},
		Temperature:  s.cfg.Temperature,
	})
	if err := s.queue.Enqueue(e); err != nil {
		s.logger.Warn("instruction push not queued", "error", err)
	}
}

func (s *Session) sendGreeting() {
	text := s.cfg.Greeting()
	if text == "" {
		return
	}
	if err := s.SendUser(text); err != nil {
		s.logger.Warn("greeting not queued", "error", err)
	}
}

// handleTransportState reacts to channel-level transitions. Loss of an
// established transport triggers the reconnect path.
func (s *Session) handleTransportState(ts TransportState) {
	switch ts {
	case TransportClosed, TransportFailed:
		s.mu.Lock()
		if s.state == StateClosed || s.state == StateFailed {
			s.mu.Unlock()
			return
		}
		if s.state == StateOpen {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		s.logger.Warn("transport lost", "transport_state", ts.String())
		s.triggerReconnect(NewChannelError("transport "+ts.String(), nil, true))
	case TransportOpen:
		s.queue.Notify()
	}
}

// triggerReconnect starts the reconnect loop unless one is already in
// flight, the session is closed, or a recent trigger is still cooling
// down. The cooldown collapses cascading error callbacks from a single
// root cause into one attempt.
func (s *Session) triggerReconnect(reason error) {
	now := time.Now()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.reconnecting {
		s.mu.Unlock()
		s.logger.Debug("reconnect already in flight")
		return
	}
	if now.Before(s.cooldownUntil) {
		s.mu.Unlock()
		s.logger.Debug("reconnect suppressed by cooldown")
		return
	}
	s.cooldownUntil = now.Add(s.cfg.ErrorCooldown)
	s.reconnecting = true
	s.state = StateReconnecting
	gen := s.bumpGenLocked()
	s.mu.Unlock()

	s.sink.Status(StatusReconnecting)
	s.logger.Info("reconnecting", "reason", reason)
	go s.reconnectLoop(gen)
}

// reconnectLoop retries with exponential backoff until success, the
// attempt budget is spent, or the generation is superseded.
func (s *Session) reconnectLoop(gen uint64) {
	delay := s.cfg.BackoffBase

	for {
		if s.currentGen() != gen {
			return
		}

		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		max := s.cfg.MaxReconnectAttempts
		s.mu.Unlock()

		if attempt > max {
			s.mu.Lock()
			s.state = StateFailed
			s.reconnecting = false
			s.mu.Unlock()
			s.sink.Status(StatusManualReconnect)
			s.logger.Error("reconnect attempts exhausted", "attempts", max)
			return
		}

		s.logger.Info("reconnect attempt", "attempt", attempt, "delay", delay)
		time.Sleep(delay)
		if s.currentGen() != gen {
			return
		}

		// Drop the dead transport before dialing a fresh one.
		s.mu.Lock()
		t := s.transport
		s.transport = nil
		s.mu.Unlock()
		if t != nil {
			_ = t.Close()
		}

		if err := s.establish(context.Background(), gen); err != nil {
			s.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			delay *= 2
			if delay > s.cfg.BackoffCap {
				delay = s.cfg.BackoffCap
			}
			continue
		}

		s.mu.Lock()
		s.reconnecting = false
		s.attempts = 0
		s.mu.Unlock()
		s.logger.Info("reconnected")
		return
	}
}

// handleMessage demultiplexes inbound envelopes by kind. Unknown kinds
// are ignored for forward compatibility.
func (s *Session) handleMessage(data []byte) {
	e, err := envelope.Parse(data)
	if err != nil {
		s.logger.Warn("unparseable inbound message", "error", err)
		return
	}
	if !e.Known() {
		s.logger.Debug("ignoring inbound message", "kind", e.Kind)
		return
	}

	switch e.Kind {
	case envelope.KindSessionCreated:
		s.logger.Info("remote session created")

	case envelope.KindSessionUpdated:
		s.logger.Debug("remote session updated")

	case envelope.KindItemCreated:
		s.logger.Debug("conversation item created")

	case envelope.KindTranscriptDelta:
		full := s.transcript.AppendDelta(e.Delta)
		s.sink.Transcript(full, e.Delta)

	case envelope.KindTranscriptDone:
		line := s.transcript.Finish(e.Transcript)
		if line != "" {
			s.sink.Message(string(envelope.RoleAssistant), line)
		}
		s.sink.Transcript(s.transcript.Full(), "")

	case envelope.KindInputTranscript:
		if e.Transcript != "" {
			s.sink.Message(string(envelope.RoleUser), e.Transcript)
		}

	case envelope.KindError:
		s.handleRemoteError(e)
	}
}

// handleRemoteError sorts error envelopes: content-type complaints are
// recovered locally, everything else feeds the channel-error score.
func (s *Session) handleRemoteError(e *envelope.Envelope) {
	if e.IsContentTypeError() {
		s.mu.Lock()
		s.contentErrs++
		s.mu.Unlock()
		s.logger.Warn("remote content-type complaint, outbound tagging stays normalized",
			"message", e.Error.Message)
		return
	}

	msg := ""
	if e.Error != nil {
		msg = e.Error.Message
	}
	s.logger.Error("remote channel error", "message", msg)
	s.recordChannelError()
}

// recordChannelError maintains a decaying error score. Exceeding the
// threshold extends the reconnect cooldown rather than tightening retry.
func (s *Session) recordChannelError() {
	now := time.Now()

	s.mu.Lock()
	if !s.lastErrAt.IsZero() {
		s.errScore -= s.cfg.ErrorDecay * now.Sub(s.lastErrAt).Seconds()
		if s.errScore < 0 {
			s.errScore = 0
		}
	}
	s.errScore++
	s.lastErrAt = now
	extended := s.errScore > s.cfg.ErrorThreshold
	if extended {
		s.cooldownUntil = now.Add(s.cfg.ExtendedCooldown)
		s.errScore = 0
	}
	s.mu.Unlock()

	if extended {
		s.logger.Warn("channel error threshold exceeded, extending cooldown",
			"cooldown", s.cfg.ExtendedCooldown)
	}
}

// Queue gates.

func (s *Session) sendRaw(data []byte) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return ErrNotOpen
	}
	return t.Send(data)
}

func (s *Session) transportState() TransportState {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return TransportIdle
	}
	return t.State()
}

func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen
}

// Generation counter. Bumped by Connect, Disconnect and reconnect
// triggers; stale timers and transport callbacks check it before acting,
// which makes supersession explicit.

func (s *Session) bumpGenLocked() uint64 {
	s.gen++
	return s.gen
}

func (s *Session) currentGen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}
