package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/paddleworks/go-courtside/pkg/envelope"
)

// pollInterval is how often the drain loop re-checks a transport that is
// mid-negotiation.
const pollInterval = 50 * time.Millisecond

// Queue rate-limits and orders outbound envelopes. FIFO, except that a
// failed transmission re-inserts its entry at the head so causal order is
// preserved relative to newer entries. The size cap bounds memory: excess
// entries are shed rather than grown.
type Queue struct {
	cap     int
	spacing time.Duration
	logger  *slog.Logger

	send  func(data []byte) error
	state func() TransportState
	open  func() bool

	mu       sync.Mutex
	entries  []*envelope.Envelope
	lastSend time.Time
	shed     int64
	epoch    uint64

	notify  chan struct{}
	stopCh  chan struct{}
	started sync.Once
	stopped sync.Once
}

// NewQueue creates a queue. send transmits one encoded envelope, state
// reports the transport channel state, and open gates Enqueue on the
// session being Open.
func NewQueue(cap int, spacing time.Duration, logger *slog.Logger,
	send func([]byte) error, state func() TransportState, open func() bool) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		cap:     cap,
		spacing: spacing,
		logger:  logger.With("component", "session.queue"),
		send:    send,
		state:   state,
		open:    open,
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the drain goroutine. Safe to call once.
func (q *Queue) Start() {
	q.started.Do(func() {
		go q.run()
	})
}

// Stop halts the drain goroutine. Pending entries are kept until Clear.
func (q *Queue) Stop() {
	q.stopped.Do(func() {
		close(q.stopCh)
	})
}

// Enqueue validates and normalizes the envelope and appends it to the
// tail. It fails with ErrNotOpen unless the session is open, and with
// ErrQueueFull when the cap is reached.
func (q *Queue) Enqueue(e *envelope.Envelope) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Normalize() {
		q.logger.Debug("corrected outbound content tagging", "kind", e.Kind)
	}
	if !q.open() {
		return ErrNotOpen
	}

	q.mu.Lock()
	if len(q.entries) >= q.cap {
		q.shed++
		q.mu.Unlock()
		q.logger.Warn("queue full, shedding message", "kind", e.Kind)
		return ErrQueueFull
	}
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	q.Notify()
	return nil
}

// Notify wakes the drain loop. The session calls this when the transport
// reopens after a reconnect.
func (q *Queue) Notify() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Shed returns how many entries have been dropped at the cap.
func (q *Queue) Shed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shed
}

// Clear drops all pending entries, including one the drain loop may have
// popped and not yet transmitted. Called on explicit disconnect.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.epoch++
	q.mu.Unlock()
}

func (q *Queue) run() {
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.notify:
		}
		q.drain()
	}
}

// drain transmits entries until the queue empties or the transport goes
// away. It returns with entries intact when the channel is down; the
// session wakes it again after reconnecting.
func (q *Queue) drain() {
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return
		}
		e := q.entries[0]
		q.entries = q.entries[1:]
		last := q.lastSend
		epoch := q.epoch
		q.mu.Unlock()

		// Minimum inter-message spacing.
		if wait := q.spacing - time.Since(last); wait > 0 {
			if !q.sleep(wait) {
				q.requeueHead(e, epoch)
				return
			}
		}

		// Pause and poll while the channel is mid-negotiation.
		for q.state() == TransportConnecting {
			if !q.sleep(pollInterval) {
				q.requeueHead(e, epoch)
				return
			}
		}

		if q.state() != TransportOpen {
			q.requeueHead(e, epoch)
			return
		}

		data, err := e.Marshal()
		if err != nil {
			// Cannot be fixed by retrying.
			q.logger.Warn("dropping unencodable message", "error", err)
			continue
		}

		if err := q.send(data); err != nil {
			q.logger.Warn("send failed, retrying", "kind", e.Kind, "error", err)
			q.requeueHead(e, epoch)
			if !q.sleep(q.spacing) {
				return
			}
			continue
		}

		q.mu.Lock()
		q.lastSend = time.Now()
		q.mu.Unlock()
	}
}

// requeueHead puts a not-yet-transmitted entry back at the head. An entry
// popped before a Clear belongs to the cleared generation and is dropped
// instead of resurfacing in the next session. When the cap is exceeded
// the newest entry is shed instead of growing the queue.
func (q *Queue) requeueHead(e *envelope.Envelope, epoch uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if epoch != q.epoch {
		q.logger.Debug("dropping entry from a cleared queue generation", "kind", e.Kind)
		return
	}

	q.entries = append([]*envelope.Envelope{e}, q.entries...)
	if len(q.entries) > q.cap {
		q.entries = q.entries[:q.cap]
		q.shed++
		q.logger.Warn("queue over cap after retry, shedding tail")
	}
}

// sleep waits for d or until the queue is stopped. Returns false when
// stopped.
func (q *Queue) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-q.stopCh:
		return false
	case <-t.C:
		return true
	}
}
