package session

import (
	"strings"
	"sync"
)

// Transcript is the append-only buffer of assistant speech. Deltas
// accumulate into a pending line until the endpoint reports completion;
// the buffer is never rolled back on error.
type Transcript struct {
	mu      sync.Mutex
	lines   []string
	pending strings.Builder
}

// AppendDelta adds a streaming fragment and returns the full transcript.
func (t *Transcript) AppendDelta(delta string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.WriteString(delta)
	return t.fullLocked()
}

// Finish completes the pending line. If the endpoint supplied the final
// text it replaces the accumulated deltas (the completion is
// authoritative); otherwise the accumulated text is kept.
func (t *Transcript) Finish(final string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := t.pending.String()
	if final != "" {
		line = final
	}
	t.pending.Reset()
	if line != "" {
		t.lines = append(t.lines, line)
	}
	return line
}

// Full returns the complete transcript, completed lines plus any pending
// fragment.
func (t *Transcript) Full() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fullLocked()
}

func (t *Transcript) fullLocked() string {
	full := strings.Join(t.lines, "\n")
	if t.pending.Len() > 0 {
		if full != "" {
			full += "\n"
		}
		full += t.pending.String()
	}
	return full
}

// Reset clears the buffer for a new session.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = nil
	t.pending.Reset()
}
