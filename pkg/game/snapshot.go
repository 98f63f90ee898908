package game

import (
	"sync"
	"time"
)

// Snapshot mirrors the game state the narrator cares about. It is fed by
// bridge events and read by the narrator; nothing is persisted and Reset
// rebuilds it for each new session.
type Snapshot struct {
	mu sync.RWMutex

	playerScore int
	aiScore     int
	secondsLeft int
	running     bool
	slowdown    bool
	rallyStart  time.Time
	rallyHits   int
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Apply updates the snapshot from a game event. Events with malformed
// payloads are skipped; the snapshot keeps its last consistent view.
func (s *Snapshot) Apply(ev *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case TypeGameStarted:
		s.resetLocked()
		s.running = true

	case TypeGameEnded:
		s.running = false
		if d, err := ev.GetEndData(); err == nil {
			s.playerScore = d.PlayerScore
			s.aiScore = d.AIScore
		}

	case TypeScoreUpdate:
		if d, err := ev.GetScoreData(); err == nil {
			s.playerScore = d.Player
			s.aiScore = d.AI
		}
		// A point ends the rally.
		s.rallyStart = time.Time{}
		s.rallyHits = 0

	case TypeCollision:
		if d, err := ev.GetCollisionData(); err == nil && d.Surface == "paddle" {
			if s.rallyStart.IsZero() {
				s.rallyStart = time.Now()
			}
			s.rallyHits++
		}

	case TypeTimerUpdate:
		if d, err := ev.GetTimerData(); err == nil {
			s.secondsLeft = d.SecondsLeft
			s.running = d.Running
		}

	case TypeSlowdownStart:
		s.slowdown = true

	case TypeSlowdownEnd:
		s.slowdown = false
	}
}

// Reset clears all state for a new session.
func (s *Snapshot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Snapshot) resetLocked() {
	s.playerScore = 0
	s.aiScore = 0
	s.secondsLeft = 0
	s.running = false
	s.slowdown = false
	s.rallyStart = time.Time{}
	s.rallyHits = 0
}

// Scores returns the current player and AI scores.
func (s *Snapshot) Scores() (player, ai int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerScore, s.aiScore
}

// SecondsLeft returns the match clock value.
func (s *Snapshot) SecondsLeft() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secondsLeft
}

// Running reports whether a game is in progress.
func (s *Snapshot) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Slowdown reports whether the AI slowdown power-up is active.
func (s *Snapshot) Slowdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slowdown
}

// RallyDuration returns how long the current rally has lasted, or zero if
// no rally is in progress.
func (s *Snapshot) RallyDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rallyStart.IsZero() {
		return 0
	}
	return time.Since(s.rallyStart)
}

// RallyHits returns the number of paddle hits in the current rally.
func (s *Snapshot) RallyHits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rallyHits
}
