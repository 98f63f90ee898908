// Package game defines the event contract between the VR table-tennis game
// and the voice sidecar, plus the ephemeral state snapshot the narrator
// reads. The game itself runs in the browser; this package only mirrors the
// facts it reports.
package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the type of game event.
type EventType string

const (
	TypeGameStarted   EventType = "game_started"
	TypeGameEnded     EventType = "game_ended"
	TypeScoreUpdate   EventType = "score_update"
	TypeCollision     EventType = "collision"
	TypeTimerUpdate   EventType = "timer_update"
	TypeSlowdownStart EventType = "ai_slowdown_started"
	TypeSlowdownEnd   EventType = "ai_slowdown_ended"
)

// Event is the base wrapper for all game events.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, data interface{}) (*Event, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseEvent parses a JSON event from bytes.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("event missing type")
	}
	return &ev, nil
}

// Bytes returns the JSON-encoded event.
func (e *Event) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// parseData unmarshals the event data into the provided struct.
func (e *Event) parseData(v interface{}) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// EndData reports the end of a game.
type EndData struct {
	Winner      string `json:"winner"` // "player" or "ai"
	PlayerScore int    `json:"player_score"`
	AIScore     int    `json:"ai_score"`
}

// ScoreData reports a score change.
type ScoreData struct {
	Player int    `json:"player"`
	AI     int    `json:"ai"`
	Scorer string `json:"scorer"` // "player" or "ai"
}

// CollisionData reports a ball collision.
type CollisionData struct {
	Surface string `json:"surface"` // "paddle" or "wall"
}

// TimerData reports the match clock.
type TimerData struct {
	SecondsLeft int  `json:"seconds_left"`
	Running     bool `json:"running"`
}

// GetEndData extracts end-of-game data from the event.
func (e *Event) GetEndData() (*EndData, error) {
	if e.Type != TypeGameEnded {
		return nil, fmt.Errorf("event type is %s, not %s", e.Type, TypeGameEnded)
	}
	var d EndData
	if err := e.parseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetScoreData extracts score data from the event.
func (e *Event) GetScoreData() (*ScoreData, error) {
	if e.Type != TypeScoreUpdate {
		return nil, fmt.Errorf("event type is %s, not %s", e.Type, TypeScoreUpdate)
	}
	var d ScoreData
	if err := e.parseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetCollisionData extracts collision data from the event.
func (e *Event) GetCollisionData() (*CollisionData, error) {
	if e.Type != TypeCollision {
		return nil, fmt.Errorf("event type is %s, not %s", e.Type, TypeCollision)
	}
	var d CollisionData
	if err := e.parseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetTimerData extracts timer data from the event.
func (e *Event) GetTimerData() (*TimerData, error) {
	if e.Type != TypeTimerUpdate {
		return nil, fmt.Errorf("event type is %s, not %s", e.Type, TypeTimerUpdate)
	}
	var d TimerData
	if err := e.parseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// NewScoreEvent creates a score update event.
func NewScoreEvent(player, ai int, scorer string) (*Event, error) {
	return NewEvent(TypeScoreUpdate, ScoreData{Player: player, AI: ai, Scorer: scorer})
}

// NewTimerEvent creates a timer update event.
func NewTimerEvent(secondsLeft int, running bool) (*Event, error) {
	return NewEvent(TypeTimerUpdate, TimerData{SecondsLeft: secondsLeft, Running: running})
}

// NewEndEvent creates a game-ended event.
func NewEndEvent(winner string, playerScore, aiScore int) (*Event, error) {
	return NewEvent(TypeGameEnded, EndData{Winner: winner, PlayerScore: playerScore, AIScore: aiScore})
}
