package bridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame is the JSON envelope exchanged with game clients over the
// bridge WebSocket. Game events arrive in the same shape; outbound
// frames carry status, transcript and message-log updates. Binary
// WebSocket frames carry raw PCM16 audio and bypass this type.
type Frame struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// Outbound frame types.
const (
	TypeStatus     = "status"
	TypeTranscript = "transcript"
	TypeMessage    = "message"
)

// StatusData carries the connection status string plus session stats.
type StatusData struct {
	Status            string `json:"status"`
	SessionState      string `json:"session_state,omitempty"`
	QueueLen          int    `json:"queue_len"`
	ContentTypeErrors int64  `json:"content_type_errors"`
}

// TranscriptData carries the running assistant transcript.
type TranscriptData struct {
	Full  string `json:"full"`
	Delta string `json:"delta,omitempty"`
}

// MessageData is one conversation log entry.
type MessageData struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// NewFrame wraps data in a timestamped frame.
func NewFrame(frameType string, data interface{}) (*Frame, error) {
	f := &Frame{
		Type:      frameType,
		Timestamp: time.Now().UnixMilli(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s frame: %w", frameType, err)
		}
		f.Data = raw
	}
	return f, nil
}

// Bytes serializes the frame.
func (f *Frame) Bytes() ([]byte, error) {
	return json.Marshal(f)
}

// ParseFrame deserializes a frame and rejects untyped ones.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame has no type")
	}
	return &f, nil
}
