// Package envelope defines the JSON messages exchanged with the realtime
// voice endpoint over the data channel. This is the one place that knows
// the wire schema; the session and queue only move envelopes around.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the type of a wire envelope.
type Kind string

const (
	// Outbound envelopes
	KindItemCreate     Kind = "conversation.item.create"
	KindResponseCreate Kind = "response.create"
	KindSessionUpdate  Kind = "session.update"

	// Inbound envelopes
	KindSessionCreated  Kind = "session.created"
	KindSessionUpdated  Kind = "session.updated"
	KindItemCreated     Kind = "conversation.item.created"
	KindTranscriptDelta Kind = "response.audio_transcript.delta"
	KindTranscriptDone  Kind = "response.audio_transcript.done"
	KindInputTranscript Kind = "conversation.item.input_audio_transcription.completed"
	KindError           Kind = "error"
)

// Role identifies the author of a conversation item.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Content block types. The endpoint rejects items whose block type does not
// match the role: user and system items carry input_text, assistant items
// carry text.
const (
	ContentInputText = "input_text"
	ContentText      = "text"
)

// ContentBlock is a typed text fragment inside a conversation item.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Item is the payload of a conversation.item.create envelope.
type Item struct {
	Type    string         `json:"type"`
	Role    Role           `json:"role,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`
}

// SessionConfig is the payload of a session.update envelope.
type SessionConfig struct {
	Instructions string   `json:"instructions,omitempty"`
	Voice        string   `json:"voice,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
	Temperature  float64  `json:"temperature,omitempty"`
}

// ErrorDetail is the payload of an inbound error envelope.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// Envelope is a structured message exchanged over the data channel.
type Envelope struct {
	Kind       Kind           `json:"type"`
	Item       *Item          `json:"item,omitempty"`
	Session    *SessionConfig `json:"session,omitempty"`
	Delta      string         `json:"delta,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Error      *ErrorDetail   `json:"error,omitempty"`
}

// NewItem builds a conversation item envelope for the given role and text.
func NewItem(role Role, text string) *Envelope {
	return &Envelope{
		Kind: KindItemCreate,
		Item: &Item{
			Type:    "message",
			Role:    role,
			Content: []ContentBlock{{Type: contentTypeFor(role), Text: text}},
		},
	}
}

// NewResponse builds a response.create envelope, requesting inference.
func NewResponse() *Envelope {
	return &Envelope{Kind: KindResponseCreate}
}

// NewSessionUpdate builds a session.update envelope.
func NewSessionUpdate(cfg SessionConfig) *Envelope {
	return &Envelope{Kind: KindSessionUpdate, Session: &cfg}
}

// contentTypeFor returns the block type the endpoint expects for a role.
func contentTypeFor(role Role) string {
	if role == RoleAssistant {
		return ContentText
	}
	return ContentInputText
}

// Normalize corrects role/content-type mismatches in place and reports
// whether anything was corrected. Mismatched blocks are corrected rather
// than rejected.
func (e *Envelope) Normalize() bool {
	if e.Kind != KindItemCreate || e.Item == nil {
		return false
	}
	want := contentTypeFor(e.Item.Role)
	corrected := false
	for i := range e.Item.Content {
		if e.Item.Content[i].Type != want {
			e.Item.Content[i].Type = want
			corrected = true
		}
	}
	return corrected
}

// Validate checks the envelope has the fields its kind requires.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindItemCreate:
		if e.Item == nil {
			return fmt.Errorf("envelope: %s requires an item", e.Kind)
		}
		if len(e.Item.Content) == 0 {
			return fmt.Errorf("envelope: %s requires content", e.Kind)
		}
	case KindSessionUpdate:
		if e.Session == nil {
			return fmt.Errorf("envelope: %s requires a session payload", e.Kind)
		}
	case KindResponseCreate:
		// No payload.
	default:
		return fmt.Errorf("envelope: %q is not an outbound kind", e.Kind)
	}
	return nil
}

// Marshal normalizes and encodes the envelope for transmission.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	e.Normalize()
	return json.Marshal(e)
}

// Parse decodes an inbound wire message. Unknown kinds parse successfully
// but report Known() == false, so callers can skip them.
func Parse(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("envelope: parse failed: %w", err)
	}
	return &e, nil
}

// Known reports whether the envelope kind is one this codec dispatches.
func (e *Envelope) Known() bool {
	switch e.Kind {
	case KindItemCreate, KindResponseCreate, KindSessionUpdate,
		KindSessionCreated, KindSessionUpdated, KindItemCreated,
		KindTranscriptDelta, KindTranscriptDone, KindInputTranscript,
		KindError:
		return true
	}
	return false
}

// IsContentTypeError reports whether an inbound error envelope complains
// about a role/content-type mismatch. These are recoverable: the sender
// corrects future tagging instead of disconnecting.
func (e *Envelope) IsContentTypeError() bool {
	if e.Kind != KindError || e.Error == nil {
		return false
	}
	if strings.Contains(e.Error.Param, "content") {
		return true
	}
	msg := strings.ToLower(e.Error.Message)
	return strings.Contains(msg, ContentInputText) ||
		strings.Contains(msg, "content type") ||
		strings.Contains(msg, "content[0].type")
}
