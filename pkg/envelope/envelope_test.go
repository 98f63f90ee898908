package envelope

import (
	"encoding/json"
	"testing"
)

func TestNewItemContentTypes(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		wantType string
	}{
		{name: "user items use input_text", role: RoleUser, wantType: ContentInputText},
		{name: "system items use input_text", role: RoleSystem, wantType: ContentInputText},
		{name: "assistant items use text", role: RoleAssistant, wantType: ContentText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewItem(tt.role, "hello")
			if e.Kind != KindItemCreate {
				t.Errorf("Kind = %v, want %v", e.Kind, KindItemCreate)
			}
			if got := e.Item.Content[0].Type; got != tt.wantType {
				t.Errorf("content type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestNormalizeCorrectsMismatch(t *testing.T) {
	tests := []struct {
		name      string
		role      Role
		given     string
		want      string
		corrected bool
	}{
		{name: "system with text corrected", role: RoleSystem, given: ContentText, want: ContentInputText, corrected: true},
		{name: "user with text corrected", role: RoleUser, given: ContentText, want: ContentInputText, corrected: true},
		{name: "assistant with input_text corrected", role: RoleAssistant, given: ContentInputText, want: ContentText, corrected: true},
		{name: "already correct untouched", role: RoleUser, given: ContentInputText, want: ContentInputText, corrected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Envelope{
				Kind: KindItemCreate,
				Item: &Item{
					Type:    "message",
					Role:    tt.role,
					Content: []ContentBlock{{Type: tt.given, Text: "hi"}},
				},
			}
			if got := e.Normalize(); got != tt.corrected {
				t.Errorf("Normalize() = %v, want %v", got, tt.corrected)
			}
			if got := e.Item.Content[0].Type; got != tt.want {
				t.Errorf("content type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMarshalAppliesCorrection(t *testing.T) {
	e := &Envelope{
		Kind: KindItemCreate,
		Item: &Item{
			Type:    "message",
			Role:    RoleSystem,
			Content: []ContentBlock{{Type: ContentText, Text: "hi"}},
		},
	}

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var wire struct {
		Type string `json:"type"`
		Item struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"item"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal wire form: %v", err)
	}

	if wire.Type != string(KindItemCreate) {
		t.Errorf("wire type = %q, want %q", wire.Type, KindItemCreate)
	}
	if wire.Item.Content[0].Type != ContentInputText {
		t.Errorf("wire content type = %q, want %q", wire.Item.Content[0].Type, ContentInputText)
	}
	if wire.Item.Content[0].Text != "hi" {
		t.Errorf("wire text = %q, want %q", wire.Item.Content[0].Text, "hi")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		e       *Envelope
		wantErr bool
	}{
		{name: "response.create needs nothing", e: NewResponse(), wantErr: false},
		{name: "item without payload", e: &Envelope{Kind: KindItemCreate}, wantErr: true},
		{name: "item without content", e: &Envelope{Kind: KindItemCreate, Item: &Item{Type: "message", Role: RoleUser}}, wantErr: true},
		{name: "session.update without payload", e: &Envelope{Kind: KindSessionUpdate}, wantErr: true},
		{name: "inbound kind is not outbound", e: &Envelope{Kind: KindTranscriptDelta}, wantErr: true},
		{name: "valid session.update", e: NewSessionUpdate(SessionConfig{Instructions: "talk"}), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.e.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseInbound(t *testing.T) {
	data := []byte(`{"type":"response.audio_transcript.delta","delta":"nice rally"}`)

	e, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if e.Kind != KindTranscriptDelta {
		t.Errorf("Kind = %v, want %v", e.Kind, KindTranscriptDelta)
	}
	if e.Delta != "nice rally" {
		t.Errorf("Delta = %q, want %q", e.Delta, "nice rally")
	}
	if !e.Known() {
		t.Error("transcript delta should be a known kind")
	}
}

func TestParseUnknownKind(t *testing.T) {
	e, err := Parse([]byte(`{"type":"rate_limits.updated","rate_limits":[]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if e.Known() {
		t.Error("unknown kind should not be Known")
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("Parse() should fail on malformed input")
	}
}

func TestIsContentTypeError(t *testing.T) {
	tests := []struct {
		name string
		e    *Envelope
		want bool
	}{
		{
			name: "param names content",
			e:    &Envelope{Kind: KindError, Error: &ErrorDetail{Param: "item.content[0].type"}},
			want: true,
		},
		{
			name: "message names input_text",
			e:    &Envelope{Kind: KindError, Error: &ErrorDetail{Message: "Invalid value: expected 'input_text'"}},
			want: true,
		},
		{
			name: "unrelated error",
			e:    &Envelope{Kind: KindError, Error: &ErrorDetail{Code: "session_expired", Message: "session expired"}},
			want: false,
		},
		{
			name: "not an error envelope",
			e:    NewResponse(),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.IsContentTypeError(); got != tt.want {
				t.Errorf("IsContentTypeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
