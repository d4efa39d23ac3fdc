package message_test

import (
	"testing"
	"time"

	"jan-server/services/chat-client/internal/domain/message"
)

func TestMetadata_MergeCreatedAt(t *testing.T) {
	placeholder := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	server := time.Date(2025, 6, 1, 10, 0, 2, 0, time.UTC)
	later := time.Date(2025, 6, 1, 10, 0, 9, 0, time.UTC)

	tests := []struct {
		name       string
		initial    message.Metadata
		patch      message.Metadata
		want       time.Time
		wantServer bool
	}{
		{
			name:       "first writer wins when unset",
			patch:      message.Metadata{CreatedAt: placeholder},
			want:       placeholder,
			wantServer: false,
		},
		{
			name:       "server timestamp replaces local placeholder",
			initial:    message.Metadata{CreatedAt: placeholder},
			patch:      message.Metadata{CreatedAt: server, ServerTimestamped: true},
			want:       server,
			wantServer: true,
		},
		{
			name:       "server timestamp is immutable",
			initial:    message.Metadata{CreatedAt: server, ServerTimestamped: true},
			patch:      message.Metadata{CreatedAt: later, ServerTimestamped: true},
			want:       server,
			wantServer: true,
		},
		{
			name:       "local placeholder never overwrites local value",
			initial:    message.Metadata{CreatedAt: placeholder},
			patch:      message.Metadata{CreatedAt: later},
			want:       placeholder,
			wantServer: false,
		},
		{
			name:       "zero patch preserves existing",
			initial:    message.Metadata{CreatedAt: server, ServerTimestamped: true},
			patch:      message.Metadata{},
			want:       server,
			wantServer: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := tt.initial
			md.Merge(tt.patch)
			if !md.CreatedAt.Equal(tt.want) {
				t.Errorf("CreatedAt = %v, want %v", md.CreatedAt, tt.want)
			}
			if md.ServerTimestamped != tt.wantServer {
				t.Errorf("ServerTimestamped = %v, want %v", md.ServerTimestamped, tt.wantServer)
			}
		})
	}
}

func TestMetadata_MergeIsAdditive(t *testing.T) {
	md := message.Metadata{SenderID: "u1", Extra: map[string]string{"k": "v"}}
	md.Merge(message.Metadata{
		SenderID:      "other",
		SenderName:    "Alice",
		ResponderUsed: "agentX",
		Extra:         map[string]string{"k": "clobber", "k2": "v2"},
	})

	if md.SenderID != "u1" {
		t.Errorf("SenderID = %q, populated fields must be kept", md.SenderID)
	}
	if md.SenderName != "Alice" || md.ResponderUsed != "agentX" {
		t.Errorf("empty fields should be filled: %+v", md)
	}
	if md.Extra["k"] != "v" || md.Extra["k2"] != "v2" {
		t.Errorf("Extra merge = %v, want first-write-wins per key", md.Extra)
	}
}

func TestMessage_AppendText(t *testing.T) {
	m := &message.Message{ID: "m1", Role: message.RoleAssistant}
	m.AppendText("Hel")
	m.AppendText("lo")
	if m.PrimaryText() != "Hello" {
		t.Errorf("PrimaryText() = %q, want Hello", m.PrimaryText())
	}
	if len(m.Parts) != 1 {
		t.Errorf("deltas should extend the trailing text part, got %d parts", len(m.Parts))
	}
}

func TestMessage_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		msg  message.Message
		want bool
	}{
		{"no parts", message.Message{}, true},
		{"blank text part", message.Message{Parts: []message.Part{{Kind: message.PartText}}}, true},
		{"text", message.Message{Parts: []message.Part{{Kind: message.PartText, Text: "x"}}}, false},
		{"file", message.Message{Parts: []message.Part{{Kind: message.PartFile, FileURL: "u"}}}, false},
		{"reasoning", message.Message{Parts: []message.Part{{Kind: message.PartReasoning, Reasoning: "r"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}
