package message_test

import (
	"testing"

	"jan-server/services/chat-client/internal/domain/message"
)

func pushStyleMsg(id, sender, receiver, text string) *message.Message {
	m := &message.Message{
		ID:   id,
		Role: message.RoleUser,
		Metadata: message.Metadata{
			SenderID:   sender,
			ReceiverID: receiver,
		},
	}
	if text != "" {
		m.Parts = []message.Part{{Kind: message.PartText, Text: text}}
	}
	return m
}

func TestFingerprint_SameLogicalMessage(t *testing.T) {
	a := pushStyleMsg("local-1", "u1", "u2", "hi")
	b := pushStyleMsg("push-9", "u1", "u2", "hi")

	if message.FingerprintOf(a) != message.FingerprintOf(b) {
		t.Error("same logical message under different IDs should share a fingerprint")
	}
}

func TestFingerprint_EmptyFieldsCompareEqual(t *testing.T) {
	// Two messages with no text must match on the text field rather than
	// both comparing unequal to everything.
	a := pushStyleMsg("x", "u1", "u2", "")
	b := pushStyleMsg("y", "u1", "u2", "")
	a.Parts = []message.Part{{Kind: message.PartFile, FileURL: "https://f/1.png"}}
	b.Parts = []message.Part{{Kind: message.PartFile, FileURL: "https://f/1.png"}}

	if message.FingerprintOf(a) != message.FingerprintOf(b) {
		t.Error("empty text fields should normalize to the same sentinel")
	}
}

func TestFingerprint_Differs(t *testing.T) {
	tests := []struct {
		name string
		a, b *message.Message
	}{
		{"different sender", pushStyleMsg("1", "u1", "u2", "hi"), pushStyleMsg("2", "u9", "u2", "hi")},
		{"different receiver", pushStyleMsg("1", "u1", "u2", "hi"), pushStyleMsg("2", "u1", "u9", "hi")},
		{"different text", pushStyleMsg("1", "u1", "u2", "hi"), pushStyleMsg("2", "u1", "u2", "bye")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if message.FingerprintOf(tt.a) == message.FingerprintOf(tt.b) {
				t.Error("fingerprints should differ")
			}
		})
	}
}

func TestStore_FindByFingerprint(t *testing.T) {
	s := message.NewStore()
	orig := pushStyleMsg("local-1", "u1", "u2", "hi")
	if err := s.Upsert(orig); err != nil {
		t.Fatalf("Upsert() returned %v", err)
	}

	echo := pushStyleMsg("push-9", "u1", "u2", "hi")
	found := s.FindByFingerprint(message.FingerprintOf(echo))
	if found == nil || found.ID != "local-1" {
		t.Errorf("FindByFingerprint() = %v, want the optimistic original", found)
	}

	other := pushStyleMsg("push-10", "u3", "u2", "hi")
	if got := s.FindByFingerprint(message.FingerprintOf(other)); got != nil {
		t.Errorf("FindByFingerprint() = %v, want nil for a new sender", got)
	}
}
