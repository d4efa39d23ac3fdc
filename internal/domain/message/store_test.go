package message_test

import (
	"testing"

	"jan-server/services/chat-client/internal/domain/message"
)

func textMsg(id string, role message.Role, text string) *message.Message {
	return &message.Message{
		ID:    id,
		Role:  role,
		Parts: []message.Part{{Kind: message.PartText, Text: text}},
	}
}

func TestStore_UpsertKeepsFirstAppearanceOrder(t *testing.T) {
	s := message.NewStore()

	for _, m := range []*message.Message{
		textMsg("a", message.RoleUser, "one"),
		textMsg("b", message.RoleAssistant, "two"),
		textMsg("a", message.RoleUser, "one-updated"),
	} {
		if err := s.Upsert(m); err != nil {
			t.Fatalf("Upsert(%s) returned %v", m.ID, err)
		}
	}

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("store has %d messages, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", got[0].ID, got[1].ID)
	}
	if got[0].PrimaryText() != "one-updated" {
		t.Errorf("message a text = %q, want last applied value", got[0].PrimaryText())
	}
}

func TestStore_EmptyMessagePolicy(t *testing.T) {
	tests := []struct {
		name    string
		msg     *message.Message
		wantErr error
	}{
		{"empty assistant rejected", &message.Message{ID: "m1", Role: message.RoleAssistant}, message.ErrEmptyMessage},
		{"empty system rejected", &message.Message{ID: "m2", Role: message.RoleSystem}, message.ErrEmptyMessage},
		{"empty user kept as placeholder", &message.Message{ID: "m3", Role: message.RoleUser}, nil},
		{"assistant with text kept", textMsg("m4", message.RoleAssistant, "hi"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := message.NewStore()
			if err := s.Upsert(tt.msg); err != tt.wantErr {
				t.Errorf("Upsert() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_Remove(t *testing.T) {
	s := message.NewStore()
	_ = s.Upsert(textMsg("a", message.RoleUser, "one"))
	_ = s.Upsert(textMsg("b", message.RoleUser, "two"))

	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove() returned %v", err)
	}
	if err := s.Remove("a"); err != message.ErrMessageNotFound {
		t.Errorf("second Remove() = %v, want ErrMessageNotFound", err)
	}
	if s.Len() != 1 || s.LastID() != "b" {
		t.Errorf("store = %d messages ending %q, want 1 ending b", s.Len(), s.LastID())
	}
}

func TestStore_InsertBefore(t *testing.T) {
	s := message.NewStore()
	_ = s.Upsert(textMsg("a", message.RoleUser, "one"))
	_ = s.Upsert(textMsg("c", message.RoleAssistant, "three"))

	s.InsertBefore("c", textMsg("b", message.RoleAssistant, "two"))

	got := s.List()
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		ids := make([]string, 0, len(got))
		for _, m := range got {
			ids = append(ids, m.ID)
		}
		t.Errorf("order = %v, want [a b c]", ids)
	}

	// Missing anchor appends at the end.
	s.InsertBefore("missing", textMsg("d", message.RoleUser, "four"))
	if s.LastID() != "d" {
		t.Errorf("LastID() = %q, want d", s.LastID())
	}
}

func TestDedupeMessages(t *testing.T) {
	in := []*message.Message{
		textMsg("a", message.RoleUser, "first"),
		textMsg("b", message.RoleAssistant, "middle"),
		textMsg("a", message.RoleUser, "last"),
	}

	out := message.DedupeMessages(in)
	if len(out) != 2 {
		t.Fatalf("deduped to %d messages, want 2", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", out[0].ID, out[1].ID)
	}
	if out[0].PrimaryText() != "last" {
		t.Errorf("surviving value = %q, want last occurrence", out[0].PrimaryText())
	}
}

func TestStore_Seed(t *testing.T) {
	s := message.NewStore()
	_ = s.Upsert(textMsg("old", message.RoleUser, "stale"))

	s.Seed([]*message.Message{
		textMsg("a", message.RoleUser, "hi"),
		textMsg("a", message.RoleUser, "hi-final"),
		textMsg("b", message.RoleAssistant, "hello"),
	})

	if s.Has("old") {
		t.Error("Seed() should replace previous contents")
	}
	got := s.List()
	if len(got) != 2 || got[0].PrimaryText() != "hi-final" {
		t.Errorf("seeded store = %d messages, first text %q", len(got), got[0].PrimaryText())
	}
}

func TestStore_ListReturnsClones(t *testing.T) {
	s := message.NewStore()
	_ = s.Upsert(textMsg("a", message.RoleUser, "original"))

	got := s.List()
	got[0].Parts[0].Text = "mutated"

	fresh, _ := s.Get("a")
	if fresh.PrimaryText() != "original" {
		t.Error("mutating a List() result leaked into the store")
	}
}
