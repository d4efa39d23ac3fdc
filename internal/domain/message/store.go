package message

import (
	"errors"
	"sync"
)

var (
	// ErrMessageNotFound is returned when a message ID is not in the store.
	ErrMessageNotFound = errors.New("message not found")
	// ErrEmptyMessage is returned when a non-user message with no content
	// bearing parts is upserted. Empty user messages are kept: an empty
	// user message can represent a send in progress, not an error.
	ErrEmptyMessage = errors.New("empty message rejected")
)

// Store is a mutex-guarded, ordered, ID-keyed message collection. It is the
// single source of truth for rendering one conversation.
//
// Mutations are expected to come from a single reconciler goroutine; the
// RWMutex exists so the HTTP layer can read concurrently. List and Snapshot
// return clones, Get returns the live pointer for the mutation path.
type Store struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Message
}

// NewStore creates an empty message store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Message)}
}

// Upsert inserts or replaces the message with the same ID. Order is the
// insertion order of first appearance; replacing never reorders.
func (s *Store) Upsert(m *Message) error {
	if m.Role != RoleUser && m.IsEmpty() {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.byID[m.ID] = m
	return nil
}

// Get retrieves the live message by ID.
func (s *Store) Get(id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

// Update runs fn on the live message under the write lock. This is the
// mutation path for streaming deltas and metadata merges; it keeps content
// changes atomic with respect to concurrent List readers.
func (s *Store) Update(id string, fn func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return ErrMessageNotFound
	}
	fn(m)
	return nil
}

// Has reports whether a message with the given ID is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Remove deletes a message by ID.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrMessageNotFound
	}
	delete(s.byID, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// InsertBefore places m immediately before the message with anchorID. If the
// anchor is absent the message is appended at the end. Used by the snapshot
// reconciliation path to restore lost history at its original position.
func (s *Store) InsertBefore(anchorID string, m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[m.ID]; ok {
		return
	}
	s.byID[m.ID] = m

	for i, oid := range s.order {
		if oid == anchorID {
			s.order = append(s.order[:i], append([]string{m.ID}, s.order[i:]...)...)
			return
		}
	}
	s.order = append(s.order, m.ID)
}

// List returns the ordered sequence as clones.
func (s *Store) List() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, 0, len(s.order))
	for _, id := range s.order {
		if m, ok := s.byID[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// LastID returns the ID of the trailing message, or "".
func (s *Store) LastID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return ""
	}
	return s.order[len(s.order)-1]
}

// FindByFingerprint returns the first stored message whose fingerprint
// matches key, or nil. Used to detect push-channel echoes arriving under a
// different ID than the locally optimistic message.
func (s *Store) FindByFingerprint(key Fingerprint) *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		m, ok := s.byID[id]
		if !ok {
			continue
		}
		if FingerprintOf(m) == key {
			return m
		}
	}
	return nil
}

// Seed replaces the store contents with the given sequence, collapsing
// duplicate IDs via DedupeMessages. Used when falling back to canonical
// history after a failed stream resumption.
func (s *Store) Seed(msgs []*Message) {
	deduped := DedupeMessages(msgs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.byID = make(map[string]*Message, len(deduped))
	for _, m := range deduped {
		s.order = append(s.order, m.ID)
		s.byID[m.ID] = m
	}
}

// Snapshot returns a cloned copy of the ordered sequence.
func (s *Store) Snapshot() []*Message {
	return s.List()
}

// DedupeMessages collapses a sequence by ID: the surviving entry carries the
// value of the last occurrence at the position of the first. This is the
// last-write-wins rule that folds a retried or re-streamed message into one
// entry.
func DedupeMessages(msgs []*Message) []*Message {
	last := make(map[string]*Message, len(msgs))
	for _, m := range msgs {
		last[m.ID] = m
	}

	out := make([]*Message, 0, len(last))
	seen := make(map[string]bool, len(last))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, last[m.ID])
	}
	return out
}
