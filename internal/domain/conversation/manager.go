package conversation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/utils/idgen"
)

// Manager owns the per-conversation state map. All operations are pure
// in-memory mutations; missing conversation state is created lazily, never
// reported as an error.
//
// The manager never cancels streams itself. SwitchAgent only certifies that
// resumption is no longer valid for the old session; aborting the in-flight
// stream is the caller's job before invoking it.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*State
	log    zerolog.Logger
}

// NewManager creates an empty conversation manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		states: make(map[string]*State),
		log:    log.With().Str("component", "conversation-manager").Logger(),
	}
}

func (m *Manager) stateLocked(chatID string) *State {
	st, ok := m.states[chatID]
	if !ok {
		st = newState(chatID)
		m.states[chatID] = st
	}
	return st
}

// CurrentSessionID returns the session bound to responderID for this
// conversation, minting it deterministically from (userID, responderID) if
// none exists so a reconnecting client lands on the same identifier.
func (m *Manager) CurrentSessionID(chatID, responderID, userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(chatID)
	if sess := st.sessionForAgent(responderID); sess != nil {
		return sess.ID
	}

	sess := &Session{
		ID:           idgen.DeriveSessionID(userID, responderID),
		AgentID:      responderID,
		LastActivity: time.Now(),
	}
	st.Sessions[sess.ID] = sess

	if st.CurrentAgentID == "" {
		st.CurrentSessionID = sess.ID
		st.CurrentAgentID = responderID
	}

	m.log.Debug().
		Str("chat_id", chatID).
		Str("session_id", sess.ID).
		Str("responder_id", responderID).
		Msg("session minted")

	return sess.ID
}

// SwitchAgent makes newResponderID the addressed responder. An existing
// session for that responder is reused with its message count intact;
// otherwise one is minted. Status passes through switching and lands on
// idle.
func (m *Manager) SwitchAgent(chatID, newResponderID, userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(chatID)
	st.Status = StatusSwitching

	sess := st.sessionForAgent(newResponderID)
	if sess == nil {
		sess = &Session{
			ID:      idgen.DeriveSessionID(userID, newResponderID),
			AgentID: newResponderID,
		}
		st.Sessions[sess.ID] = sess
	}
	sess.LastActivity = time.Now()

	st.CurrentSessionID = sess.ID
	st.CurrentAgentID = newResponderID
	st.Status = StatusIdle

	m.log.Info().
		Str("chat_id", chatID).
		Str("session_id", sess.ID).
		Str("responder_id", newResponderID).
		Int("message_count", sess.MessageCount).
		Msg("responder switched")

	return sess.ID
}

// CanResumeStream reports whether reattaching to a held stream is still
// valid: the conversation must not be mid-switch, the session must still be
// current, and the responder must still be the one the session is bound to.
// The triple check stops resumption of a stream the user navigated away
// from.
func (m *Manager) CanResumeStream(chatID, sessionID, currentResponderID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[chatID]
	if !ok {
		return false
	}
	if st.Status == StatusSwitching {
		return false
	}
	if st.CurrentSessionID != sessionID {
		return false
	}
	sess, ok := st.Sessions[sessionID]
	if !ok {
		return false
	}
	return sess.AgentID == currentResponderID
}

// UpdateStatus transitions the conversation status, enforcing the
// transition table.
func (m *Manager) UpdateStatus(chatID string, target Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(chatID)
	next, err := st.Status.TransitionTo(target)
	if err != nil {
		m.log.Warn().
			Str("chat_id", chatID).
			Str("from", st.Status.String()).
			Str("to", target.String()).
			Msg("rejected status transition")
		return err
	}
	st.Status = next
	return nil
}

// Status returns the current stream lifecycle status for a conversation.
func (m *Manager) Status(chatID string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[chatID]
	if !ok {
		return StatusIdle
	}
	return st.Status
}

// UpdateSession records activity on a session: the trailing message ID and
// a message count delta. LastActivity is always refreshed.
func (m *Manager) UpdateSession(chatID, sessionID, lastMessageID string, countDelta int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(chatID)
	sess, ok := st.Sessions[sessionID]
	if !ok {
		return
	}
	if lastMessageID != "" {
		sess.LastMessageID = lastMessageID
	}
	sess.MessageCount += countDelta
	sess.LastActivity = time.Now()
}

// StateOf returns a deep copy of the conversation state for read access.
func (m *Manager) StateOf(chatID string) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[chatID]
	if !ok {
		return newState(chatID)
	}
	return st.clone()
}

// Reset tears down the in-memory state for a conversation. Called when the
// rendering layer closes the conversation view.
func (m *Manager) Reset(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, chatID)
}
