package conversation

import "time"

// Session binds a conversation to one responder. Sessions are retained when
// the user switches away so that switching back preserves history
// continuity per responder.
type Session struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	LastActivity  time.Time `json:"last_activity"`
	MessageCount  int       `json:"message_count"`
}

// State is the in-memory lifecycle record of one open conversation. It is
// created lazily on first interaction and torn down when the conversation
// view closes; nothing here is durable.
type State struct {
	ChatID           string              `json:"chat_id"`
	CurrentSessionID string              `json:"current_session_id,omitempty"`
	CurrentAgentID   string              `json:"current_agent_id,omitempty"`
	Sessions         map[string]*Session `json:"sessions"`
	Status           Status              `json:"status"`
}

func newState(chatID string) *State {
	return &State{
		ChatID:   chatID,
		Sessions: make(map[string]*Session),
		Status:   StatusIdle,
	}
}

// sessionForAgent returns the retained session bound to agentID, or nil.
func (st *State) sessionForAgent(agentID string) *Session {
	for _, sess := range st.Sessions {
		if sess.AgentID == agentID {
			return sess
		}
	}
	return nil
}

// clone returns a deep copy safe to hand outside the manager lock.
func (st *State) clone() *State {
	out := &State{
		ChatID:           st.ChatID,
		CurrentSessionID: st.CurrentSessionID,
		CurrentAgentID:   st.CurrentAgentID,
		Sessions:         make(map[string]*Session, len(st.Sessions)),
		Status:           st.Status,
	}
	for id, sess := range st.Sessions {
		copied := *sess
		out.Sessions[id] = &copied
	}
	return out
}
