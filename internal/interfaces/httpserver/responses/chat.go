package responses

import (
	"jan-server/services/chat-client/internal/domain/chat"
	"jan-server/services/chat-client/internal/domain/conversation"
	"jan-server/services/chat-client/internal/domain/message"
)

// SendResponse acknowledges an accepted send with the IDs the optimistic
// insertion used.
type SendResponse struct {
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
	SessionID          string `json:"session_id"`
}

// NewSendResponse builds a SendResponse from a receipt.
func NewSendResponse(receipt *chat.SendReceipt) SendResponse {
	return SendResponse{
		UserMessageID:      receipt.UserMessageID,
		AssistantMessageID: receipt.AssistantMessageID,
		SessionID:          receipt.SessionID,
	}
}

// MessagesResponse is the ordered rendering sequence for one conversation.
type MessagesResponse struct {
	Messages []*message.Message `json:"messages"`
	Count    int                `json:"count"`
}

// NewMessagesResponse builds a MessagesResponse.
func NewMessagesResponse(msgs []*message.Message) MessagesResponse {
	return MessagesResponse{Messages: msgs, Count: len(msgs)}
}

// StatusResponse is the control-surface view of one conversation.
type StatusResponse struct {
	Status    string    `json:"status"`
	Usage     UsageView `json:"usage"`
	LastError string    `json:"last_error,omitempty"`
}

// UsageView is the token accounting exposed on the status endpoint.
type UsageView struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewStatusResponse builds a StatusResponse.
func NewStatusResponse(info chat.StatusInfo) StatusResponse {
	return StatusResponse{
		Status: info.Status.String(),
		Usage: UsageView{
			InputTokens:  info.Usage.InputTokens,
			OutputTokens: info.Usage.OutputTokens,
		},
		LastError: info.LastError,
	}
}

// SwitchResponse reports the session now bound to the conversation.
type SwitchResponse struct {
	SessionID   string `json:"session_id"`
	ResponderID string `json:"responder_id"`
}

// SessionsResponse exposes the conversation session state for inspection.
type SessionsResponse struct {
	ChatID           string                  `json:"chat_id"`
	CurrentSessionID string                  `json:"current_session_id"`
	CurrentAgentID   string                  `json:"current_agent_id"`
	Status           string                  `json:"status"`
	Sessions         []*conversation.Session `json:"sessions"`
}

// NewSessionsResponse builds a SessionsResponse from conversation state.
func NewSessionsResponse(st *conversation.State) SessionsResponse {
	sessions := make([]*conversation.Session, 0, len(st.Sessions))
	for _, sess := range st.Sessions {
		sessions = append(sessions, sess)
	}
	return SessionsResponse{
		ChatID:           st.ChatID,
		CurrentSessionID: st.CurrentSessionID,
		CurrentAgentID:   st.CurrentAgentID,
		Status:           st.Status.String(),
		Sessions:         sessions,
	}
}
