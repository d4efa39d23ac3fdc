package handlers

import (
	"context"

	"jan-server/services/chat-client/internal/domain/chat"
	"jan-server/services/chat-client/internal/domain/conversation"
	"jan-server/services/chat-client/internal/domain/message"
)

// Service is the conversation control surface the handlers expose over
// HTTP. *chat.Controller satisfies it.
type Service interface {
	Send(ctx context.Context, chatID, text, responderID string) (*chat.SendReceipt, error)
	Retry(chatID string) (*chat.SendReceipt, error)
	Stop(chatID string)
	SwitchResponder(chatID, newResponderID string) string
	Resume(ctx context.Context, chatID string) error
	Messages(chatID string) []*message.Message
	Status(chatID string) chat.StatusInfo
	Sessions(chatID string) *conversation.State
	Close(chatID string)
}

// ChatHandler handles conversation-related HTTP requests.
type ChatHandler struct {
	service Service
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(service Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// Send issues a message to a responder.
func (h *ChatHandler) Send(ctx context.Context, chatID, text, responderID string) (*chat.SendReceipt, error) {
	return h.service.Send(ctx, chatID, text, responderID)
}

// Retry re-issues the last failed send.
func (h *ChatHandler) Retry(chatID string) (*chat.SendReceipt, error) {
	return h.service.Retry(chatID)
}

// Stop aborts the in-flight stream.
func (h *ChatHandler) Stop(chatID string) {
	h.service.Stop(chatID)
}

// SwitchResponder rebinds the conversation to another responder.
func (h *ChatHandler) SwitchResponder(chatID, responderID string) string {
	return h.service.SwitchResponder(chatID, responderID)
}

// Resume reattaches to an interrupted stream or seeds canonical history.
func (h *ChatHandler) Resume(ctx context.Context, chatID string) error {
	return h.service.Resume(ctx, chatID)
}

// Messages returns the ordered rendering sequence.
func (h *ChatHandler) Messages(chatID string) []*message.Message {
	return h.service.Messages(chatID)
}

// Status returns the conversation status view.
func (h *ChatHandler) Status(chatID string) chat.StatusInfo {
	return h.service.Status(chatID)
}

// Sessions returns the conversation session state.
func (h *ChatHandler) Sessions(chatID string) *conversation.State {
	return h.service.Sessions(chatID)
}

// Close tears down a conversation.
func (h *ChatHandler) Close(chatID string) {
	h.service.Close(chatID)
}
