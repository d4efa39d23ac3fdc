package chat

import (
	"context"

	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/domain/reconcile"
)

// SendRequest is the outbound chat request payload.
type SendRequest struct {
	ConversationID             string `json:"conversation_id"`
	Message                    string `json:"message"`
	ResponderID                string `json:"responder_id"`
	ExpectedAssistantMessageID string `json:"expected_assistant_message_id"`
}

// EventStream yields decoded events from an open token stream.
type EventStream interface {
	// Recv returns the next event, or io.EOF at stream end.
	Recv() (reconcile.StreamEvent, error)
	// ResumeToken returns the server-issued token for reattaching.
	ResumeToken() string
	Close() error
}

// StreamAPI is the chat streaming endpoint.
type StreamAPI interface {
	// Probe is the online/offline signal consulted before retrying a send.
	Probe(ctx context.Context) error
	Open(ctx context.Context, req SendRequest) (EventStream, error)
	// Resume reattaches to a held stream; returns streamapi.ErrResumeInvalid
	// when the token is unknown or the stream completed server-side.
	Resume(ctx context.Context, token string) (EventStream, error)
}

// PushSource delivers out-of-band events over typed channels, one per kind.
type PushSource interface {
	Messages() <-chan reconcile.PushEvent
	FileProgress() <-chan reconcile.FileProgressEvent
}

// PersistenceAPI is the persistence collaborator: fallback history source
// and fire-and-forget sink.
type PersistenceAPI interface {
	ListMessages(ctx context.Context, conversationID string) ([]*message.Message, error)
	SaveMessage(ctx context.Context, msg *message.Message) error
}
