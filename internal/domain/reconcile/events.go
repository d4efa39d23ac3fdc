package reconcile

import (
	"time"

	"jan-server/services/chat-client/internal/domain/message"
)

// EventKind identifies the type of an inbound event.
type EventKind string

const (
	// KindTokenDelta is an incremental text payload for the trailing message.
	KindTokenDelta EventKind = "token-delta"
	// KindUsage updates the side-channel usage counters.
	KindUsage EventKind = "usage"
	// KindPersisted is a durable confirmation carrying canonical content.
	KindPersisted EventKind = "persisted"
	// KindAppendMetadata is a metadata-only patch for an existing message.
	KindAppendMetadata EventKind = "append-metadata"
)

// Usage is the side-channel token accounting, not part of the message
// sequence.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent is one decoded event from the chat streaming endpoint. The
// wire decoding lives in the streamapi client; the reconciler only sees
// typed events.
type StreamEvent struct {
	Kind      EventKind
	MessageID string
	Role      message.Role
	Delta     string
	Usage     Usage
	Parts     []message.Part
	Metadata  message.Metadata
}

// PushEvent is one decoded message from the out-of-band push channel,
// originated by another user or a background job.
type PushEvent struct {
	SenderID          string
	SenderName        string
	ReceiverID        string
	ReceiverName      string
	Content           string
	FileAttachment    string
	CommunicationType message.CommunicationType
	CreatedAt         time.Time
}

// FileProgressEvent reports upload progress for a file travelling over the
// push channel. Upload mechanics are external; the client only surfaces
// these.
type FileProgressEvent struct {
	FileName string
	Percent  int
}
