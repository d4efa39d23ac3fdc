package message

import (
	"encoding/json"
	"time"
)

// Role identifies the author class of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind identifies the type of a content fragment.
type PartKind string

const (
	PartText      PartKind = "text"
	PartFile      PartKind = "file"
	PartReasoning PartKind = "reasoning"
	PartTool      PartKind = "tool"
)

// CommunicationType distinguishes responder-addressed traffic from
// peer-to-peer traffic.
type CommunicationType string

const (
	CommDirect CommunicationType = "direct"
	CommPeer   CommunicationType = "peer"
)

// Part is one typed content fragment. Part order within a message is
// semantically significant and must be preserved.
type Part struct {
	Kind      PartKind        `json:"kind"`
	Text      string          `json:"text,omitempty"`
	FileURL   string          `json:"file_url,omitempty"`
	FileName  string          `json:"file_name,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// Metadata carries the per-message envelope fields.
//
// CreatedAt follows first-writer-wins, with one refinement: a server
// supplied timestamp always replaces a locally generated placeholder.
// ServerTimestamped records which kind the current value is.
type Metadata struct {
	CreatedAt         time.Time         `json:"created_at,omitempty"`
	ServerTimestamped bool              `json:"-"`
	SenderID          string            `json:"sender_id,omitempty"`
	SenderName        string            `json:"sender_name,omitempty"`
	ReceiverID        string            `json:"receiver_id,omitempty"`
	ReceiverName      string            `json:"receiver_name,omitempty"`
	CommunicationType CommunicationType `json:"communication_type,omitempty"`
	ResponderUsed     string            `json:"responder_used,omitempty"`
	OriginalMessageID string            `json:"original_message_id,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// Message is one entry in the conversation sequence. IDs are unique within
// a store; they may be client generated (optimistic) or server confirmed.
type Message struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Parts    []Part   `json:"parts"`
	Metadata Metadata `json:"metadata"`
}

// PrimaryText returns the text of the first text part, or "".
func (m *Message) PrimaryText() string {
	for _, p := range m.Parts {
		if p.Kind == PartText {
			return p.Text
		}
	}
	return ""
}

// PrimaryFileURL returns the URL of the first file part, or "".
func (m *Message) PrimaryFileURL() string {
	for _, p := range m.Parts {
		if p.Kind == PartFile {
			return p.FileURL
		}
	}
	return ""
}

// IsEmpty reports whether the message has no content bearing parts.
func (m *Message) IsEmpty() bool {
	for _, p := range m.Parts {
		switch p.Kind {
		case PartText:
			if p.Text != "" {
				return false
			}
		case PartFile:
			if p.FileURL != "" || p.FileName != "" {
				return false
			}
		case PartReasoning:
			if p.Reasoning != "" {
				return false
			}
		case PartTool:
			if p.ToolName != "" || len(p.ToolInput) > 0 {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy safe to hand outside the reconciler goroutine.
func (m *Message) Clone() *Message {
	out := *m
	out.Parts = make([]Part, len(m.Parts))
	copy(out.Parts, m.Parts)
	if m.Metadata.Extra != nil {
		out.Metadata.Extra = make(map[string]string, len(m.Metadata.Extra))
		for k, v := range m.Metadata.Extra {
			out.Metadata.Extra[k] = v
		}
	}
	return &out
}

// AppendText appends delta text to the trailing text part, creating one if
// the message has none. Used by the token stream apply path.
func (m *Message) AppendText(delta string) {
	for i := len(m.Parts) - 1; i >= 0; i-- {
		if m.Parts[i].Kind == PartText {
			m.Parts[i].Text += delta
			return
		}
	}
	m.Parts = append(m.Parts, Part{Kind: PartText, Text: delta})
}

// Merge applies patch onto md additively: empty fields in md are filled from
// patch, populated fields are kept. CreatedAt is the exception with its own
// precedence rule (see Metadata doc).
func (md *Metadata) Merge(patch Metadata) {
	md.mergeCreatedAt(patch.CreatedAt, patch.ServerTimestamped)
	if md.SenderID == "" {
		md.SenderID = patch.SenderID
	}
	if md.SenderName == "" {
		md.SenderName = patch.SenderName
	}
	if md.ReceiverID == "" {
		md.ReceiverID = patch.ReceiverID
	}
	if md.ReceiverName == "" {
		md.ReceiverName = patch.ReceiverName
	}
	if md.CommunicationType == "" {
		md.CommunicationType = patch.CommunicationType
	}
	if md.ResponderUsed == "" {
		md.ResponderUsed = patch.ResponderUsed
	}
	if md.OriginalMessageID == "" {
		md.OriginalMessageID = patch.OriginalMessageID
	}
	for k, v := range patch.Extra {
		if md.Extra == nil {
			md.Extra = make(map[string]string)
		}
		if _, ok := md.Extra[k]; !ok {
			md.Extra[k] = v
		}
	}
}

func (md *Metadata) mergeCreatedAt(incoming time.Time, fromServer bool) {
	if incoming.IsZero() {
		return
	}
	switch {
	case md.CreatedAt.IsZero():
		md.CreatedAt = incoming
		md.ServerTimestamped = fromServer
	case !md.ServerTimestamped && fromServer:
		// A server timestamp replaces a local placeholder.
		md.CreatedAt = incoming
		md.ServerTimestamped = true
	}
}
