package message

// fingerprintEmpty normalizes empty text/file fields so that two messages
// with no text still compare equal on that field.
const fingerprintEmpty = "<none>"

// Fingerprint approximates "same logical message" across different
// transport-assigned IDs. A locally optimistic message and a server pushed
// echo of the same event carry different IDs but identical fingerprints.
type Fingerprint struct {
	SenderID       string
	ReceiverID     string
	Role           Role
	PrimaryText    string
	PrimaryFileURL string
}

// FingerprintOf derives the dedup key for a message.
func FingerprintOf(m *Message) Fingerprint {
	text := m.PrimaryText()
	if text == "" {
		text = fingerprintEmpty
	}
	fileURL := m.PrimaryFileURL()
	if fileURL == "" {
		fileURL = fingerprintEmpty
	}
	return Fingerprint{
		SenderID:       m.Metadata.SenderID,
		ReceiverID:     m.Metadata.ReceiverID,
		Role:           m.Role,
		PrimaryText:    text,
		PrimaryFileURL: fileURL,
	}
}
