package idgen

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateSecureID generates a cryptographically secure ID with the given prefix and length.
// Uses only alphanumeric characters (0-9, a-z) - no dashes or special characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	bytes := make([]byte, length*2)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	encoded := make([]byte, length)
	for i := 0; i < length; i++ {
		encoded[i] = charset[bytes[i]%36] // 36 = len(charset)
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// DeriveSessionID mints a deterministic session identifier from the
// (user, responder) pair. Reconnecting with the same pair always yields
// the same ID, which is what lets a reloaded client find its session again.
func DeriveSessionID(userID, responderID string) string {
	sum := sha256.Sum256([]byte(userID + "|" + responderID))
	return "sess_" + hex.EncodeToString(sum[:])[:24]
}
