package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// DedupeKey derives the cooldown ledger key for a message. Messages without
// an id fall back to the sender and subject.
func DedupeKey(messageID, sender, subject string) string {
	identity := messageID
	if identity == "" {
		identity = sender + "|" + subject
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}
