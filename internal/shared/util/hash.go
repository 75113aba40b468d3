package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns a one-way digest of free text. Telemetry carries these
// digests instead of document excerpts, so proprietary content never leaves
// the client.
func HashContent(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashUserKey returns a stable, privacy-safe identifier for a user ID.
func HashUserKey(s string) string {
	return HashContent(s)
}
