// Package checksum fingerprints note content for change detection and
// If-Match preconditions.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Of returns the hex-encoded SHA-256 digest of text.
func Of(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Matches reports whether text hashes to sum. An empty sum never matches.
func Matches(text, sum string) bool {
	return sum != "" && Of(text) == sum
}
