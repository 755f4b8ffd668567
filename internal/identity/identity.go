// Package identity derives the deduplication key for a posting.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
)

// Key returns the dedup key for a posting: the SHA-256 hex digest of
// "source:url:title" after trimming each part and case folding the result.
// Empty url or title values are hashed as-is.
func Key(sourceID, url, title string) string {
	joined := strings.Join([]string{
		strings.TrimSpace(sourceID),
		strings.TrimSpace(url),
		strings.TrimSpace(title),
	}, ":")
	// Casers carry state, so one per call.
	folded := cases.Fold().String(joined)
	sum := sha256.Sum256([]byte(folded))
	return hex.EncodeToString(sum[:])
}
