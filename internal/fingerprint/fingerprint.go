package fingerprint

import (
	"crypto/sha256"
	"strings"

	"github.com/mr-tron/base58"
)

// Derive normalizes raw client/display characteristics into the stable
// low-entropy token stored with each transaction. Collisions across
// legitimate users are expected; the fraud engine treats matches as soft
// signal only.
func Derive(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	// 8 bytes keeps the token short and deliberately low-entropy.
	return base58.Encode(sum[:8])
}
