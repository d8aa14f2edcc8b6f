package id

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// NewID32 returns exactly 32 hex characters (no separators/prefixes).
func NewID32() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// AccountReference derives the short, upper-case reference shown on the payer's
// phone from a public id. M-Pesa truncates AccountReference at 12 chars.
func AccountReference(publicID string) string {
	ref := strings.ToUpper(publicID)
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return ref
}
