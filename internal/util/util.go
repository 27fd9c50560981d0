// Package util holds small helpers shared across the runtime: ids, hashes,
// timestamps and retry.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// ShortHash returns the first 8 hex chars of the SHA-256 of s.
func ShortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:4])
}

// NowMs returns the current time as milliseconds since the Unix epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NowISO returns the current UTC time in RFC3339 format.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Truncate cuts s to at most max bytes, appending an ellipsis marker when cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// SanitizeSegment makes s safe for use as a single path component.
// Every rune outside [A-Za-z0-9._-] becomes an underscore.
func SanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
