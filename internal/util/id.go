package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// NewID returns prefix_<32 hex chars>. Metaphor case ids end up inside marker
// element ids, so they stay within [a-z0-9_].
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// ObjectName builds a collision free storage name from an uploaded file name:
// <uuid>-<lowercased name with dashes>.
func ObjectName(fileName string) string {
	return uuid.NewString() + "-" + Slug(fileName)
}

// Slug lowercases value and replaces every run of whitespace or unsafe
// characters with a single dash. Dots are kept so file extensions survive.
func Slug(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
