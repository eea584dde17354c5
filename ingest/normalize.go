package ingest

import (
	"fmt"
	"strings"
)

// ValidationError reports bad caller input. Terminal: nothing was stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NormalizeText unifies line endings to LF and trims outer whitespace. The
// result is the authoritative text for hashing and chunking; an empty result
// is a validation error, not an empty record.
func NormalizeText(text string) (string, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return "", &ValidationError{Field: "text", Reason: "empty after normalization"}
	}
	return normalized, nil
}

// Snippet returns the leading max bytes of text, backed up to a rune start so
// a multi-byte character is never cut in half.
func Snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
