package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Fingerprint("hello"))

	// identical text hashes the same regardless of how it arrived
	assert.Equal(t, Fingerprint("same text"), Fingerprint("same text"))
	assert.NotEqual(t, Fingerprint("same text"), Fingerprint("same text."))
}

func TestIsDuplicate(t *testing.T) {
	h := Fingerprint("x")
	assert.True(t, IsDuplicate(h, h))
	assert.False(t, IsDuplicate(h, Fingerprint("y")))
	assert.False(t, IsDuplicate("", h))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf to lf", "a\r\nb\r\nc", "a\nb\nc"},
		{"bare cr to lf", "a\rb", "a\nb"},
		{"outer whitespace trimmed", "  \n hello \n\t", "hello"},
		{"interior whitespace kept", "a  b\n\nc", "a  b\n\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("empty is a validation error", func(t *testing.T) {
		for _, in := range []string{"", "   ", "\r\n\t \n"} {
			_, err := NormalizeText(in)
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		}
	})
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", Snippet("short", 500))

	long := strings.Repeat("a", 600)
	assert.Len(t, Snippet(long, 500), 500)

	// never cuts a multi-byte rune in half
	s := Snippet(strings.Repeat("é", 300), 499)
	assert.Equal(t, 498, len(s))
}
