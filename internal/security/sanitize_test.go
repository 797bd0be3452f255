package security

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "password assignment",
			in:   `failed: password="hunter2" rejected`,
			want: "failed: [REDACTED] rejected",
		},
		{
			name: "secret assignment case insensitive",
			in:   `SECRET = 'abc123' leaked`,
			want: "[REDACTED] leaked",
		},
		{
			name: "schema identifiers",
			in:   `duplicate key in table "users" column "email"`,
			want: `duplicate key in [REDACTED] [REDACTED]`,
		},
		{
			name: "file path",
			in:   "panic at /srv/visiond/internal/db/db.go line 10",
			want: "panic at [REDACTED] line 10",
		},
		{
			name: "clean message untouched",
			in:   "record not found",
			want: "record not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMessage(tt.in))
		})
	}
}

func TestSanitizeMessageTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	assert.Len(t, SanitizeMessage(long), 200)
}

func TestSanitizeMessageTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ü", 500)
	got := SanitizeMessage(long)

	assert.Len(t, []rune(got), 200)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(long, got))
}
