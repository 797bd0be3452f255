package security

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFGenerateValidate(t *testing.T) {
	guard := NewCSRFGuard("csrf-secret", time.Hour)

	token := guard.Generate("client-1")
	require.Len(t, strings.Split(token, "."), 3)
	assert.True(t, guard.Validate(token))
}

func TestCSRFSessionIDReused(t *testing.T) {
	guard := NewCSRFGuard("csrf-secret", time.Hour)

	first := strings.Split(guard.Generate("client-1"), ".")
	second := strings.Split(guard.Generate("client-1"), ".")
	other := strings.Split(guard.Generate("client-2"), ".")

	assert.Equal(t, first[1], second[1])
	assert.NotEqual(t, first[1], other[1])
}

func TestCSRFEvictsIdleSessions(t *testing.T) {
	guard := NewCSRFGuard("csrf-secret", time.Minute)
	current := time.Now()
	guard.now = func() time.Time { return current }

	for i := 0; i < 50; i++ {
		guard.Generate(fmt.Sprintf("10.0.0.%d", i))
	}
	require.Len(t, guard.sessions, 50)

	current = current.Add(2 * time.Minute)
	guard.Generate("fresh-client")

	assert.Len(t, guard.sessions, 1)
}

func TestCSRFExpired(t *testing.T) {
	guard := NewCSRFGuard("csrf-secret", time.Hour)
	issued := time.Now()
	guard.now = func() time.Time { return issued }

	token := guard.Generate("client-1")

	guard.now = func() time.Time { return issued.Add(time.Hour + time.Second) }
	assert.False(t, guard.Validate(token))
}

func TestCSRFTamperedSignature(t *testing.T) {
	guard := NewCSRFGuard("csrf-secret", time.Hour)

	parts := strings.Split(guard.Generate("client-1"), ".")
	require.Len(t, parts, 3)

	// Flip one hex digit of the signature; timestamp stays in window.
	sig := []byte(parts[2])
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	assert.False(t, guard.Validate(tampered))
}

func TestCSRFMalformed(t *testing.T) {
	guard := NewCSRFGuard("csrf-secret", time.Hour)

	for _, token := range []string{"", "a.b", "a.b.c.d", "notatimestamp.id.sig"} {
		assert.False(t, guard.Validate(token), "token %q", token)
	}
}
