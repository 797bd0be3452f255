package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	limiter := NewRateLimiter()
	current := time.Now()
	limiter.now = func() time.Time { return current }

	const maxAttempts = 5
	window := 15 * time.Minute

	for i := 0; i < maxAttempts; i++ {
		assert.False(t, limiter.IsRateLimited("10.0.0.1", maxAttempts, window), "attempt %d", i+1)
		limiter.RecordAttempt("10.0.0.1")
	}

	// The (N+1)-th attempt inside the window is rejected.
	assert.True(t, limiter.IsRateLimited("10.0.0.1", maxAttempts, window))

	// Another key is unaffected.
	assert.False(t, limiter.IsRateLimited("10.0.0.2", maxAttempts, window))

	// Once the window elapses, attempts are accepted again.
	current = current.Add(window + time.Second)
	assert.False(t, limiter.IsRateLimited("10.0.0.1", maxAttempts, window))
}

func TestRateLimiterEvictsOldAttempts(t *testing.T) {
	limiter := NewRateLimiter()
	current := time.Now()
	limiter.now = func() time.Time { return current }

	window := 10 * time.Minute
	limiter.RecordAttempt("k")
	limiter.RecordAttempt("k")

	current = current.Add(6 * time.Minute)
	limiter.RecordAttempt("k")

	// Two of the three attempts fall out of the window.
	current = current.Add(5 * time.Minute)
	assert.False(t, limiter.IsRateLimited("k", 2, window))
}

func TestAccountLockout(t *testing.T) {
	limiter := NewRateLimiter()
	current := time.Now()
	limiter.now = func() time.Time { return current }

	lockout := 30 * time.Minute

	assert.False(t, limiter.IsLocked("a@x.com", lockout))

	limiter.LockAccount("a@x.com")
	assert.True(t, limiter.IsLocked("a@x.com", lockout))

	current = current.Add(lockout + time.Second)
	assert.False(t, limiter.IsLocked("a@x.com", lockout))

	// Expired lockouts are dropped, not resurrected.
	assert.False(t, limiter.IsLocked("a@x.com", lockout))
}
