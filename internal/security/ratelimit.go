package security

import (
	"sync"
	"time"
)

// RateLimiter keeps sliding-window attempt counters per client address and
// a single lockout timestamp per identity. State is process-local: it is
// not shared across instances, so running more than one replica weakens the
// limits accordingly.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	lockouts map[string]time.Time

	now func() time.Time
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		attempts: make(map[string][]time.Time),
		lockouts: make(map[string]time.Time),
		now:      time.Now,
	}
}

// IsRateLimited evicts attempts older than the window and reports whether
// key has already used up maxAttempts within it.
func (r *RateLimiter) IsRateLimited(key string, maxAttempts int, window time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-window)
	queue := r.attempts[key]
	for len(queue) > 0 && queue[0].Before(cutoff) {
		queue = queue[1:]
	}
	if len(queue) == 0 {
		delete(r.attempts, key)
	} else {
		r.attempts[key] = queue
	}

	return len(queue) >= maxAttempts
}

// RecordAttempt appends the current time to key's attempt queue.
func (r *RateLimiter) RecordAttempt(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key] = append(r.attempts[key], r.now())
}

// LockAccount stamps a lockout for the identity key, typically an email.
func (r *RateLimiter) LockAccount(identityKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockouts[identityKey] = r.now()
}

// IsLocked reports whether the identity is inside its lockout window. An
// expired lockout is removed on the way out.
func (r *RateLimiter) IsLocked(identityKey string, lockout time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lockedAt, ok := r.lockouts[identityKey]
	if !ok {
		return false
	}
	if r.now().Sub(lockedAt) > lockout {
		delete(r.lockouts, identityKey)
		return false
	}
	return true
}
