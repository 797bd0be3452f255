package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// csrfIterations is the PBKDF2 work factor for token signatures.
const csrfIterations = 100000

// CSRFGuard issues and validates anti-forgery tokens of the form
// "timestamp.sessionID.signature", signed independently of the session
// token. Correlation ids are kept in a process-local map keyed by client,
// mirroring the single-instance deployment model of the rate limiter.
type CSRFGuard struct {
	secret  []byte
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]csrfSession

	now func() time.Time
}

type csrfSession struct {
	id       string
	lastUsed time.Time
}

// NewCSRFGuard builds a guard signing with secret; tokens older than
// timeout fail validation.
func NewCSRFGuard(secret string, timeout time.Duration) *CSRFGuard {
	return &CSRFGuard{
		secret:   []byte(secret),
		timeout:  timeout,
		sessions: make(map[string]csrfSession),
		now:      time.Now,
	}
}

// Generate returns a fresh token for the client. The per-client correlation
// id is created on first use and reused while the client stays active;
// entries idle past the token timeout are evicted so the map cannot grow
// with one entry per address forever.
func (g *CSRFGuard) Generate(clientKey string) string {
	now := g.now()

	g.mu.Lock()
	for key, s := range g.sessions {
		if now.Sub(s.lastUsed) > g.timeout {
			delete(g.sessions, key)
		}
	}
	session, ok := g.sessions[clientKey]
	if !ok {
		session = csrfSession{id: strings.ReplaceAll(uuid.NewString(), "-", "")}
	}
	session.lastUsed = now
	g.sessions[clientKey] = session
	g.mu.Unlock()

	ts := strconv.FormatInt(now.Unix(), 10)
	return fmt.Sprintf("%s.%s.%s", ts, session.id, g.sign(ts, session.id))
}

// Validate checks field count, expiry, and signature. The signature check
// is constant-time.
func (g *CSRFGuard) Validate(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	tsStr, sessionID, signature := parts[0], parts[1], parts[2]

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return false
	}
	if g.now().Unix()-ts > int64(g.timeout.Seconds()) {
		return false
	}

	expected := g.sign(tsStr, sessionID)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

func (g *CSRFGuard) sign(ts, sessionID string) string {
	payload := []byte(ts + "." + sessionID)
	digest := pbkdf2.Key(payload, g.secret, csrfIterations, sha256.Size, sha256.New)
	return hex.EncodeToString(digest)
}
