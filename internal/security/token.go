package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired marks a structurally valid token past its expiry claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid marks a malformed token or a signature mismatch.
	ErrTokenInvalid = errors.New("token invalid")
)

type sessionClaims struct {
	jwt.RegisteredClaims
	UID uint `json:"uid"`
}

// TokenIssuer issues and verifies stateless HS256-signed session tokens.
// There is no revocation list; logout relies on cookie deletion alone.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewTokenIssuer builds an issuer signing with secret and stamping tokens
// with the given lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token carrying the user id with issued-at and
// expiry claims.
func (t *TokenIssuer) Issue(userID uint) (string, error) {
	now := t.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		UID: userID,
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates the token, returning the embedded user id.
// Expired tokens fail with ErrTokenExpired; anything else that does not
// check out fails with ErrTokenInvalid.
func (t *TokenIssuer) Verify(tokenString string) (uint, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenInvalid
	}
	if !token.Valid || claims.UID == 0 {
		return 0, ErrTokenInvalid
	}

	return claims.UID, nil
}
