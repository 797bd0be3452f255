package security

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is fixed so hashes stay comparable across deployments.
const bcryptCost = 10

// maxPasswordLength guards against bcrypt's 72-byte input truncation.
const maxPasswordLength = 50

// HashPassword derives a salted bcrypt digest from the plaintext. The
// plaintext is never stored.
func HashPassword(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// CheckPassword reports whether plaintext matches the stored digest.
// Comparison is constant-time inside bcrypt; callers must not leak whether
// a failure was a wrong password or a nonexistent account.
func CheckPassword(digest, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// ValidPasswordLength reports whether the plaintext is acceptable for
// hashing.
func ValidPasswordLength(plaintext string) bool {
	return len(plaintext) > 0 && len(plaintext) <= maxPasswordLength
}

// RandomSecret returns 32 random hex characters, used for placeholder
// credentials that must never verify against user input.
func RandomSecret() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
