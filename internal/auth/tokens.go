// Opaque, single-use tokens for refresh, magic-link, and password-reset
// flows. Only a SHA-256 digest of the token ever touches the database;
// the plaintext goes out once, in the response or the outbound email, and
// is never retrievable again.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const opaqueTokenBytes = 32

// NewOpaqueToken returns a fresh random token and its storage digest.
func NewOpaqueToken() (plaintext, digest string, err error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generate token: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, DigestToken(plaintext), nil
}

// DigestToken hashes a presented plaintext token for comparison against
// the stored digest.
func DigestToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
