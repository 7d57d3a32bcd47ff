// Package fieldcrypto provides envelope encryption and blind indexing for
// individual PII columns (name, email, passport number, IBAN, ...).
//
// Each field is sealed with a key derived from a master key, the owning
// subject's ID, and the field's name, so compromising one field's
// ciphertext does not expose another field's key. A companion blind index
// — a separate, deterministic HMAC — supports equality lookups (e.g.
// "find the customer with this email") without ever decrypting a column.
package fieldcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const versionPrefix = "v1:"

func deriveFieldKey(masterKey, subject []byte, field string) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("fieldcrypto: master key must be 32 bytes, got %d", len(masterKey))
	}
	mac := hmac.New(sha256.New, masterKey)
	_, _ = mac.Write([]byte(field))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write(subject)
	return mac.Sum(nil), nil
}

func fieldAAD(subject []byte, field string) []byte {
	aad := make([]byte, 0, len(field)+1+len(subject))
	aad = append(aad, field...)
	aad = append(aad, 0)
	aad = append(aad, subject...)
	return aad
}

// EncryptField seals plaintext for (subject, field). Returns nil, nil for
// empty plaintext so optional columns can stay NULL.
func EncryptField(masterKey, subject []byte, field string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	key, err := deriveFieldKey(masterKey, subject, field)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: new gcm: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fieldcrypto: read nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, fieldAAD(subject, field))

	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return []byte(versionPrefix + base64.RawURLEncoding.EncodeToString(buf)), nil
}

// DecryptField reverses EncryptField.
func DecryptField(masterKey, subject []byte, field string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	encoded := strings.TrimPrefix(strings.TrimSpace(string(ciphertext)), versionPrefix)
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: decode ciphertext: %w", err)
	}
	key, err := deriveFieldKey(masterKey, subject, field)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: new gcm: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("fieldcrypto: ciphertext too short")
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, fieldAAD(subject, field))
	if err != nil {
		return nil, fmt.Errorf("fieldcrypto: decrypt: %w", err)
	}
	return plaintext, nil
}

// BlindIndex computes a deterministic HMAC-SHA256 over a normalized value,
// suitable for an equality-lookup column. It intentionally carries no
// nonce: the same input always produces the same index, which is the
// entire point (and the entire risk — never index free-text or
// low-cardinality fields this way).
func BlindIndex(masterKey []byte, normalized string) (string, error) {
	if len(masterKey) != 32 {
		return "", fmt.Errorf("fieldcrypto: master key must be 32 bytes, got %d", len(masterKey))
	}
	mac := hmac.New(sha256.New, masterKey)
	_, _ = mac.Write([]byte("blind-index"))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(normalized))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Normalize lowercases and trims a value before blind-indexing, so
// "Jane@Example.com" and "jane@example.com " collide to the same index.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
