package fieldcrypto

import (
	"database/sql/driver"
	"fmt"
)

// Sealer encrypts and decrypts a named field for a given subject. A
// repository constructs one Sealer per subject ID and reuses it across a
// row's encrypted columns.
type Sealer struct {
	masterKey []byte
	subject   []byte
}

// NewSealer builds a Sealer scoped to one subject (typically a customer ID).
func NewSealer(masterKey []byte, subjectID string) *Sealer {
	return &Sealer{masterKey: masterKey, subject: []byte(subjectID)}
}

// Seal encrypts plaintext for the named field.
func (s *Sealer) Seal(field, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := EncryptField(s.masterKey, s.subject, field, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return string(ciphertext), nil
}

// Open decrypts a field previously produced by Seal.
func (s *Sealer) Open(field, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	plaintext, err := DecryptField(s.masterKey, s.subject, field, []byte(ciphertext))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Index computes the blind index for an equality-searchable field.
func (s *Sealer) Index(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return BlindIndex(s.masterKey, Normalize(value))
}

// EncryptedString is a database column that stores an envelope-encrypted
// value. Scan/Value let it participate directly in sqlx struct scans; the
// repository is responsible for wiring the correct Sealer via SealWith
// before a Value() call and UnsealWith after a Scan().
type EncryptedString struct {
	Ciphertext string
	Plaintext  string
}

// Scan implements sql.Scanner, storing the raw ciphertext. Callers must
// call UnsealWith(sealer, field) to populate Plaintext.
func (e *EncryptedString) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*e = EncryptedString{}
		return nil
	case string:
		e.Ciphertext = v
		return nil
	case []byte:
		e.Ciphertext = string(v)
		return nil
	default:
		return fmt.Errorf("fieldcrypto: cannot scan %T into EncryptedString", src)
	}
}

// Value implements driver.Valuer, writing whatever ciphertext is currently
// set. Callers must call SealWith(sealer, field) before Value() is invoked
// by the driver so Ciphertext reflects the current Plaintext.
func (e EncryptedString) Value() (driver.Value, error) {
	if e.Ciphertext == "" {
		return nil, nil
	}
	return e.Ciphertext, nil
}

// SealWith encrypts Plaintext into Ciphertext using sealer under field.
func (e *EncryptedString) SealWith(sealer *Sealer, field string) error {
	ciphertext, err := sealer.Seal(field, e.Plaintext)
	if err != nil {
		return err
	}
	e.Ciphertext = ciphertext
	return nil
}

// UnsealWith decrypts Ciphertext into Plaintext using sealer under field.
func (e *EncryptedString) UnsealWith(sealer *Sealer, field string) error {
	plaintext, err := sealer.Open(field, e.Ciphertext)
	if err != nil {
		return err
	}
	e.Plaintext = plaintext
	return nil
}
