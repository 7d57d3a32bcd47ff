package fieldcrypto

import (
	"bytes"
	"testing"
)

func testMasterKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptDecryptField_RoundTrip(t *testing.T) {
	masterKey := testMasterKey()
	subject := []byte("customer-123")

	ciphertext, err := EncryptField(masterKey, subject, "email", []byte("jane@example.com"))
	if err != nil {
		t.Fatalf("EncryptField() error = %v", err)
	}

	plaintext, err := DecryptField(masterKey, subject, "email", ciphertext)
	if err != nil {
		t.Fatalf("DecryptField() error = %v", err)
	}
	if string(plaintext) != "jane@example.com" {
		t.Errorf("plaintext = %q, want jane@example.com", plaintext)
	}
}

func TestEncryptField_EmptyPlaintextReturnsNil(t *testing.T) {
	ciphertext, err := EncryptField(testMasterKey(), []byte("s"), "email", nil)
	if err != nil || ciphertext != nil {
		t.Errorf("EncryptField(empty) = %v, %v; want nil, nil", ciphertext, err)
	}
}

func TestDecryptField_WrongFieldNameFails(t *testing.T) {
	masterKey := testMasterKey()
	subject := []byte("customer-123")

	ciphertext, _ := EncryptField(masterKey, subject, "email", []byte("jane@example.com"))
	if _, err := DecryptField(masterKey, subject, "passport_number", ciphertext); err == nil {
		t.Error("DecryptField with a different field name should fail authentication")
	}
}

func TestDecryptField_WrongSubjectFails(t *testing.T) {
	masterKey := testMasterKey()
	ciphertext, _ := EncryptField(masterKey, []byte("customer-123"), "email", []byte("jane@example.com"))
	if _, err := DecryptField(masterKey, []byte("customer-456"), "email", ciphertext); err == nil {
		t.Error("DecryptField with a different subject should fail authentication")
	}
}

func TestBlindIndex_DeterministicAndDistinct(t *testing.T) {
	masterKey := testMasterKey()

	idx1, err := BlindIndex(masterKey, Normalize("Jane@Example.com"))
	if err != nil {
		t.Fatalf("BlindIndex() error = %v", err)
	}
	idx2, err := BlindIndex(masterKey, Normalize("jane@example.com "))
	if err != nil {
		t.Fatalf("BlindIndex() error = %v", err)
	}
	if idx1 != idx2 {
		t.Error("normalized-equivalent inputs should produce the same blind index")
	}

	idx3, _ := BlindIndex(masterKey, Normalize("john@example.com"))
	if idx1 == idx3 {
		t.Error("different emails should produce different blind indexes")
	}
}

func TestDeriveFieldKey_RejectsShortMasterKey(t *testing.T) {
	if _, err := EncryptField([]byte("too-short"), []byte("s"), "email", []byte("x")); err == nil {
		t.Error("expected error for a master key shorter than 32 bytes")
	}
}

func TestEncryptField_ProducesDistinctCiphertextsForSameInput(t *testing.T) {
	masterKey := testMasterKey()
	subject := []byte("customer-123")

	c1, _ := EncryptField(masterKey, subject, "email", []byte("jane@example.com"))
	c2, _ := EncryptField(masterKey, subject, "email", []byte("jane@example.com"))
	if bytes.Equal(c1, c2) {
		t.Error("random nonces should make repeated encryptions of the same plaintext differ")
	}
}
