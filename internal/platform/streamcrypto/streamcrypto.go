// Package streamcrypto encrypts uploaded documents as a sequence of
// independently authenticated chunks instead of one envelope over the
// whole file, so a multi-hundred-megabyte boarding-pass scan never needs
// to be buffered in memory end to end, and a truncated download fails
// closed rather than silently handing back a partial plaintext.
//
// Each file's content key is derived from the master key and the file's
// own ID (DeriveFileKey), so no per-file key material needs to be stored
// or wrapped separately. The stream uses a per-file random 8-byte nonce
// prefix with a 4-byte big-endian chunk counter appended, so no two
// chunks across the file's lifetime ever reuse a nonce; the final chunk
// is marked in its additional data so truncation after a valid chunk
// boundary is still detected.
package streamcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// ChunkSize is the plaintext size of every chunk but the last.
const ChunkSize = 1 << 20 // 1 MiB

const nonceSize = 12
const keySize = 32

// DeriveFileKey deterministically derives a file's content key from the
// master key and the file's own ID, so no per-file key material needs to
// be separately persisted: decrypting a file only ever requires the
// master key plus the ID already in its metadata row.
func DeriveFileKey(masterKey, fileID []byte) ([]byte, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("streamcrypto: master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	mac := hmac.New(sha256.New, masterKey)
	_, _ = mac.Write([]byte("file-content-key"))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write(fileID)
	return mac.Sum(nil), nil
}

// EncryptStream reads plaintext from r in ChunkSize pieces and writes
// framed, authenticated chunks to w. The stream starts with the 8-byte
// nonce prefix; each chunk is then a 5-byte header (4-byte big-endian
// ciphertext length plus one final-chunk flag byte) followed by the
// ciphertext (which already carries the GCM tag).
func EncryptStream(w io.Writer, r io.Reader, contentKey []byte) error {
	aead, err := newAEAD(contentKey)
	if err != nil {
		return err
	}
	noncePrefix := make([]byte, nonceSize-4)
	if _, err := rand.Read(noncePrefix); err != nil {
		return fmt.Errorf("streamcrypto: generate nonce prefix: %w", err)
	}
	if _, err := w.Write(noncePrefix); err != nil {
		return fmt.Errorf("streamcrypto: write nonce prefix: %w", err)
	}

	buf := make([]byte, ChunkSize)
	var counter uint32
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			final := readErr == io.EOF || readErr == io.ErrUnexpectedEOF
			if err := writeChunk(w, aead, noncePrefix, counter, buf[:n], final); err != nil {
				return err
			}
			counter++
		}
		if readErr == io.EOF {
			if n == 0 {
				// empty file, or a length that is an exact multiple of
				// ChunkSize (the last full chunk went out non-final): emit
				// one empty final chunk so the reader has an explicit
				// end-of-stream marker.
				if err := writeChunk(w, aead, noncePrefix, counter, nil, true); err != nil {
					return err
				}
			}
			return nil
		}
		if readErr == io.ErrUnexpectedEOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("streamcrypto: read plaintext: %w", readErr)
		}
	}
}

func writeChunk(w io.Writer, aead cipher.AEAD, noncePrefix []byte, counter uint32, plaintext []byte, final bool) error {
	nonce := chunkNonce(noncePrefix, counter)
	aad := chunkAAD(counter, final)
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[:4], uint32(len(ciphertext)))
	if final {
		header[4] = 1
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("streamcrypto: write chunk header: %w", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return fmt.Errorf("streamcrypto: write chunk: %w", err)
	}
	return nil
}

// DecryptStream reverses EncryptStream, returning an error if the stream
// ends without a chunk marked final (a truncated upload or download).
func DecryptStream(w io.Writer, r io.Reader, contentKey []byte) error {
	aead, err := newAEAD(contentKey)
	if err != nil {
		return err
	}
	noncePrefix := make([]byte, nonceSize-4)
	if _, err := io.ReadFull(r, noncePrefix); err != nil {
		return fmt.Errorf("streamcrypto: read nonce prefix: %w", err)
	}

	var counter uint32
	sawFinal := false
	for {
		header := make([]byte, 5)
		_, err := io.ReadFull(r, header)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("streamcrypto: read chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		final := header[4] == 1

		ciphertext := make([]byte, length)
		if _, err := io.ReadFull(r, ciphertext); err != nil {
			return fmt.Errorf("streamcrypto: read chunk body: %w", err)
		}

		nonce := chunkNonce(noncePrefix, counter)
		aad := chunkAAD(counter, final)
		plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
		if err != nil {
			return fmt.Errorf("streamcrypto: authenticate chunk %d: %w", counter, err)
		}
		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("streamcrypto: write plaintext: %w", err)
		}
		counter++
		if final {
			sawFinal = true
			break
		}
	}
	if !sawFinal {
		return fmt.Errorf("streamcrypto: stream ended without a final chunk, possible truncation")
	}
	return nil
}

func newAEAD(contentKey []byte) (cipher.AEAD, error) {
	if len(contentKey) != keySize {
		return nil, fmt.Errorf("streamcrypto: content key must be %d bytes, got %d", keySize, len(contentKey))
	}
	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, fmt.Errorf("streamcrypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("streamcrypto: new gcm: %w", err)
	}
	return aead, nil
}

func chunkNonce(prefix []byte, counter uint32) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[len(prefix):], counter)
	return nonce
}

func chunkAAD(counter uint32, final bool) []byte {
	aad := make([]byte, 5)
	binary.BigEndian.PutUint32(aad[:4], counter)
	if final {
		aad[4] = 1
	}
	return aad
}
