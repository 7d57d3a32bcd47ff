package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// ErrThreatDetected is returned by a Scanner that finds something it
// refuses to pass through.
var ErrThreatDetected = errors.New("documents: scanner detected a threat")

// ErrScannerUnavailable signals the scanner dependency itself could not
// run — callers must treat this as a rejection, not an approval: the
// pipeline fails closed.
var ErrScannerUnavailable = errors.New("documents: scanner unavailable")

// Scanner inspects a document body before it is accepted into the store.
// It receives the upload as a stream rather than a fully-read []byte, so a
// scanner that only needs to look at a prefix (or that proxies to an
// external streaming AV engine) never forces the whole file into memory.
// Scan returns a reader the caller must continue reading from in place of
// r — a scanner that buffers internally hands back a fresh reader over
// its buffer, which is why the return value can't simply be r itself.
type Scanner interface {
	Scan(ctx context.Context, contentType string, r io.Reader) (io.Reader, error)
}

// NullScanner always reports ErrScannerUnavailable: a deployment with no
// malware-scanning backend configured must not silently accept every
// upload, so the pipeline fails closed rather than open. It never reads
// from r, since the upload is rejected regardless of content.
type NullScanner struct{}

func (NullScanner) Scan(ctx context.Context, contentType string, r io.Reader) (io.Reader, error) {
	return nil, ErrScannerUnavailable
}

// PDFStructuralScanner does a best-effort structural check of PDF
// uploads: it rejects embedded JavaScript, launch actions and embedded
// files, common PDF-borne attack vectors, without needing a full AV
// engine. It is not a substitute for a real scanner in production but
// gives a concrete, deterministic check for the one format this pipeline
// accepts that can carry executable content.
//
// A threat marker can appear anywhere in a PDF's object stream, so this
// scanner has no way to decide "safe" from a prefix alone — it buffers
// the full body (bounded by MaxUploadBytes, so the buffer is never
// larger than the upload cap) and hands the caller a fresh reader over
// it. Every other content type passes through untouched.
type PDFStructuralScanner struct{}

var pdfThreatMarkers = [][]byte{
	[]byte("/JavaScript"),
	[]byte("/JS"),
	[]byte("/Launch"),
	[]byte("/OpenAction"),
	[]byte("/EmbeddedFile"),
}

func (PDFStructuralScanner) Scan(ctx context.Context, contentType string, r io.Reader) (io.Reader, error) {
	if contentType != "application/pdf" {
		return r, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	for _, marker := range pdfThreatMarkers {
		if bytes.Contains(body, marker) {
			return nil, ErrThreatDetected
		}
	}
	return bytes.NewReader(body), nil
}

// ChainScanner runs scanners in order, stopping at the first error and
// threading each scanner's returned reader into the next.
type ChainScanner struct {
	scanners []Scanner
}

func NewChainScanner(scanners ...Scanner) ChainScanner {
	return ChainScanner{scanners: scanners}
}

func (c ChainScanner) Scan(ctx context.Context, contentType string, r io.Reader) (io.Reader, error) {
	current := r
	for _, s := range c.scanners {
		next, err := s.Scan(ctx, contentType, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}
