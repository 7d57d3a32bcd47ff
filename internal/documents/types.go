// Package documents implements the claim-evidence upload pipeline:
// content-type sniffing, per-document-type validation, a malware-scan
// hook, streaming encryption, and a WebDAV-backed store with post-write
// integrity verification.
package documents

import "time"

// DocumentType is the kind of evidence a claimant uploads.
type DocumentType string

const (
	DocumentBoardingPass   DocumentType = "boarding_pass"
	DocumentBookingConfirm DocumentType = "booking_confirmation"
	DocumentIdentityDoc    DocumentType = "identity_document"
	DocumentReceiptOther   DocumentType = "receipt_other"
)

// allowedMimeTypes lists the content types accepted per document type, as
// determined by magic-number sniffing — never by filename extension,
// which a malicious upload can trivially spoof.
var allowedMimeTypes = map[DocumentType]map[string]bool{
	DocumentBoardingPass: {
		"application/pdf": true,
		"image/jpeg":      true,
		"image/png":       true,
	},
	DocumentBookingConfirm: {
		"application/pdf": true,
	},
	DocumentIdentityDoc: {
		"application/pdf": true,
		"image/jpeg":      true,
		"image/png":       true,
	},
	DocumentReceiptOther: {
		"application/pdf": true,
		"image/jpeg":      true,
		"image/png":       true,
	},
}

// MaxUploadBytes bounds a single document's size. The pipeline enforces
// it mid-stream, so an oversized upload is aborted as soon as it's
// detected rather than after being fully buffered.
const MaxUploadBytes = 25 << 20 // 25MB

// IsAllowedMimeType reports whether contentType is acceptable for
// docType.
func IsAllowedMimeType(docType DocumentType, contentType string) bool {
	allowed, ok := allowedMimeTypes[docType]
	if !ok {
		return false
	}
	return allowed[contentType]
}

// FileMetadata is a claim file's persisted record, separate from its
// encrypted body which lives in the WebDAV store.
type FileMetadata struct {
	ID               string
	ClaimID          string
	DocumentType     DocumentType
	StoragePath      string
	ContentType      string
	SizeBytes        int64
	SHA256Ciphertext string
	EncryptionScheme string
	UploadedBy       string
	DeletedAt        *time.Time
	CreatedAt        time.Time
}
