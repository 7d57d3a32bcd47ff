package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flightclaims/claims-engine/internal/platform/database"
)

var ErrNotFound = errors.New("documents: not found")

// Store persists claim file metadata. The encrypted file body itself
// lives in the WebDAV store at StoragePath; this table never holds
// document content.
type Store struct {
	*database.BaseStore
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{BaseStore: database.NewBaseStore(db, "claim_files")}
}

type fileRow struct {
	ID               uuid.UUID  `db:"id"`
	ClaimID          uuid.UUID  `db:"claim_id"`
	DocumentType     string     `db:"document_type"`
	StoragePath      string     `db:"storage_path"`
	ContentType      string     `db:"content_type"`
	SizeBytes        int64      `db:"size_bytes"`
	SHA256Ciphertext string     `db:"sha256_ciphertext"`
	EncryptionScheme string     `db:"encryption_scheme"`
	UploadedBy       uuid.UUID  `db:"uploaded_by"`
	DeletedAt        *time.Time `db:"deleted_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

func (r fileRow) toMetadata() FileMetadata {
	return FileMetadata{
		ID:               r.ID.String(),
		ClaimID:          r.ClaimID.String(),
		DocumentType:     DocumentType(r.DocumentType),
		StoragePath:      r.StoragePath,
		ContentType:      r.ContentType,
		SizeBytes:        r.SizeBytes,
		SHA256Ciphertext: r.SHA256Ciphertext,
		EncryptionScheme: r.EncryptionScheme,
		UploadedBy:       r.UploadedBy.String(),
		DeletedAt:        r.DeletedAt,
		CreatedAt:        r.CreatedAt,
	}
}

// Create inserts a file metadata row under the caller-supplied id: the
// pipeline must know the file's ID before this call because it derives
// the file's content key from it, so the id cannot be left to a database
// default.
func (s *Store) Create(ctx context.Context, id, claimID, uploadedBy uuid.UUID, docType DocumentType, storagePath, contentType string, sizeBytes int64, sha256Ciphertext, encryptionScheme string) (FileMetadata, error) {
	const query = `
		INSERT INTO claim_files (
			id, claim_id, document_type, storage_path, content_type, size_bytes,
			sha256_ciphertext, encryption_scheme, uploaded_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	row := s.Querier(ctx).QueryRowxContext(ctx, query, id, claimID, docType, storagePath, contentType, sizeBytes, sha256Ciphertext, encryptionScheme, uploadedBy)
	var createdAt time.Time
	var returnedID uuid.UUID
	if err := row.Scan(&returnedID, &createdAt); err != nil {
		return FileMetadata{}, fmt.Errorf("documents: insert file metadata: %w", err)
	}

	return FileMetadata{
		ID:               returnedID.String(),
		ClaimID:          claimID.String(),
		DocumentType:     docType,
		StoragePath:      storagePath,
		ContentType:      contentType,
		SizeBytes:        sizeBytes,
		SHA256Ciphertext: sha256Ciphertext,
		EncryptionScheme: encryptionScheme,
		UploadedBy:       uploadedBy.String(),
		CreatedAt:        createdAt,
	}, nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (FileMetadata, error) {
	const query = `SELECT * FROM claim_files WHERE id = $1 AND deleted_at IS NULL`
	var row fileRow
	if err := sqlx.GetContext(ctx, s.Querier(ctx), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileMetadata{}, ErrNotFound
		}
		return FileMetadata{}, fmt.Errorf("documents: find by id: %w", err)
	}
	return row.toMetadata(), nil
}

func (s *Store) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]FileMetadata, error) {
	const query = `SELECT * FROM claim_files WHERE claim_id = $1 AND deleted_at IS NULL ORDER BY created_at`
	var rows []fileRow
	if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, claimID); err != nil {
		return nil, fmt.Errorf("documents: list by claim: %w", err)
	}
	out := make([]FileMetadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMetadata())
	}
	return out, nil
}

// SoftDelete marks a file deleted without removing the row, so file
// access logs referencing it remain valid.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE claim_files SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`
	result, err := s.Querier(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("documents: soft delete: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("documents: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSoftDeletedOlderThan returns files soft-deleted before cutoff, for
// the remote-object reaper sweep.
func (s *Store) ListSoftDeletedOlderThan(ctx context.Context, cutoff time.Time) ([]FileMetadata, error) {
	const query = `SELECT * FROM claim_files WHERE deleted_at IS NOT NULL AND deleted_at < $1`
	var rows []fileRow
	if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("documents: list soft-deleted: %w", err)
	}
	out := make([]FileMetadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toMetadata())
	}
	return out, nil
}

// LogAccess records one access to a claim file for audit purposes.
func (s *Store) LogAccess(ctx context.Context, fileID, actorID uuid.UUID, action string) error {
	const query = `INSERT INTO file_access_logs (claim_file_id, actor_id, action) VALUES ($1, $2, $3)`
	if _, err := s.Querier(ctx).ExecContext(ctx, query, fileID, actorID, action); err != nil {
		return fmt.Errorf("documents: log access: %w", err)
	}
	return nil
}
