package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flightclaims/claims-engine/internal/platform/database"
	"github.com/flightclaims/claims-engine/internal/platform/fieldcrypto"
)

var ErrNotFound = errors.New("auth: customer not found")

// Store persists customers with envelope-encrypted PII columns.
type Store struct {
	*database.BaseStore
	masterKey []byte
}

func NewStore(db *sqlx.DB, masterKey []byte) *Store {
	return &Store{BaseStore: database.NewBaseStore(db, "customers"), masterKey: masterKey}
}

func (s *Store) sealer(customerID uuid.UUID) *fieldcrypto.Sealer {
	return fieldcrypto.NewSealer(s.masterKey, customerID.String())
}

// emailIndex computes the blind index used for equality lookups by email;
// it does not need a per-row subject since it is deterministic over the
// normalized value alone.
func (s *Store) emailIndex(email string) (string, error) {
	return fieldcrypto.BlindIndex(s.masterKey, fieldcrypto.Normalize(email))
}

func (s *Store) toCustomer(row customerRow) (Customer, error) {
	sealer := s.sealer(row.ID)
	email, err := sealer.Open("email", row.EmailCiphertext)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: decrypt email: %w", err)
	}
	name, err := sealer.Open("full_name", row.NameCiphertext)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: decrypt full_name: %w", err)
	}
	return Customer{
		ID:               row.ID,
		Email:            email,
		FullName:         name,
		PasswordHash:     row.PasswordHash,
		Role:             Role(row.Role),
		FailedLoginCount: row.FailedLoginCount,
		LockedUntil:      row.LockedUntil,
		AnonymizedAt:     row.AnonymizedAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}, nil
}

// Create inserts a new customer, sealing email and full name and
// populating the email blind index for later lookups.
func (s *Store) Create(ctx context.Context, email, fullName, passwordHash string, role Role) (Customer, error) {
	id := uuid.New()
	sealer := s.sealer(id)

	emailCiphertext, err := sealer.Seal("email", email)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: seal email: %w", err)
	}
	nameCiphertext, err := sealer.Seal("full_name", fullName)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: seal full_name: %w", err)
	}
	emailIndex, err := s.emailIndex(email)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: index email: %w", err)
	}

	const query = `
		INSERT INTO customers (id, email_ciphertext, email_index, full_name_ciphertext, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	rows, err := s.Querier(ctx).QueryxContext(ctx, query, id, emailCiphertext, emailIndex, nameCiphertext, passwordHash, role)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: insert customer: %w", err)
	}
	defer rows.Close()

	var createdAt, updatedAt time.Time
	if rows.Next() {
		if err := rows.Scan(&createdAt, &updatedAt); err != nil {
			return Customer{}, fmt.Errorf("auth: scan inserted customer: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return Customer{}, fmt.Errorf("auth: insert customer: %w", err)
	}

	return Customer{
		ID:           id,
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// FindByEmail looks a customer up by the deterministic blind index over
// their normalized email, then decrypts the matched row.
func (s *Store) FindByEmail(ctx context.Context, email string) (Customer, error) {
	index, err := s.emailIndex(email)
	if err != nil {
		return Customer{}, fmt.Errorf("auth: index email: %w", err)
	}

	const query = `
		SELECT id, email_ciphertext, email_index, full_name_ciphertext, password_hash,
		       role, failed_login_count, locked_until, anonymized_at, created_at, updated_at
		FROM customers
		WHERE email_index = $1 AND anonymized_at IS NULL`

	var row customerRow
	if err := sqlx.GetContext(ctx, s.Querier(ctx), &row, query, index); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("auth: find by email: %w", err)
	}
	return s.toCustomer(row)
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (Customer, error) {
	const query = `
		SELECT id, email_ciphertext, email_index, full_name_ciphertext, password_hash,
		       role, failed_login_count, locked_until, anonymized_at, created_at, updated_at
		FROM customers
		WHERE id = $1`

	var row customerRow
	if err := sqlx.GetContext(ctx, s.Querier(ctx), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("auth: find by id: %w", err)
	}
	return s.toCustomer(row)
}

// EmailForCustomer decrypts and returns a single customer's email, for
// callers (the task handlers) that only need the address and not the
// full account record.
func (s *Store) EmailForCustomer(ctx context.Context, id uuid.UUID) (string, error) {
	customer, err := s.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return customer.Email, nil
}

// RecordFailedLogin increments the database-side failure counter (the
// Redis lockout in LoginLockout handles the fast-path check; this column
// is the durable record an agent can review).
func (s *Store) RecordFailedLogin(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE customers SET failed_login_count = failed_login_count + 1, updated_at = now() WHERE id = $1`
	_, err := s.Querier(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("auth: record failed login: %w", err)
	}
	return nil
}

func (s *Store) ResetFailedLogins(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE customers SET failed_login_count = 0, locked_until = NULL, updated_at = now() WHERE id = $1`
	_, err := s.Querier(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("auth: reset failed logins: %w", err)
	}
	return nil
}

// Anonymize scrubs a customer's PII in place for a data-erasure request,
// keeping the row (and its claim history's foreign key) intact.
func (s *Store) Anonymize(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE customers
		SET email_ciphertext = '', email_index = $2, full_name_ciphertext = '',
		    password_hash = '', anonymized_at = now(), updated_at = now()
		WHERE id = $1`
	_, err := s.Querier(ctx).ExecContext(ctx, query, id, "anonymized:"+id.String())
	if err != nil {
		return fmt.Errorf("auth: anonymize customer: %w", err)
	}
	return nil
}
