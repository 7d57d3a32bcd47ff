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
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenAlreadyUsed   = errors.New("auth: token already used")
)

// dummyPasswordHash is verified against when no account matches a login
// email, so an unknown email costs the same bcrypt work as a known one.
var dummyPasswordHash = func() string {
	plain, _, _ := NewOpaqueToken()
	hash, _ := HashPassword(plain)
	return hash
}()

// Config bundles the tunables Service needs beyond its collaborators.
type Config struct {
	RefreshTokenTTL    time.Duration
	MagicLinkTTL       time.Duration
	PasswordResetTTL   time.Duration
	MaxFailedLogins    int
	LockoutDuration    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RefreshTokenTTL:  30 * 24 * time.Hour,
		MagicLinkTTL:     48 * time.Hour,
		PasswordResetTTL: 2 * time.Hour,
		MaxFailedLogins:  5,
		LockoutDuration:  15 * time.Minute,
	}
}

// Service implements the customer-facing auth flows: password login,
// refresh rotation, magic-link and password-reset issuance/consumption.
type Service struct {
	db       *sqlx.DB
	store    *Store
	issuer   *TokenIssuer
	lockout  *LoginLockout
	cfg      Config
}

func NewService(db *sqlx.DB, store *Store, issuer *TokenIssuer, lockout *LoginLockout, cfg Config) *Service {
	return &Service{db: db, store: store, issuer: issuer, lockout: lockout, cfg: cfg}
}

// Session is what a successful authentication hands back to the client.
type Session struct {
	AccessToken  string
	AccessExpiry time.Time
	RefreshToken string
	Customer     Customer
}

// Login verifies email/password, enforcing Redis-backed lockout on top of
// the durable failure counter, and issues a fresh session on success.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	customer, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			VerifyPassword(dummyPasswordHash, password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if s.lockout != nil {
		locked, err := s.lockout.Locked(ctx, customer.ID.String())
		if err != nil {
			return Session{}, err
		}
		if locked {
			return Session{}, ErrAccountLocked
		}
	}

	if !VerifyPassword(customer.PasswordHash, password) {
		if err := s.store.RecordFailedLogin(ctx, customer.ID); err != nil {
			return Session{}, err
		}
		if s.lockout != nil {
			if _, err := s.lockout.RecordFailure(ctx, customer.ID.String()); err != nil {
				return Session{}, err
			}
		}
		return Session{}, ErrInvalidCredentials
	}

	if err := s.store.ResetFailedLogins(ctx, customer.ID); err != nil {
		return Session{}, err
	}
	if s.lockout != nil {
		if err := s.lockout.Reset(ctx, customer.ID.String()); err != nil {
			return Session{}, err
		}
	}

	return s.issueSession(ctx, customer)
}

func (s *Service) issueSession(ctx context.Context, customer Customer) (Session, error) {
	accessToken, exp, err := s.issuer.Issue(customer.ID, string(customer.Role))
	if err != nil {
		return Session{}, err
	}
	refreshPlain, refreshDigest, err := NewOpaqueToken()
	if err != nil {
		return Session{}, err
	}
	const insert = `INSERT INTO refresh_tokens (customer_id, digest, expires_at) VALUES ($1, $2, $3)`
	if _, err := database.NewBaseStore(s.db, "refresh_tokens").Querier(ctx).ExecContext(ctx, insert,
		customer.ID, refreshDigest, time.Now().Add(s.cfg.RefreshTokenTTL)); err != nil {
		return Session{}, fmt.Errorf("auth: store refresh token: %w", err)
	}

	return Session{
		AccessToken:  accessToken,
		AccessExpiry: exp,
		RefreshToken: refreshPlain,
		Customer:     customer,
	}, nil
}

// RefreshSession rotates a refresh token: the presented token is revoked
// and a new access/refresh pair is issued, so a stolen-and-replayed token
// is detected the moment the legitimate client refreshes next (its token
// will already be revoked). The lookup, revocation and new-token insert
// run in one transaction, with the presented token's row locked.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	tokens := database.NewBaseStore(s.db, "refresh_tokens")
	if database.TxFromContext(ctx) == nil {
		var session Session
		err := tokens.WithTx(ctx, func(ctx context.Context) error {
			var err error
			session, err = s.RefreshSession(ctx, refreshToken)
			return err
		})
		return session, err
	}
	digest := DigestToken(refreshToken)

	const query = `
		SELECT customer_id, expires_at, revoked_at
		FROM refresh_tokens WHERE digest = $1 FOR UPDATE`
	var customerID uuid.UUID
	var expiresAt time.Time
	var revokedAt *time.Time
	if err := tokens.Querier(ctx).QueryRowxContext(ctx, query, digest).Scan(&customerID, &expiresAt, &revokedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("auth: lookup refresh token: %w", err)
	}
	if revokedAt != nil {
		return Session{}, ErrInvalidCredentials
	}
	if time.Now().After(expiresAt) {
		return Session{}, ErrTokenExpired
	}

	const revoke = `UPDATE refresh_tokens SET revoked_at = now() WHERE digest = $1`
	if _, err := tokens.Querier(ctx).ExecContext(ctx, revoke, digest); err != nil {
		return Session{}, fmt.Errorf("auth: revoke refresh token: %w", err)
	}

	customer, err := s.store.FindByID(ctx, customerID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, customer)
}

// RequestMagicLink issues a single-use login link token for email, or
// silently succeeds without creating one if no such account exists, so
// callers cannot use this endpoint to enumerate registered emails.
func (s *Service) RequestMagicLink(ctx context.Context, email string) (token string, err error) {
	customer, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	plain, digest, err := NewOpaqueToken()
	if err != nil {
		return "", err
	}
	const insert = `INSERT INTO magic_link_tokens (customer_id, digest, expires_at) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, insert, customer.ID, digest, time.Now().Add(s.cfg.MagicLinkTTL)); err != nil {
		return "", fmt.Errorf("auth: store magic link: %w", err)
	}
	return plain, nil
}

// ConsumeMagicLink redeems a magic-link token exactly once: the UPDATE's
// WHERE used_at IS NULL clause makes two concurrent redemptions race
// safely, with only one succeeding.
func (s *Service) ConsumeMagicLink(ctx context.Context, token string) (Session, error) {
	digest := DigestToken(token)
	const update = `
		UPDATE magic_link_tokens SET used_at = now()
		WHERE digest = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING customer_id`

	var customerID uuid.UUID
	if err := s.db.QueryRowxContext(ctx, update, digest).Scan(&customerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrTokenAlreadyUsed
		}
		return Session{}, fmt.Errorf("auth: consume magic link: %w", err)
	}
	customer, err := s.store.FindByID(ctx, customerID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, customer)
}

// RequestPasswordReset mirrors RequestMagicLink's enumeration-safe shape.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (token string, err error) {
	customer, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	plain, digest, err := NewOpaqueToken()
	if err != nil {
		return "", err
	}
	const insert = `INSERT INTO password_reset_tokens (customer_id, digest, expires_at) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, insert, customer.ID, digest, time.Now().Add(s.cfg.PasswordResetTTL)); err != nil {
		return "", fmt.Errorf("auth: store password reset token: %w", err)
	}
	return plain, nil
}

// AnonymizeAccount scrubs a customer's PII and revokes every outstanding
// refresh, magic-link, and password-reset token in one transaction, so a
// data-erasure request cannot race a concurrent login into leaving a live
// session behind.
func (s *Service) AnonymizeAccount(ctx context.Context, customerID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("auth: begin anonymize transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE customer_id = $1 AND revoked_at IS NULL`, customerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("auth: revoke refresh tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE magic_link_tokens SET used_at = now() WHERE customer_id = $1 AND used_at IS NULL`, customerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("auth: revoke magic links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE password_reset_tokens SET used_at = now() WHERE customer_id = $1 AND used_at IS NULL`, customerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("auth: revoke password resets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET email_ciphertext = '', email_index = $2, full_name_ciphertext = '',
		    password_hash = '', anonymized_at = now(), updated_at = now()
		WHERE id = $1`, customerID, "anonymized:"+customerID.String()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("auth: anonymize customer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("auth: commit anonymize transaction: %w", err)
	}
	return nil
}

// ResetPassword redeems a password-reset token exactly once and updates
// the customer's password hash in the same statement set.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	digest := DigestToken(token)
	const update = `
		UPDATE password_reset_tokens SET used_at = now()
		WHERE digest = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING customer_id`

	var customerID uuid.UUID
	if err := s.db.QueryRowxContext(ctx, update, digest).Scan(&customerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTokenAlreadyUsed
		}
		return fmt.Errorf("auth: consume password reset token: %w", err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	const setPassword = `UPDATE customers SET password_hash = $2, updated_at = now() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, setPassword, customerID, hash); err != nil {
		return fmt.Errorf("auth: set new password: %w", err)
	}
	return nil
}
