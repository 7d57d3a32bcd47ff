package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role is a customer's authorization level.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// Customer is a claimant account. Email and full name are stored
// encrypted; Email is only ever populated in memory after a successful
// decrypt, never logged.
type Customer struct {
	ID               uuid.UUID
	Email            string
	FullName         string
	PasswordHash     string
	Role             Role
	FailedLoginCount int
	LockedUntil      *time.Time
	AnonymizedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// customerRow is the sqlx scan target: ciphertext columns plus the blind
// index, kept separate from the decrypted Customer the service returns.
type customerRow struct {
	ID               uuid.UUID `db:"id"`
	EmailCiphertext  string    `db:"email_ciphertext"`
	EmailIndex       string    `db:"email_index"`
	NameCiphertext   string    `db:"full_name_ciphertext"`
	PasswordHash     string    `db:"password_hash"`
	Role             string    `db:"role"`
	FailedLoginCount int       `db:"failed_login_count"`
	LockedUntil      *time.Time `db:"locked_until"`
	AnonymizedAt     *time.Time `db:"anonymized_at"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
