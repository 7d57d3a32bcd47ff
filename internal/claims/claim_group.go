package claims

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

// ErrGroupNotFound is returned when a claim group id does not resolve to
// a row.
var ErrGroupNotFound = errors.New("claims: claim group not found")

// ClaimGroup is a multi-passenger booking filed together: a weak
// grouping that claims reference by id, never the reverse, so removing
// a group never cascades to the claims that point at it.
type ClaimGroup struct {
	ID                 uuid.UUID
	CustomerID         uuid.UUID
	Label              string
	FlightNumber       string
	FlightDate         time.Time
	ConsentConfirmed   bool
	ConsentConfirmedAt *time.Time
	ConsentConfirmedIP string
	CreatedAt          time.Time
}

type claimGroupRow struct {
	ID                 uuid.UUID  `db:"id"`
	CustomerID         uuid.UUID  `db:"customer_id"`
	Label              string     `db:"label"`
	FlightNumber       string     `db:"flight_number"`
	FlightDate         time.Time  `db:"flight_date"`
	ConsentConfirmed   bool       `db:"consent_confirmed"`
	ConsentConfirmedAt *time.Time `db:"consent_confirmed_at"`
	ConsentConfirmedIP string     `db:"consent_confirmed_ip"`
	CreatedAt          time.Time  `db:"created_at"`
}

func (r claimGroupRow) toGroup() ClaimGroup {
	return ClaimGroup{
		ID:                 r.ID,
		CustomerID:         r.CustomerID,
		Label:              r.Label,
		FlightNumber:       r.FlightNumber,
		FlightDate:         r.FlightDate,
		ConsentConfirmed:   r.ConsentConfirmed,
		ConsentConfirmedAt: r.ConsentConfirmedAt,
		ConsentConfirmedIP: r.ConsentConfirmedIP,
		CreatedAt:          r.CreatedAt,
	}
}

// GroupStore persists claim groups: the owner-held side of the
// claim/claim-group relationship. A group holds no set of claim ids;
// the set is always materialized by querying claims for the group id.
type GroupStore struct {
	*database.BaseStore
}

func NewGroupStore(db *sqlx.DB) *GroupStore {
	return &GroupStore{BaseStore: database.NewBaseStore(db, "claim_groups")}
}

func (s *GroupStore) Create(ctx context.Context, customerID uuid.UUID, label, flightNumber string, flightDate time.Time) (ClaimGroup, error) {
	const query = `
		INSERT INTO claim_groups (id, customer_id, label, flight_number, flight_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	id := uuid.New()
	row := s.Querier(ctx).QueryRowxContext(ctx, query, id, customerID, label, flightNumber, flightDate)
	var createdAt time.Time
	if err := row.Scan(&createdAt); err != nil {
		return ClaimGroup{}, fmt.Errorf("claims: insert claim group: %w", err)
	}
	return ClaimGroup{
		ID:           id,
		CustomerID:   customerID,
		Label:        label,
		FlightNumber: flightNumber,
		FlightDate:   flightDate,
		CreatedAt:    createdAt,
	}, nil
}

func (s *GroupStore) FindByID(ctx context.Context, id uuid.UUID) (ClaimGroup, error) {
	const query = `SELECT * FROM claim_groups WHERE id = $1`
	var row claimGroupRow
	if err := sqlx.GetContext(ctx, s.Querier(ctx), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ClaimGroup{}, ErrGroupNotFound
		}
		return ClaimGroup{}, fmt.Errorf("claims: find claim group: %w", err)
	}
	return row.toGroup(), nil
}

// ConfirmConsent marks a group's consent as affirmed by its owner, so
// drafts in the group may be submitted.
func (s *GroupStore) ConfirmConsent(ctx context.Context, id uuid.UUID, ip string) error {
	const query = `
		UPDATE claim_groups
		SET consent_confirmed = true, consent_confirmed_at = now(), consent_confirmed_ip = $2
		WHERE id = $1`
	result, err := s.Querier(ctx).ExecContext(ctx, query, id, ip)
	if err != nil {
		return fmt.Errorf("claims: confirm group consent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claims: confirm group consent rows affected: %w", err)
	}
	if rows == 0 {
		return ErrGroupNotFound
	}
	return nil
}
