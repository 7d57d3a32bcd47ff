package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flightclaims/claims-engine/internal/platform/database"
	"github.com/flightclaims/claims-engine/internal/platform/fieldcrypto"
)

var (
	ErrNotFound               = errors.New("claims: not found")
	ErrConcurrentModification = errors.New("claims: concurrent modification")
)

// Store persists claims and their outbox events. Booking reference and
// ticket number are envelope-encrypted at rest, sealed with a Sealer
// scoped to the claim's own id (the same pattern auth.Store uses scoped
// to the customer id, and documents.Pipeline uses scoped to the file id).
type Store struct {
	*database.BaseStore
	masterKey []byte
}

func NewStore(db *sqlx.DB, masterKey []byte) *Store {
	return &Store{BaseStore: database.NewBaseStore(db, "claims"), masterKey: masterKey}
}

func (s *Store) sealer(claimID uuid.UUID) *fieldcrypto.Sealer {
	return fieldcrypto.NewSealer(s.masterKey, claimID.String())
}

// toClaim decrypts a row's sealed fields against a Sealer scoped to its
// own id, since claimRow.toClaim cannot do so without the master key.
func (s *Store) toClaim(row claimRow) (Claim, error) {
	c := row.toClaim()
	sealer := s.sealer(row.ID)
	bookingRef, err := sealer.Open("booking_reference", row.BookingReferenceSealed)
	if err != nil {
		return Claim{}, fmt.Errorf("claims: decrypt booking reference: %w", err)
	}
	ticketNumber, err := sealer.Open("ticket_number", row.TicketNumberSealed)
	if err != nil {
		return Claim{}, fmt.Errorf("claims: decrypt ticket number: %w", err)
	}
	c.BookingReference = bookingRef
	c.TicketNumber = ticketNumber
	return c, nil
}

func (s *Store) Create(ctx context.Context, c Claim) (Claim, error) {
	id := uuid.New()
	sealer := s.sealer(id)
	bookingRefSealed, err := sealer.Seal("booking_reference", c.BookingReference)
	if err != nil {
		return Claim{}, fmt.Errorf("claims: seal booking reference: %w", err)
	}
	ticketNumberSealed, err := sealer.Seal("ticket_number", c.TicketNumber)
	if err != nil {
		return Claim{}, fmt.Errorf("claims: seal ticket number: %w", err)
	}

	const query = `
		INSERT INTO claims (
			id, customer_id, claim_group_id, status, airline, flight_number, flight_date,
			departure_iata, arrival_iata, incident_type, incident_description,
			booking_reference_ciphertext, ticket_number_ciphertext,
			terms_accepted_at, terms_accepted_ip, privacy_accepted_at, privacy_accepted_ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, version, created_at, updated_at`

	row := s.Querier(ctx).QueryRowxContext(ctx, query,
		id, c.CustomerID, c.ClaimGroupID, StatusDraft, c.Airline, c.FlightNumber, c.FlightDate,
		c.DepartureIATA, c.ArrivalIATA, c.IncidentType, c.IncidentDescription,
		bookingRefSealed, ticketNumberSealed,
		c.TermsAcceptedAt, c.TermsAcceptedIP, c.PrivacyAcceptedAt, c.PrivacyAcceptedIP)

	var out struct {
		ID        uuid.UUID `db:"id"`
		Version   int       `db:"version"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := row.Scan(&out.ID, &out.Version, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Claim{}, fmt.Errorf("claims: insert: %w", err)
	}
	c.ID = out.ID
	c.Status = StatusDraft
	c.Version = out.Version
	c.CreatedAt = out.CreatedAt
	c.UpdatedAt = out.UpdatedAt
	return c, nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (Claim, error) {
	const query = `SELECT * FROM claims WHERE id = $1`
	var row claimRow
	if err := sqlx.GetContext(ctx, s.Querier(ctx), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, fmt.Errorf("claims: find by id: %w", err)
	}
	return s.toClaim(row)
}

// ExistsNonDraftDuplicate reports whether a non-draft claim already exists for
// the same (customer, flight_number, flight_date) triple, the guard spec
// names on draft -> submitted.
func (s *Store) ExistsNonDraftDuplicate(ctx context.Context, customerID uuid.UUID, flightNumber string, flightDate time.Time, excludeClaimID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE customer_id = $1 AND flight_number = $2 AND flight_date = $3
			  AND status != 'draft' AND id != $4
		)`
	var exists bool
	if err := sqlx.GetContext(ctx, s.Querier(ctx), &exists, query, customerID, flightNumber, flightDate, excludeClaimID); err != nil {
		return false, fmt.Errorf("claims: check duplicate claim: %w", err)
	}
	return exists, nil
}

func (s *Store) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]Claim, error) {
	query, args := database.NewSelectBuilder("claims").
		WhereEq("customer_id", customerID).
		OrderBy("created_at", true).
		Build()

	var rows []claimRow
	if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("claims: list by customer: %w", err)
	}
	out := make([]Claim, 0, len(rows))
	for _, r := range rows {
		c, err := s.toClaim(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]Claim, error) {
	query, args := database.NewSelectBuilder("claims").
		WhereEq("claim_group_id", groupID).
		OrderBy("created_at", false).
		Build()

	var rows []claimRow
	if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("claims: list by group: %w", err)
	}
	out := make([]Claim, 0, len(rows))
	for _, r := range rows {
		c, err := s.toClaim(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// transitionParams carries the fields an ApplyTransition call may need to
// record beyond the status change itself.
type transitionParams struct {
	ActorID *uuid.UUID
	Reason  string
}

// ApplyTransition performs a version-stamped optimistic-concurrency
// update: the WHERE clause pins both the claim's ID and its last-known
// version, so a concurrent writer that got there first causes this
// UPDATE to affect zero rows instead of silently clobbering their change.
func (s *Store) ApplyTransition(ctx context.Context, id uuid.UUID, expectedVersion int, to Status, params transitionParams, mutate func(*Claim)) (Claim, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return Claim{}, err
	}
	if current.Version != expectedVersion {
		return Claim{}, ErrConcurrentModification
	}
	if err := ValidateTransition(current.Status, to); err != nil {
		return Claim{}, err
	}

	updated := current
	updated.Status = to
	if mutate != nil {
		mutate(&updated)
	}

	const query = `
		UPDATE claims SET
			status = $3, version = version + 1,
			scheduled_departure = $4, actual_departure = $5,
			scheduled_arrival = $6, actual_arrival = $7, delay_minutes = $8,
			distance_km = $9, eligibility_tier = $10, compensation_amount = $11,
			compensation_currency = $12, extraordinary_flagged = $13,
			rejection_reason = $14, assignee_id = $15, reviewer_id = $16,
			submitted_at = $17, decided_at = $18, paid_at = $19, closed_at = $20,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at`

	row := s.Querier(ctx).QueryRowxContext(ctx, query,
		id, expectedVersion, to,
		updated.ScheduledDeparture, updated.ActualDeparture,
		updated.ScheduledArrival, updated.ActualArrival, updated.DelayMinutes,
		toNullDecimal(updated.DistanceKM), updated.EligibilityTier, toNullDecimal(updated.CompensationAmount),
		updated.CompensationCurrency, updated.ExtraordinaryFlagged,
		updated.RejectionReason, updated.AssigneeID, updated.ReviewerID,
		updated.SubmittedAt, updated.DecidedAt, updated.PaidAt, updated.ClosedAt)

	var newVersion int
	var updatedAt time.Time
	if err := row.Scan(&newVersion, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Claim{}, ErrConcurrentModification
		}
		return Claim{}, fmt.Errorf("claims: apply transition: %w", err)
	}
	updated.Version = newVersion
	updated.UpdatedAt = updatedAt

	if err := s.recordHistory(ctx, id, current.Status, to, params); err != nil {
		return Claim{}, err
	}
	return updated, nil
}

func (s *Store) recordHistory(ctx context.Context, claimID uuid.UUID, from, to Status, params transitionParams) error {
	const query = `
		INSERT INTO claim_status_history (claim_id, from_status, to_status, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5)`
	var reason interface{}
	if params.Reason != "" {
		reason = params.Reason
	}
	_, err := s.Querier(ctx).ExecContext(ctx, query, claimID, from, to, params.ActorID, reason)
	if err != nil {
		return fmt.Errorf("claims: record status history: %w", err)
	}
	return nil
}

// ListDraftsDueForReminder returns drafts whose age has crossed their
// next reminder threshold and haven't been sent that reminder yet.
// stageThresholds is indexed by reminder_stage (0..len-1): stage 0 fires
// at T+30min, stage 1 at T+5d, and so on.
func (s *Store) ListDraftsDueForReminder(ctx context.Context, stageThresholds []time.Duration, now time.Time) ([]Claim, error) {
	var out []Claim
	for stage, threshold := range stageThresholds {
		cutoff := now.Add(-threshold)
		const query = `
			SELECT * FROM claims
			WHERE status = 'draft' AND reminder_stage = $1 AND created_at <= $2`
		var rows []claimRow
		if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, stage, cutoff); err != nil {
			return nil, fmt.Errorf("claims: list drafts due for reminder: %w", err)
		}
		for _, r := range rows {
			c, err := s.toClaim(r)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// MarkReminderSent advances a draft's reminder_stage so the same
// reminder is never sent twice.
func (s *Store) MarkReminderSent(ctx context.Context, id uuid.UUID, stage int) error {
	const query = `UPDATE claims SET reminder_stage = $2 + 1 WHERE id = $1 AND reminder_stage = $2`
	_, err := s.Querier(ctx).ExecContext(ctx, query, id, stage)
	if err != nil {
		return fmt.Errorf("claims: mark reminder sent: %w", err)
	}
	return nil
}

// ListDraftsOlderThan returns drafts created before cutoff, for the
// draft-discard sweep.
func (s *Store) ListDraftsOlderThan(ctx context.Context, cutoff time.Time) ([]Claim, error) {
	const query = `SELECT * FROM claims WHERE status = 'draft' AND created_at < $1`
	var rows []claimRow
	if err := sqlx.SelectContext(ctx, s.Querier(ctx), &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("claims: list stale drafts: %w", err)
	}
	out := make([]Claim, 0, len(rows))
	for _, r := range rows {
		c, err := s.toClaim(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// EnqueueOutboxTask writes a task to the outbox within the same
// transaction as a status transition, so a side effect is only ever
// scheduled if the transition it depends on actually committed.
func (s *Store) EnqueueOutboxTask(ctx context.Context, queue, taskName string, payload interface{}, idempotencyKey string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("claims: marshal outbox payload: %w", err)
	}
	const query = `
		INSERT INTO task_outbox (queue, task_name, payload, idempotency_key)
		VALUES ($1, $2, $3, $4)`
	_, err = s.Querier(ctx).ExecContext(ctx, query, queue, taskName, body, idempotencyKey)
	if err != nil {
		return fmt.Errorf("claims: enqueue outbox task: %w", err)
	}
	return nil
}
