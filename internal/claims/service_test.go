package claims

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/flightclaims/claims-engine/internal/eligibility"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	store := NewStore(sqlxDB, testMasterKey)
	groupStore := NewGroupStore(sqlxDB)
	return NewService(store, groupStore), mock
}

func claimRowColumns() []string {
	return []string{
		"id", "customer_id", "claim_group_id", "status", "version", "airline", "flight_number", "flight_date",
		"departure_iata", "arrival_iata", "incident_type", "incident_description",
		"scheduled_departure", "actual_departure", "scheduled_arrival", "actual_arrival", "delay_minutes",
		"distance_km", "eligibility_tier", "compensation_amount", "compensation_currency",
		"extraordinary_flagged", "rejection_reason", "assignee_id", "reviewer_id",
		"booking_reference_ciphertext", "ticket_number_ciphertext", "reminder_stage",
		"terms_accepted_at", "terms_accepted_ip", "privacy_accepted_at", "privacy_accepted_ip",
		"submitted_at", "decided_at", "paid_at", "closed_at", "created_at", "updated_at",
	}
}

// addClaimRow appends one claim row with the given status/version/compensation
// and an optional claim_group_id (nil for none).
func addClaimRow(rows *sqlmock.Rows, claimID, customerID uuid.UUID, groupID interface{}, status string, version int, compensationAmount interface{}) *sqlmock.Rows {
	return rows.AddRow(
		claimID, customerID, groupID, status, version, "BA", "BA123", time.Now(),
		"FRA", "IAD", "delay", "",
		nil, nil, nil, nil, nil,
		nil, nil, compensationAmount, "EUR",
		false, nil, nil, nil,
		"", "", 0,
		nil, "", nil, "",
		nil, nil, nil, nil, time.Now(), time.Now(),
	)
}

func flightFactsFixture() eligibility.FlightFacts {
	return eligibility.FlightFacts{
		DepartureIATA:      "FRA",
		ArrivalIATA:        "IAD",
		ScheduledDeparture: time.Now(),
		ScheduledArrival:   time.Now().Add(9 * time.Hour),
		Status:             eligibility.StatusDelayed,
		Incident:           eligibility.IncidentDelay,
	}
}

func TestApprove_RefusesWhenCompensationAmountNotSet(t *testing.T) {
	svc, mock := newMockService(t)
	claimID := uuid.New()
	customerID := uuid.New()

	mock.ExpectBegin()
	rows := addClaimRow(sqlmock.NewRows(claimRowColumns()), claimID, customerID, nil, string(StatusUnderReview), 1, nil)
	mock.ExpectQuery("SELECT \\* FROM claims WHERE id = \\$1").WithArgs(claimID).WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), claimID, 1, customerID)
	require.ErrorIs(t, err, ErrCompensationNotSet)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReject_RefusesEmptyReason(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Reject(context.Background(), uuid.New(), 1, uuid.New(), "")
	require.ErrorIs(t, err, ErrRejectionReasonRequired)
}

func TestReverse_RefusesEmptyReason(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Reverse(context.Background(), uuid.New(), 1, uuid.New(), "")
	require.ErrorIs(t, err, ErrRejectionReasonRequired)
}

func TestReopen_RefusesEmptyReason(t *testing.T) {
	svc, _ := newMockService(t)
	_, err := svc.Reopen(context.Background(), uuid.New(), 1, uuid.New(), "")
	require.ErrorIs(t, err, ErrRejectionReasonRequired)
}

func TestSubmit_RefusesWhenGroupConsentNotConfirmed(t *testing.T) {
	svc, mock := newMockService(t)
	claimID := uuid.New()
	customerID := uuid.New()
	groupID := uuid.New()

	mock.ExpectBegin()
	claimRows := addClaimRow(sqlmock.NewRows(claimRowColumns()), claimID, customerID, groupID, string(StatusDraft), 1, nil)
	mock.ExpectQuery("SELECT \\* FROM claims WHERE id = \\$1").WithArgs(claimID).WillReturnRows(claimRows)

	groupRows := sqlmock.NewRows([]string{
		"id", "customer_id", "label", "flight_number", "flight_date",
		"consent_confirmed", "consent_confirmed_at", "consent_confirmed_ip", "created_at",
	}).AddRow(groupID, customerID, "family trip", "BA123", time.Now(), false, nil, "", time.Now())
	mock.ExpectQuery("SELECT \\* FROM claim_groups WHERE id = \\$1").WithArgs(groupID).WillReturnRows(groupRows)
	mock.ExpectRollback()

	_, err := svc.Submit(context.Background(), claimID, 1, eligibility.RegionEU, flightFactsFixture())
	require.ErrorIs(t, err, ErrConsentMissing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmit_RefusesDuplicateNonDraftClaim(t *testing.T) {
	svc, mock := newMockService(t)
	claimID := uuid.New()
	customerID := uuid.New()

	mock.ExpectBegin()
	claimRows := addClaimRow(sqlmock.NewRows(claimRowColumns()), claimID, customerID, nil, string(StatusDraft), 1, nil)
	mock.ExpectQuery("SELECT \\* FROM claims WHERE id = \\$1").WithArgs(claimID).WillReturnRows(claimRows)

	mock.ExpectQuery("SELECT EXISTS").WithArgs(customerID, "BA123", sqlmock.AnyArg(), claimID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := svc.Submit(context.Background(), claimID, 1, eligibility.RegionEU, flightFactsFixture())
	require.ErrorIs(t, err, ErrDuplicateClaim)
	require.NoError(t, mock.ExpectationsWereMet())
}
