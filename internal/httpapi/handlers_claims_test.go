package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/claims"
)

var testClaimsMasterKey = []byte("0123456789abcdef0123456789abcdef")

func newMockClaimHandlers(t *testing.T) (*ClaimHandlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	store := claims.NewStore(sqlxDB, testClaimsMasterKey)
	groupStore := claims.NewGroupStore(sqlxDB)
	return NewClaimHandlers(store, groupStore, claims.NewService(store, groupStore)), mock
}

func withRouteParam(r *http.Request, key, value string) *http.Request {
	if rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context); ok {
		rctx.URLParams.Add(key, value)
		return r
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func requestAsActor(method, target string, body interface{}, actor Actor) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	return r.WithContext(withActor(r.Context(), actor))
}

func TestCreateDraft_RequiresTermsAndPrivacyAcceptance(t *testing.T) {
	h, _ := newMockClaimHandlers(t)
	actor := Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer}

	r := requestAsActor(http.MethodPost, "/v1/claims", createDraftRequest{
		FlightNumber:  "BA123",
		FlightDate:    "2026-01-02",
		DepartureIATA: "LHR",
		ArrivalIATA:   "JFK",
		TermsAccepted: false,
	}, actor)
	rec := httptest.NewRecorder()

	h.CreateDraft(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDraft_InsertsAndReturnsClaim(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	actor := Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer}
	claimID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claims")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(claimID, 1, time.Now(), time.Now()))

	r := requestAsActor(http.MethodPost, "/v1/claims", createDraftRequest{
		FlightNumber:    "BA123",
		FlightDate:      "2026-01-02",
		DepartureIATA:   "LHR",
		ArrivalIATA:     "JFK",
		TermsAccepted:   true,
		PrivacyAccepted: true,
	}, actor)
	rec := httptest.NewRecorder()

	h.CreateDraft(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, claimID.String(), resp.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectFindClaimRow(mock sqlmock.Sqlmock, claimID, customerID uuid.UUID) {
	rows := sqlmock.NewRows([]string{
		"id", "customer_id", "claim_group_id", "status", "version", "flight_number", "flight_date",
		"departure_iata", "arrival_iata", "scheduled_arrival", "actual_arrival", "delay_minutes",
		"distance_km", "eligibility_tier", "compensation_amount", "compensation_currency",
		"extraordinary_flagged", "terms_accepted_at", "privacy_accepted_at", "submitted_at",
		"decided_at", "paid_at", "closed_at", "created_at", "updated_at",
	}).AddRow(
		claimID, customerID, nil, "draft", 1, "BA123", time.Now(),
		"LHR", "JFK", nil, nil, nil,
		nil, nil, nil, "EUR",
		false, nil, nil, nil,
		nil, nil, nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM claims WHERE id = $1")).WithArgs(claimID).WillReturnRows(rows)
}

func TestGet_OwnerCanViewTheirOwnClaim(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(mock, claimID, customerID)

	r := requestAsActor(http.MethodGet, "/v1/claims/"+claimID.String(), nil, Actor{CustomerID: customerID, Role: auth.RoleCustomer})
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.Get(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_ForbidsNonOwnerNonStaff(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(mock, claimID, customerID)

	r := requestAsActor(http.MethodGet, "/v1/claims/"+claimID.String(), nil, Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer})
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.Get(rec, r)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGet_StaffCanViewAnyClaim(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(mock, claimID, customerID)

	r := requestAsActor(http.MethodGet, "/v1/claims/"+claimID.String(), nil, Actor{CustomerID: uuid.New(), Role: auth.RoleAgent})
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.Get(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGet_InvalidClaimIDIsRejected(t *testing.T) {
	h, _ := newMockClaimHandlers(t)
	r := requestAsActor(http.MethodGet, "/v1/claims/not-a-uuid", nil, Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer})
	r = withRouteParam(r, "claimID", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.Get(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMine_ReturnsOnlyCallersClaims(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	customerID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "customer_id", "claim_group_id", "status", "version", "flight_number", "flight_date",
		"departure_iata", "arrival_iata", "scheduled_arrival", "actual_arrival", "delay_minutes",
		"distance_km", "eligibility_tier", "compensation_amount", "compensation_currency",
		"extraordinary_flagged", "terms_accepted_at", "privacy_accepted_at", "submitted_at",
		"decided_at", "paid_at", "closed_at", "created_at", "updated_at",
	}).AddRow(
		uuid.New(), customerID, nil, "draft", 1, "BA123", time.Now(),
		"LHR", "JFK", nil, nil, nil,
		nil, nil, nil, "EUR",
		false, nil, nil, nil,
		nil, nil, nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM claims WHERE customer_id = $1 ORDER BY created_at DESC")).
		WithArgs(customerID).WillReturnRows(rows)

	r := requestAsActor(http.MethodGet, "/v1/claims", nil, Actor{CustomerID: customerID, Role: auth.RoleCustomer})
	rec := httptest.NewRecorder()

	h.ListMine(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []claimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddNote_CustomerCannotMarkNoteInternal(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	noteID := uuid.New()
	expectFindClaimRow(mock, claimID, customerID)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claim_notes")).
		WithArgs(claimID, customerID, "please hurry", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(noteID, time.Now()))

	r := requestAsActor(http.MethodPost, "/v1/claims/"+claimID.String()+"/notes", noteRequest{
		Body:     "please hurry",
		Internal: true,
	}, Actor{CustomerID: customerID, Role: auth.RoleCustomer})
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.AddNote(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp noteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Internal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddNote_StaffCanMarkNoteInternal(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	agentID := uuid.New()
	noteID := uuid.New()
	expectFindClaimRow(mock, claimID, customerID)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO claim_notes")).
		WithArgs(claimID, agentID, "fraud flag under review", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(noteID, time.Now()))

	r := requestAsActor(http.MethodPost, "/v1/claims/"+claimID.String()+"/notes", noteRequest{
		Body:     "fraud flag under review",
		Internal: true,
	}, Actor{CustomerID: agentID, Role: auth.RoleAgent})
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.AddNote(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp noteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Internal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotes_FiltersInternalNotesForCustomerViewer(t *testing.T) {
	h, mock := newMockClaimHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(mock, claimID, customerID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM claim_notes WHERE claim_id = $1 AND internal = false ORDER BY created_at ASC")).
		WithArgs(claimID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "claim_id", "author_id", "body", "internal", "created_at"}).
			AddRow(uuid.New(), claimID, customerID, "hello", false, time.Now()))

	r := requestAsActor(http.MethodGet, "/v1/claims/"+claimID.String()+"/notes", nil, Actor{CustomerID: customerID, Role: auth.RoleCustomer})
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.ListNotes(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
