package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/flightclaims/claims-engine/internal/auth"
)

func newMockCustomerHandlers(t *testing.T) (*CustomerHandlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	service := auth.NewService(sqlx.NewDb(db, "postgres"), nil, nil, nil, auth.Config{})
	return NewCustomerHandlers(service), mock
}

func TestAnonymize_RejectsUnauthenticatedCaller(t *testing.T) {
	h, _ := newMockCustomerHandlers(t)
	r := httptest.NewRequest(http.MethodPost, "/v1/account/anonymize", nil)
	rec := httptest.NewRecorder()

	h.Anonymize(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnonymize_ScrubsAccountOnSuccess(t *testing.T) {
	h, mock := newMockCustomerHandlers(t)
	customerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").WithArgs(customerID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE magic_link_tokens").WithArgs(customerID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE password_reset_tokens").WithArgs(customerID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE customers").WithArgs(customerID, "anonymized:"+customerID.String()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r := httptest.NewRequest(http.MethodPost, "/v1/account/anonymize", nil)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	rec := httptest.NewRecorder()

	h.Anonymize(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnonymize_RollsBackAndReturns500OnFailure(t *testing.T) {
	h, mock := newMockCustomerHandlers(t)
	customerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refresh_tokens").WithArgs(customerID).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	r := httptest.NewRequest(http.MethodPost, "/v1/account/anonymize", nil)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	rec := httptest.NewRecorder()

	h.Anonymize(rec, r)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
