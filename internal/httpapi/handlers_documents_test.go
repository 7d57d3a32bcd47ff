package httpapi

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/flightclaims/claims-engine/internal/auth"
	"github.com/flightclaims/claims-engine/internal/claims"
	"github.com/flightclaims/claims-engine/internal/documents"
)

func newMockDocumentHandlers(t *testing.T) (*DocumentHandlers, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()
	claimDB, claimMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { claimDB.Close() })
	claimStore := claims.NewStore(sqlx.NewDb(claimDB, "postgres"), testClaimsMasterKey)

	docDB, docMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { docDB.Close() })
	docStore := documents.NewStore(sqlx.NewDb(docDB, "postgres"))

	return NewDocumentHandlers(claimStore, docStore, nil), claimMock, docMock
}

func multipartUploadBody(t *testing.T, fields map[string]string, includeFile bool) (contentType string, body *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if includeFile {
		part, err := w.CreateFormFile("file", "evidence.pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 fake boarding pass"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType(), buf
}

func TestUpload_ForbidsNonOwnerNonStaff(t *testing.T) {
	h, claimMock, _ := newMockDocumentHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	ct, body := multipartUploadBody(t, map[string]string{"document_type": "boarding_pass"}, true)
	r := httptest.NewRequest(http.MethodPost, "/v1/claims/"+claimID.String()+"/files", body)
	r.Header.Set("Content-Type", ct)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.Upload(rec, r)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpload_RequiresDocumentType(t *testing.T) {
	h, claimMock, _ := newMockDocumentHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	ct, body := multipartUploadBody(t, map[string]string{}, true)
	r := httptest.NewRequest(http.MethodPost, "/v1/claims/"+claimID.String()+"/files", body)
	r.Header.Set("Content-Type", ct)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.Upload(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_RequiresFilePart(t *testing.T) {
	h, claimMock, _ := newMockDocumentHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	ct, body := multipartUploadBody(t, map[string]string{"document_type": "boarding_pass"}, false)
	r := httptest.NewRequest(http.MethodPost, "/v1/claims/"+claimID.String()+"/files", body)
	r.Header.Set("Content-Type", ct)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.Upload(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList_ForbidsNonOwnerNonStaff(t *testing.T) {
	h, claimMock, _ := newMockDocumentHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	r := httptest.NewRequest(http.MethodGet, "/v1/claims/"+claimID.String()+"/files", nil)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.List(rec, r)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestList_ReturnsOwnersFiles(t *testing.T) {
	h, claimMock, docMock := newMockDocumentHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	docMock.ExpectQuery(`SELECT \* FROM claim_files WHERE claim_id = \$1`).
		WithArgs(claimID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "claim_id", "document_type", "storage_path", "content_type", "size_bytes",
			"sha256_ciphertext", "encryption_scheme", "uploaded_by", "deleted_at", "created_at",
		}).AddRow(uuid.New(), claimID, "boarding_pass", "claims/x/y", "application/pdf", 1024,
			"deadbeef", "aes-256-gcm", customerID, nil, time.Now()))

	r := httptest.NewRequest(http.MethodGet, "/v1/claims/"+claimID.String()+"/files", nil)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	rec := httptest.NewRecorder()

	h.List(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, claimMock.ExpectationsWereMet())
	require.NoError(t, docMock.ExpectationsWereMet())
}

func TestDownload_RejectsInvalidFileIDFormat(t *testing.T) {
	h, claimMock, _ := newMockDocumentHandlers(t)
	claimID := uuid.New()
	customerID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	r := httptest.NewRequest(http.MethodGet, "/v1/claims/"+claimID.String()+"/files/not-a-uuid", nil)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	r = withRouteParam(r, "fileID", "not-a-uuid")
	rec := httptest.NewRecorder()

	h.Download(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownload_RejectsFileBelongingToAnotherClaim(t *testing.T) {
	h, claimMock, docMock := newMockDocumentHandlers(t)
	claimID := uuid.New()
	otherClaimID := uuid.New()
	customerID := uuid.New()
	fileID := uuid.New()
	expectFindClaimRow(claimMock, claimID, customerID)

	docMock.ExpectQuery(`SELECT \* FROM claim_files WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(fileID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "claim_id", "document_type", "storage_path", "content_type", "size_bytes",
			"sha256_ciphertext", "encryption_scheme", "uploaded_by", "deleted_at", "created_at",
		}).AddRow(fileID, otherClaimID, "boarding_pass", "claims/x/y", "application/pdf", 1024,
			"deadbeef", "aes-256-gcm", customerID, nil, time.Now()))

	r := httptest.NewRequest(http.MethodGet, "/v1/claims/"+claimID.String()+"/files/"+fileID.String(), nil)
	r = r.WithContext(withActor(r.Context(), Actor{CustomerID: customerID, Role: auth.RoleCustomer}))
	r = withRouteParam(r, "claimID", claimID.String())
	r = withRouteParam(r, "fileID", fileID.String())
	rec := httptest.NewRecorder()

	h.Download(rec, r)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, claimMock.ExpectationsWereMet())
	require.NoError(t, docMock.ExpectationsWereMet())
}
