package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/flightclaims/claims-engine/internal/auth"
)

func newTestIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer([]byte("test-secret-at-least-32-bytes!!"), "claims-engine-test", 15*time.Minute)
}

func TestRequireAuth_BypassesPublicPaths(t *testing.T) {
	issuer := newTestIssuer()
	var sawActor bool
	h := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawActor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, sawActor)
}

func TestRequireAuth_RejectsMissingBearerToken(t *testing.T) {
	issuer := newTestIssuer()
	h := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/claims", nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_AttachesActorOnValidToken(t *testing.T) {
	issuer := newTestIssuer()
	customerID := uuid.New()
	token, _, err := issuer.Issue(customerID, string(auth.RoleCustomer))
	require.NoError(t, err)

	var actor Actor
	var ok bool
	h := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/claims", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	require.Equal(t, customerID, actor.CustomerID)
	require.Equal(t, auth.RoleCustomer, actor.Role)
}

func TestRequireAuth_RejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer()
	otherIssuer := auth.NewTokenIssuer([]byte("a-completely-different-secret-!"), "claims-engine-test", 15*time.Minute)
	token, _, err := otherIssuer.Issue(uuid.New(), string(auth.RoleCustomer))
	require.NoError(t, err)

	h := RequireAuth(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/claims", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_ForbidsActorWithoutAllowedRole(t *testing.T) {
	h := RequireRole(auth.RoleAgent, auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/claims/x/approve", nil)
	req = req.WithContext(withActor(req.Context(), Actor{CustomerID: uuid.New(), Role: auth.RoleCustomer}))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRole_AllowsActorWithAllowedRole(t *testing.T) {
	h := RequireRole(auth.RoleAgent, auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/claims/x/approve", nil)
	req = req.WithContext(withActor(req.Context(), Actor{CustomerID: uuid.New(), Role: auth.RoleAgent}))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestActor_IsStaff(t *testing.T) {
	require.True(t, Actor{Role: auth.RoleAgent}.IsStaff())
	require.True(t, Actor{Role: auth.RoleAdmin}.IsStaff())
	require.False(t, Actor{Role: auth.RoleCustomer}.IsStaff())
}
