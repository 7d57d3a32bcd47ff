package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "claims-engine", time.Minute)
	customerID := uuid.New()

	token, exp, err := issuer.Issue(customerID, "customer")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, time.Second)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, customerID, claims.CustomerID)
	assert.Equal(t, "customer", claims.Role)
}

func TestTokenIssuer_ExpiredTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "claims-engine", -time.Minute)
	token, _, err := issuer.Issue(uuid.New(), "customer")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsNonHMACAlgorithm(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "claims-engine", time.Minute)

	// Forge a token claiming "none" algorithm.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		CustomerID: uuid.New(),
		Role:       "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_WrongSecretRejected(t *testing.T) {
	issuer := NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "claims-engine", time.Minute)
	token, _, err := issuer.Issue(uuid.New(), "customer")
	require.NoError(t, err)

	other := NewTokenIssuer([]byte("fedcba9876543210fedcba9876543210"), "claims-engine", time.Minute)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
