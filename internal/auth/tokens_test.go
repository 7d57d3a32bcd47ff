package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpaqueToken_DigestMatchesDigestToken(t *testing.T) {
	plain, digest, err := NewOpaqueToken()
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.Equal(t, DigestToken(plain), digest)
}

func TestNewOpaqueToken_DistinctEachCall(t *testing.T) {
	plain1, _, err := NewOpaqueToken()
	require.NoError(t, err)
	plain2, _, err := NewOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, plain1, plain2)
}
