package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1)
	tok, err := m.GenerateToken(9, "jane")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(9), claims.UserID)
	assert.Equal(t, "jane", claims.Username)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTManager("other", 1).GenerateToken(9, "jane")
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingUser(t *testing.T) {
	m := NewJWTManager("secret", 1)
	tok, err := m.GenerateToken(0, "anon")
	require.NoError(t, err)
	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}
