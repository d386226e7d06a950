package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 24)

	tokenString, err := m.GenerateSessionToken("sess-1")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tokenString, err := NewJWTManager("secret-a", 24).GenerateSessionToken("sess-1")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", 24).VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", -1)

	tokenString, err := m.GenerateSessionToken("sess-1")
	require.NoError(t, err)

	_, err = m.VerifyToken(tokenString)
	assert.Error(t, err)
}
