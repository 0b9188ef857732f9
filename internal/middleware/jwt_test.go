package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyHS256(t *testing.T) {
	v, err := NewVerifier("HS256", "test-secret", "")
	require.NoError(t, err)

	token, err := SignJWT("alice", "test-secret", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v, err := NewVerifier("HS256", "test-secret", "")
	require.NoError(t, err)

	token, err := SignJWT("alice", "test-secret", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v, err := NewVerifier("HS256", "test-secret", "")
	require.NoError(t, err)

	token, err := SignJWT("alice", "other-secret", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("HS256", "", "")
	assert.Error(t, err)
}

func TestVerifierRejectsUnknownAlg(t *testing.T) {
	_, err := NewVerifier("none", "x", "")
	assert.Error(t, err)
}
