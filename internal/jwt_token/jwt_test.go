package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var operatorID = uuid.New()
var role = "compliance_officer"
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(operatorID, role, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, operatorID.String(), claims.OperatorID)
	assert.Equal(t, role, claims.Role)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(operatorID, role, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("different-signing-key", "test-issuer", "test-audience")
	token, err := other.GenerateAccessToken(operatorID, role, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func Test_ExtractOperatorIDFromToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(operatorID, role, expiresIn)
	require.NoError(t, err)

	got, err := jwtService.ExtractOperatorIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, operatorID, got)
}
