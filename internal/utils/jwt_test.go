package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	bizID := uuid.New()

	signed, err := GenerateToken(testSecret, userID, RoleBusinessOwner, &bizID, "", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(testSecret, signed)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RoleBusinessOwner, claims.Role)
	require.NotNil(t, claims.BusinessID)
	assert.Equal(t, bizID, *claims.BusinessID)
	assert.Empty(t, claims.AdminCity)
}

func TestAdminToken(t *testing.T) {
	signed, err := GenerateToken(testSecret, uuid.New(), RoleCityAdmin, nil, "springfield", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(testSecret, signed)
	require.NoError(t, err)

	assert.Equal(t, RoleCityAdmin, claims.Role)
	assert.Equal(t, "springfield", claims.AdminCity)
	assert.Nil(t, claims.BusinessID)
}

func TestValidateWrongSecret(t *testing.T) {
	signed, err := GenerateToken(testSecret, uuid.New(), RoleBusinessOwner, nil, "", time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", signed)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	signed, err := GenerateToken(testSecret, uuid.New(), RoleBusinessOwner, nil, "", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(testSecret, signed)
	assert.Error(t, err)
}

func TestValidateGarbage(t *testing.T) {
	_, err := ValidateToken(testSecret, "not-a-token")
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "idx" (SQLSTATE 23505)`)))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: loyalty_programs.business_id")))
}
