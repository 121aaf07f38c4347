package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peercourt/internal/service"
)

func TestValidateGuestToken(t *testing.T) {
	auth := service.NewAuthService("test-secret")
	require.True(t, auth.Enabled())

	token, err := auth.GenerateGuestToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateGuestToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateGuestTokenErrors(t *testing.T) {
	auth := service.NewAuthService("test-secret")

	t.Run("garbage", func(t *testing.T) {
		_, err := auth.ValidateGuestToken("not.a.jwt")
		assert.ErrorIs(t, err, service.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := auth.GenerateGuestToken("alice", -time.Minute)
		require.NoError(t, err)
		_, err = auth.ValidateGuestToken(token)
		assert.ErrorIs(t, err, service.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := service.NewAuthService("other-secret")
		token, err := other.GenerateGuestToken("alice", time.Hour)
		require.NoError(t, err)
		_, err = auth.ValidateGuestToken(token)
		assert.ErrorIs(t, err, service.ErrInvalidToken)
	})
}

func TestValidateGuestTokenDisabled(t *testing.T) {
	auth := service.NewAuthService("")
	assert.False(t, auth.Enabled())

	signer := service.NewAuthService("test-secret")
	token, err := signer.GenerateGuestToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = auth.ValidateGuestToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}
