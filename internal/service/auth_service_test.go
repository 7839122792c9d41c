package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)
	userID := uuid.New()

	token, err := svc.IssueToken(userID)
	require.NoError(t, err)

	got, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	svc := NewAuthService("test-secret", time.Hour)
	token, err := svc.IssueToken(uuid.New())
	require.NoError(t, err)

	other := NewAuthService("another-secret", time.Hour)
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewAuthService("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.IssueToken(uuid.New())
	require.NoError(t, err)
	_, err = svc.ParseToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.IssueToken(uuid.Nil)
	assert.Error(t, err)
}
