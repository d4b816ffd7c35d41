package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_PutGetDisable(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Now().UTC()

	require.NoError(t, s.Put(ctx, &domain.Session{
		SessionID: "s1",
		UserID:    "u1",
		Enable:    true,
		Bearer:    "token",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		User:      &domain.User{UserID: "u1"},
	}))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Active(now))
	assert.Empty(t, got.Bearer)
	assert.Nil(t, got.User)

	require.NoError(t, s.Disable(ctx, "s1", now))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.Enable)
	require.NotNil(t, got.RevokedAt)
	assert.Equal(t, now, *got.RevokedAt)

	// A second disable keeps the first revocation time.
	require.NoError(t, s.Disable(ctx, "s1", now.Add(time.Minute)))
	got, _ = s.Get(ctx, "s1")
	assert.Equal(t, now, *got.RevokedAt)
}

func TestSessionStore_Unknown(t *testing.T) {
	s := NewSessionStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.Disable(context.Background(), "nope", time.Now()), domain.ErrNotFound)
}
