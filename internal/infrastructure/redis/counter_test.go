package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-passwordless/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounter(t *testing.T) (*Counter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewCounter(rdb, "rl"), mr
}

func TestCounter_FixedWindow(t *testing.T) {
	c, mr := newTestCounter(t)
	ctx := context.Background()

	n, ttl, err := c.Incr(ctx, "otp:+15551234567", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)
	assert.True(t, mr.Exists("rl:otp:+15551234567"))

	mr.FastForward(20 * time.Second)
	n, ttl, err = c.Incr(ctx, "otp:+15551234567", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 40*time.Second, ttl, "later hits do not extend the window")

	mr.FastForward(40 * time.Second)
	n, _, err = c.Incr(ctx, "otp:+15551234567", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCounter_Reset(t *testing.T) {
	c, mr := newTestCounter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := c.Incr(ctx, "k", time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, c.Reset(ctx, "k"))
	assert.False(t, mr.Exists("rl:k"))

	n, ttl, err := c.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)
}

func TestCounter_RestoresMissingExpiry(t *testing.T) {
	c, mr := newTestCounter(t)
	require.NoError(t, mr.Set("rl:k", "5"))

	n, ttl, err := c.Incr(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
	assert.Equal(t, time.Minute, ttl)
	assert.Equal(t, time.Minute, mr.TTL("rl:k"))
}

func TestCounter_UnavailableIsStorageError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	c := NewCounter(rdb, "")
	mr.Close()

	_, _, err = c.Incr(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, domain.ErrStorage)
}
