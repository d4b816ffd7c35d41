package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var sendPolicy = config.Policy{Max: 3, Window: time.Minute}

func TestAttempt_ThreePerMinute(t *testing.T) {
	clk := &fakeClock{t: t0}
	l := NewLimiter(memory.NewCounterWithClock(clk.Now))
	ctx := context.Background()
	key := Key(ActionMagicLink, "a@x.com")

	for i := 1; i <= 3; i++ {
		d, err := l.Attempt(ctx, key, sendPolicy)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.NoError(t, d.Err())
		clk.Advance(5 * time.Second)
	}

	d, err := l.Attempt(ctx, key, sendPolicy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 45*time.Second, d.RetryAfter)

	var rl *domain.RateLimitedError
	require.True(t, errors.As(d.Err(), &rl))
	assert.Equal(t, 45, rl.RetryAfterSeconds())
	assert.ErrorIs(t, d.Err(), domain.ErrRateLimited)

	clk.Advance(45 * time.Second)
	d, err = l.Attempt(ctx, key, sendPolicy)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a new window opens once the old one closes")
	assert.Equal(t, int64(1), d.Count)
}

func TestAttempt_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(memory.NewCounter())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := l.Attempt(ctx, Key(ActionOTP, "+15551234567"), sendPolicy)
		require.NoError(t, err)
	}

	d, err := l.Attempt(ctx, Key(ActionOTPVerify, "+15551234567"), sendPolicy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Attempt(ctx, Key(ActionOTP, "+15550000000"), sendPolicy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAttempt_ConcurrentCallersNeverExceedMax(t *testing.T) {
	l := NewLimiter(memory.NewCounter())
	ctx := context.Background()
	key := Key(ActionMagicLink, "race@x.com")

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Attempt(ctx, key, sendPolicy)
			if err == nil && d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), allowed.Load())
}

func TestClear(t *testing.T) {
	l := NewLimiter(memory.NewCounter())
	ctx := context.Background()
	key := Key(ActionOTPVerify, "+15551234567")

	for i := 0; i < 3; i++ {
		_, err := l.Attempt(ctx, key, sendPolicy)
		require.NoError(t, err)
	}
	d, err := l.Attempt(ctx, key, sendPolicy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	require.NoError(t, l.Clear(ctx, key))
	d, err = l.Attempt(ctx, key, sendPolicy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}
func (brokenCounter) Reset(context.Context, string) error { return errors.New("connection refused") }

func TestAttempt_CounterFailureIsStorageError(t *testing.T) {
	l := NewLimiter(brokenCounter{})
	_, err := l.Attempt(context.Background(), "k", sendPolicy)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, l.Clear(context.Background(), "k"), domain.ErrStorage)
}

func TestClampRetry(t *testing.T) {
	assert.Equal(t, time.Second, clampRetry(0, time.Minute))
	assert.Equal(t, time.Minute, clampRetry(2*time.Minute, time.Minute))
	assert.Equal(t, 10*time.Second, clampRetry(10*time.Second, time.Minute))
}
