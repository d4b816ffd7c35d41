package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
)

// Actions name the independent budgets kept per identifier.
const (
	ActionMagicLink       = "magic-link"
	ActionMagicLinkVerify = "magic-link-verify"
	ActionOTP             = "otp"
	ActionOTPVerify       = "otp-verify"
)

// Counter is a fixed-window hit counter shared by every instance of the service.
type Counter interface {
	// Incr counts a hit and opens a ttl-long window if none is live.
	Incr(ctx context.Context, key string, ttl time.Duration) (count int64, ttlLeft time.Duration, err error)
	Reset(ctx context.Context, key string) error
}

// Decision is the outcome of a single Attempt.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// Err returns a *domain.RateLimitedError for a denied decision, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &domain.RateLimitedError{RetryAfter: d.RetryAfter}
}

type Limiter struct {
	counter Counter
}

func NewLimiter(counter Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Key scopes a counter to an action and a normalized identifier.
func Key(action, identifier string) string {
	return action + ":" + identifier
}

// Attempt records a hit against key and reports whether it fits in policy.
// The count-and-check is a single counter operation, so concurrent callers
// can never both take the last slot.
func (l *Limiter) Attempt(ctx context.Context, key string, policy config.Policy) (Decision, error) {
	n, ttl, err := l.counter.Incr(ctx, key, policy.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w: %v", key, domain.ErrStorage, err)
	}
	d := Decision{Count: n, Allowed: n <= int64(policy.Max)}
	if !d.Allowed {
		d.RetryAfter = clampRetry(ttl, policy.Window)
	}
	return d, nil
}

// Clear forgets every hit recorded against key.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	if err := l.counter.Reset(ctx, key); err != nil {
		return fmt.Errorf("rate limit %s: %w: %v", key, domain.ErrStorage, err)
	}
	return nil
}

func clampRetry(ttl, window time.Duration) time.Duration {
	if ttl <= 0 {
		// The window closed between INCR and the TTL read, or the backend lost the expiry.
		return time.Second
	}
	if ttl > window {
		return window
	}
	return ttl
}
