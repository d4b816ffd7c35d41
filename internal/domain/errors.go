package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")

	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("credential expired")
	ErrCredentialUsed    = errors.New("credential already used")
	ErrRateLimited       = errors.New("rate limited")

	// ErrDelivery and ErrStorage are logged with context and surfaced to clients as a generic failure.
	ErrDelivery = errors.New("delivery failed")
	ErrStorage  = errors.New("storage unavailable")
)

// RateLimitedError reports a denied attempt together with the time left in the current window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds())
}

// Is lets errors.Is(err, ErrRateLimited) match a wrapped *RateLimitedError.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfterSeconds rounds up so a client never retries before the window closes.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
