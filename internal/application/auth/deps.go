package auth

import (
	"context"
	"time"

	"github.com/go-passwordless/internal/application/credential"
	"github.com/go-passwordless/internal/application/notification"
	"github.com/go-passwordless/internal/application/ratelimit"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
)

// Issuer is the minimal interface the auth service requires from the credential issuer.
type Issuer interface {
	Issue(ctx context.Context, req credential.IssueRequest) (*credential.Issued, error)
	Register(ctx context.Context, identifier string, channel domain.Channel) (*domain.User, error)
	Revoke(ctx context.Context, c *domain.Credential) error
	Expiry(kind domain.CredentialKind) time.Duration
}

// Verifier is the minimal interface the auth service requires from the credential verifier.
type Verifier interface {
	Verify(ctx context.Context, req credential.VerifyRequest) (*credential.Verified, error)
}

// Limiter is the minimal interface the auth service requires from the rate limiter.
type Limiter interface {
	Attempt(ctx context.Context, key string, policy config.Policy) (ratelimit.Decision, error)
	Clear(ctx context.Context, key string) error
}

// Dispatcher queues secrets for out-of-band delivery.
type Dispatcher interface {
	Enqueue(d notification.Delivery) error
}

// SessionStarter hands a verified user a session.
type SessionStarter interface {
	Start(ctx context.Context, u *domain.User) (*domain.Session, error)
}
