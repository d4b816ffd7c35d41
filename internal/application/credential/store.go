package credential

import (
	"context"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// UserStore is the minimal interface the credential services require from a user store.
type UserStore interface {
	// Get returns domain.ErrNotFound when no user owns identifier.
	Get(ctx context.Context, identifier string) (*domain.User, error)
	// Create fails with domain.ErrConflict when the identifier is already taken.
	Create(ctx context.Context, u *domain.User) error
	// MarkVerified sets VerifiedAt if unset and clears IsNew. first is true only for
	// the single call that observed IsNew == true.
	MarkVerified(ctx context.Context, identifier string, at time.Time) (first bool, err error)
}

// Store persists credentials. Implementations must make Rotate and TryConsume atomic
// with respect to concurrent callers; everything else may be eventually consistent.
type Store interface {
	// Rotate deletes every credential of c.Kind owned by c.UserID and stores c, as one unit of work.
	Rotate(ctx context.Context, c *domain.Credential) error
	InvalidateAll(ctx context.Context, userID string, kind domain.CredentialKind) error
	// FindByHash returns the matching credential in any state, or domain.ErrNotFound.
	FindByHash(ctx context.Context, userID string, kind domain.CredentialKind, secretHash string) (*domain.Credential, error)
	// FindActiveByHash only returns credentials with no UsedAt and ExpiresAt after now.
	FindActiveByHash(ctx context.Context, userID string, kind domain.CredentialKind, secretHash string, now time.Time) (*domain.Credential, error)
	// TryConsume sets UsedAt = now only if the credential is still unused and unexpired.
	// It reports false, without error, when another caller got there first.
	TryConsume(ctx context.Context, c *domain.Credential, now time.Time) (bool, error)
	// Revoke removes exactly c if it still occupies its slot.
	Revoke(ctx context.Context, c *domain.Credential) error
	// PurgeExpired deletes credentials whose ExpiresAt is before now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
