package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/token"
)

// VerifyRequest is a submitted secret for the credential of Kind owned by Identifier.
type VerifyRequest struct {
	Identifier string
	Kind       domain.CredentialKind
	Secret     string
}

// Verified is the result of a winning consume.
type Verified struct {
	User       *domain.User
	Credential *domain.Credential
	IsNewUser  bool
}

// Verifier checks submitted secrets and drives the single used_at transition.
type Verifier struct {
	users   UserStore
	store   Store
	timeout time.Duration
	now     func() time.Time
}

func NewVerifier(users UserStore, store Store, cfg Config) *Verifier {
	cfg = cfg.withDefaults()
	return &Verifier{users: users, store: store, timeout: cfg.StoreTimeout, now: time.Now}
}

// Verify returns domain.ErrInvalidCredential, ErrExpiredCredential or ErrCredentialUsed
// for every losing outcome. None of those paths write to the store.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*Verified, error) {
	sctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	u, err := v.users.Get(sctx, req.Identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("unknown identifier: %w", domain.ErrInvalidCredential)
		}
		return nil, storageErr("get user", err)
	}

	c, err := v.store.FindByHash(sctx, u.UserID, req.Kind, token.Hash(req.Secret))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no matching credential: %w", domain.ErrInvalidCredential)
		}
		return nil, storageErr("find credential", err)
	}

	now := v.now().UTC()
	if c.Expired(now) {
		return nil, fmt.Errorf("credential %s: %w", c.CredentialID, domain.ErrExpiredCredential)
	}
	if c.Used() {
		return nil, fmt.Errorf("credential %s: %w", c.CredentialID, domain.ErrCredentialUsed)
	}

	won, err := v.store.TryConsume(sctx, c, now)
	if err != nil {
		return nil, storageErr("consume credential", err)
	}
	if !won {
		return nil, v.lostConsume(sctx, c, now)
	}
	c.UsedAt = &now

	first, err := v.users.MarkVerified(sctx, u.Identifier, now)
	if err != nil {
		// The credential is already spent; a failed flag update must not turn success into failure.
		// The flag read with the user is the best answer left.
		slog.Error("failed to mark user verified", "user_id", u.UserID, "err", err)
		first = u.IsNew
	}
	if u.VerifiedAt == nil {
		u.VerifiedAt = &now
	}
	u.IsNew = false

	slog.Info("credential consumed",
		"user_id", u.UserID,
		"credential_id", c.CredentialID,
		"kind", c.Kind,
		"is_new_user", first,
	)
	return &Verified{User: u, Credential: c, IsNewUser: first}, nil
}

// lostConsume classifies a failed conditional consume by re-reading the slot: the
// credential may have been spent by another caller or superseded by a new issuance.
func (v *Verifier) lostConsume(ctx context.Context, c *domain.Credential, now time.Time) error {
	cur, err := v.store.FindByHash(ctx, c.UserID, c.Kind, c.SecretHash)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("credential %s superseded: %w", c.CredentialID, domain.ErrInvalidCredential)
	case err != nil:
		return storageErr("find credential", err)
	case cur.CredentialID != c.CredentialID:
		return fmt.Errorf("credential %s superseded: %w", c.CredentialID, domain.ErrInvalidCredential)
	case cur.Used():
		return fmt.Errorf("credential %s consumed concurrently: %w", c.CredentialID, domain.ErrCredentialUsed)
	case cur.Expired(now):
		return fmt.Errorf("credential %s: %w", c.CredentialID, domain.ErrExpiredCredential)
	default:
		return fmt.Errorf("credential %s not consumed: %w", c.CredentialID, domain.ErrCredentialUsed)
	}
}
