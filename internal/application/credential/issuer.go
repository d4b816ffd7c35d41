package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/id"
	"github.com/go-passwordless/internal/pkg/token"
)

// IssueRequest asks for a fresh secret of Kind for Identifier.
// CreateUser allows the identifier to be registered on the fly (magic-link flow).
type IssueRequest struct {
	Identifier string
	Channel    domain.Channel
	Kind       domain.CredentialKind
	CreateUser bool
}

// Issued carries the plaintext secret back to the caller for delivery. It must not be logged.
type Issued struct {
	Credential *domain.Credential
	User       *domain.User
	Secret     string
}

// Config holds the issuer settings. Zero durations fall back to the Default* values.
type Config struct {
	MagicLinkExpiry time.Duration
	OTPExpiry       time.Duration
	StoreTimeout    time.Duration
}

const (
	DefaultMagicLinkExpiry = 15 * time.Minute
	DefaultOTPExpiry       = 10 * time.Minute
	DefaultStoreTimeout    = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MagicLinkExpiry <= 0 {
		c.MagicLinkExpiry = DefaultMagicLinkExpiry
	}
	if c.OTPExpiry <= 0 {
		c.OTPExpiry = DefaultOTPExpiry
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	return c
}

// Expiry returns the configured lifetime for kind.
func (c Config) Expiry(kind domain.CredentialKind) time.Duration {
	if kind == domain.KindOTP {
		return c.OTPExpiry
	}
	return c.MagicLinkExpiry
}

// Issuer generates secrets and persists their hashes, superseding older ones.
type Issuer struct {
	users UserStore
	store Store
	cfg   Config
	now   func() time.Time
}

func NewIssuer(users UserStore, store Store, cfg Config) *Issuer {
	return &Issuer{users: users, store: store, cfg: cfg.withDefaults(), now: time.Now}
}

// Expiry exposes the lifetime the issuer stamps on credentials of kind.
func (i *Issuer) Expiry(kind domain.CredentialKind) time.Duration { return i.cfg.Expiry(kind) }

func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown credential kind %q: %w", req.Kind, domain.ErrBadRequest)
	}
	u, err := i.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}

	secret, err := newSecret(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	now := i.now().UTC()
	c := &domain.Credential{
		CredentialID: id.New(),
		UserID:       u.UserID,
		Kind:         req.Kind,
		SecretHash:   token.Hash(secret),
		CreatedAt:    now,
		ExpiresAt:    now.Add(i.cfg.Expiry(req.Kind)),
	}

	sctx, cancel := context.WithTimeout(ctx, i.cfg.StoreTimeout)
	defer cancel()
	if err := i.store.Rotate(sctx, c); err != nil {
		return nil, storageErr("rotate credential", err)
	}

	slog.Info("credential issued",
		"user_id", u.UserID,
		"credential_id", c.CredentialID,
		"kind", c.Kind,
		"expires_at", c.ExpiresAt,
	)
	return &Issued{Credential: c, User: u, Secret: secret}, nil
}

// Revoke drops a credential that can no longer be delivered so it does not occupy the active slot.
func (i *Issuer) Revoke(ctx context.Context, c *domain.Credential) error {
	sctx, cancel := context.WithTimeout(ctx, i.cfg.StoreTimeout)
	defer cancel()
	if err := i.store.Revoke(sctx, c); err != nil {
		return storageErr("revoke credential", err)
	}
	return nil
}

// Register creates a user for identifier, failing with domain.ErrConflict if it exists.
func (i *Issuer) Register(ctx context.Context, identifier string, channel domain.Channel) (*domain.User, error) {
	sctx, cancel := context.WithTimeout(ctx, i.cfg.StoreTimeout)
	defer cancel()
	u := i.newUser(identifier, channel)
	if err := i.users.Create(sctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("identifier already registered: %w", domain.ErrConflict)
		}
		return nil, storageErr("create user", err)
	}
	slog.Info("user registered", "user_id", u.UserID, "channel", channel)
	return u, nil
}

func (i *Issuer) resolveUser(ctx context.Context, req IssueRequest) (*domain.User, error) {
	sctx, cancel := context.WithTimeout(ctx, i.cfg.StoreTimeout)
	defer cancel()

	u, err := i.users.Get(sctx, req.Identifier)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("get user", err)
	}
	if !req.CreateUser {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}

	u = i.newUser(req.Identifier, req.Channel)
	err = i.users.Create(sctx, u)
	if err == nil {
		slog.Info("user created on first issuance", "user_id", u.UserID, "channel", req.Channel)
		return u, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, storageErr("create user", err)
	}
	// Lost a creation race; the winner's row is authoritative.
	u, err = i.users.Get(sctx, req.Identifier)
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

func (i *Issuer) newUser(identifier string, channel domain.Channel) *domain.User {
	return &domain.User{
		UserID:     id.New(),
		Identifier: identifier,
		Channel:    channel,
		IsNew:      true,
		CreatedAt:  i.now().UTC(),
	}
}

func newSecret(kind domain.CredentialKind) (string, error) {
	if kind == domain.KindOTP {
		return token.NewOTP()
	}
	return token.NewMagicLinkSecret()
}

// storageErr tags an infrastructure failure as domain.ErrStorage, keeping domain sentinels intact.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrStorage) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorage, err)
}
