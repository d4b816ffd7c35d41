package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/id"
)

// TokenSigner issues bearer tokens for a session.
type TokenSigner interface {
	Sign(userID, identifier, channel, sessionID string) (string, error)
	Expiry() time.Duration
}

// UserReader looks users up by identifier.
type UserReader interface {
	Get(ctx context.Context, identifier string) (*domain.User, error)
}

// Store persists sessions. Get and Disable report domain.ErrNotFound for unknown ids.
type Store interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string, at time.Time) error
}

// Service hands a verified user a session and tracks it until logout or expiry.
type Service interface {
	Start(ctx context.Context, u *domain.User) (*domain.Session, error)
	GetCurrent(ctx context.Context, sessionID, identifier string) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

type service struct {
	signer TokenSigner
	users  UserReader
	store  Store
	now    func() time.Time
}

func NewService(signer TokenSigner, users UserReader, store Store) Service {
	return &service{signer: signer, users: users, store: store, now: time.Now}
}

func (s *service) Start(ctx context.Context, u *domain.User) (*domain.Session, error) {
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID: id.New(),
		UserID:    u.UserID,
		Enable:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.signer.Expiry()),
		User:      u,
	}
	bearer, err := s.signer.Sign(u.UserID, u.Identifier, string(u.Channel), sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	sess.Bearer = bearer
	return sess, nil
}

// GetCurrent loads the stored session named by verified token claims and
// attaches a fresh user record. Logged-out sessions are unauthorized.
func (s *service) GetCurrent(ctx context.Context, sessionID, identifier string) (*domain.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("session user gone: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if u.UserID != sess.UserID {
		return nil, fmt.Errorf("session user mismatch: %w", domain.ErrUnauthorized)
	}
	sess.User = u
	return sess, nil
}

// Logout disables the session. An already inactive session is unauthorized.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	if _, err := s.load(ctx, sessionID); err != nil {
		return err
	}
	if err := s.store.Disable(ctx, sessionID, s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("session gone: %w", domain.ErrUnauthorized)
		}
		return err
	}
	return nil
}

func (s *service) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("session unknown: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if !sess.Active(s.now()) {
		return nil, fmt.Errorf("session inactive: %w", domain.ErrUnauthorized)
	}
	return sess, nil
}
