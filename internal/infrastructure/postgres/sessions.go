package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/domain"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Put(ctx context.Context, s *domain.Session) error {
	const q = `
		INSERT INTO sessions (id, user_id, enable, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, q, s.SessionID, s.UserID, s.Enable, s.CreatedAt, s.ExpiresAt, s.RevokedAt)
	if err != nil {
		return fmt.Errorf("%w: insert session: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	const q = `
		SELECT id, user_id, enable, created_at, expires_at, revoked_at
		FROM sessions
		WHERE id = $1
	`
	var (
		s         domain.Session
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, sessionID).
		Scan(&s.SessionID, &s.UserID, &s.Enable, &s.CreatedAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get session: %v", domain.ErrStorage, err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		s.RevokedAt = &t
	}
	return &s, nil
}

// Disable soft-deletes the session; the first revocation time is kept.
func (r *SessionRepo) Disable(ctx context.Context, sessionID string, at time.Time) error {
	const q = `
		UPDATE sessions
		SET enable = FALSE, revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, sessionID, at)
	if err != nil {
		return fmt.Errorf("%w: disable session: %v", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: disable session: %v", domain.ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return nil
}
