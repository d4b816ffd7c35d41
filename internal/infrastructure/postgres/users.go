package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Get(ctx context.Context, identifier string) (*domain.User, error) {
	const q = `
		SELECT id, identifier, channel, is_new, verified_at, created_at
		FROM users
		WHERE identifier = $1
	`
	var (
		u          domain.User
		channel    string
		verifiedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, identifier).
		Scan(&u.UserID, &u.Identifier, &channel, &u.IsNew, &verifiedAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: get user: %v", domain.ErrStorage, err)
	}
	u.Channel = domain.Channel(channel)
	u.CreatedAt = u.CreatedAt.UTC()
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		u.VerifiedAt = &t
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	const q = `
		INSERT INTO users (id, identifier, channel, is_new, verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, q, u.UserID, u.Identifier, string(u.Channel), u.IsNew, u.VerifiedAt, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("identifier taken: %w", domain.ErrConflict)
		}
		return fmt.Errorf("%w: insert user: %v", domain.ErrStorage, err)
	}
	return nil
}

// MarkVerified relies on the row lock taken by UPDATE: the sub-select reads is_new
// before this statement's own write, and concurrent updates serialize on the row.
func (r *UserRepo) MarkVerified(ctx context.Context, identifier string, at time.Time) (bool, error) {
	const q = `
		UPDATE users AS u
		SET is_new = FALSE, verified_at = COALESCE(u.verified_at, $2)
		FROM (SELECT id, is_new FROM users WHERE identifier = $1 FOR UPDATE) AS old
		WHERE u.id = old.id
		RETURNING old.is_new
	`
	var first bool
	err := r.db.QueryRowContext(ctx, q, identifier, at).Scan(&first)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return false, fmt.Errorf("%w: mark verified: %v", domain.ErrStorage, err)
	}
	return first, nil
}
