package postgres

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// CredentialRepo keeps credential history in Postgres. The partial unique index on
// (user_id, kind) WHERE used_at IS NULL backs up Rotate's single-active guarantee.
type CredentialRepo struct {
	db *sql.DB
}

func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Rotate locks the owning user row so concurrent rotations for the same user serialize,
// then replaces every credential of the kind inside one transaction.
func (r *CredentialRepo) Rotate(ctx context.Context, c *domain.Credential) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, c.UserID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("owner %s: %w", c.UserID, domain.ErrNotFound)
		}
		return fmt.Errorf("%w: lock user: %v", domain.ErrStorage, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1 AND kind = $2`, c.UserID, string(c.Kind)); err != nil {
		return fmt.Errorf("%w: delete credentials: %v", domain.ErrStorage, err)
	}
	const ins = `
		INSERT INTO credentials (id, user_id, kind, secret_hash, created_at, expires_at, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err = tx.ExecContext(ctx, ins, c.CredentialID, c.UserID, string(c.Kind), c.SecretHash, c.CreatedAt, c.ExpiresAt, c.UsedAt); err != nil {
		return fmt.Errorf("%w: insert credential: %v", domain.ErrStorage, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *CredentialRepo) InvalidateAll(ctx context.Context, userID string, kind domain.CredentialKind) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1 AND kind = $2`, userID, string(kind)); err != nil {
		return fmt.Errorf("%w: delete credentials: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *CredentialRepo) FindByHash(ctx context.Context, userID string, kind domain.CredentialKind, secretHash string) (*domain.Credential, error) {
	const q = `
		SELECT id, user_id, kind, secret_hash, created_at, expires_at, used_at
		FROM credentials
		WHERE user_id = $1 AND kind = $2 AND secret_hash = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		c      domain.Credential
		kindS  string
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, userID, string(kind), secretHash).
		Scan(&c.CredentialID, &c.UserID, &kindS, &c.SecretHash, &c.CreatedAt, &c.ExpiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: find credential: %v", domain.ErrStorage, err)
	}
	// The index lookup is not constant time; re-compare the digest before trusting the row.
	if subtle.ConstantTimeCompare([]byte(c.SecretHash), []byte(secretHash)) != 1 {
		return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
	}
	c.Kind = domain.CredentialKind(kindS)
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = c.ExpiresAt.UTC()
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		c.UsedAt = &t
	}
	return &c, nil
}

func (r *CredentialRepo) FindActiveByHash(ctx context.Context, userID string, kind domain.CredentialKind, secretHash string, now time.Time) (*domain.Credential, error) {
	c, err := r.FindByHash(ctx, userID, kind, secretHash)
	if err != nil {
		return nil, err
	}
	if !c.Active(now) {
		return nil, fmt.Errorf("active credential not found: %w", domain.ErrNotFound)
	}
	return c, nil
}

// TryConsume is a single conditional UPDATE; RowsAffected tells the winner apart.
func (r *CredentialRepo) TryConsume(ctx context.Context, c *domain.Credential, now time.Time) (bool, error) {
	const q = `
		UPDATE credentials
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND expires_at > $2
	`
	res, err := r.db.ExecContext(ctx, q, c.CredentialID, now)
	if err != nil {
		return false, fmt.Errorf("%w: consume credential: %v", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: consume credential: %v", domain.ErrStorage, err)
	}
	return n == 1, nil
}

func (r *CredentialRepo) Revoke(ctx context.Context, c *domain.Credential) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, c.CredentialID); err != nil {
		return fmt.Errorf("%w: revoke credential: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *CredentialRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: purge credentials: %v", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: purge credentials: %v", domain.ErrStorage, err)
	}
	return int(n), nil
}
