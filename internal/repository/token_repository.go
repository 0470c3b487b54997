package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clipmark/clipmark-api/internal/models"
)

// TokenRepository persists refresh tokens. Revocation is always a soft
// update; rows are only removed by the retention sweep, long after expiry.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

const insertTokenQuery = `INSERT INTO refresh_tokens (user_id, token, expires_at, created_at, revoked) VALUES ($1, $2, $3, $4, $5) RETURNING id`

// Create persists a refresh token entry and fills in the assigned id.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	if err := r.db.QueryRowxContext(ctx, insertTokenQuery, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt, token.Revoked).Scan(&token.ID); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByToken returns a refresh token by its opaque value.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeByToken marks the matching token revoked. A value that matches no
// row (or one already revoked) is not an error; logout relies on that.
func (r *TokenRepository) RevokeByToken(ctx context.Context, token string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE token = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, token, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

const revokeAllQuery = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`

// RevokeAllForUser revokes every live token owned by the user.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID int64, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, revokeAllQuery, userID, revokedAt); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// RevokeAllAndCreate revokes every live token for the user and persists the
// replacement inside one transaction, so a failure cannot leave both an old
// and a new token valid.
func (r *TokenRepository) RevokeAllAndCreate(ctx context.Context, userID int64, token *models.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revoke-and-create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, revokeAllQuery, userID, token.CreatedAt); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	if err := tx.QueryRowxContext(ctx, insertTokenQuery, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt, token.Revoked).Scan(&token.ID); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit revoke-and-create: %w", err)
	}
	return nil
}

// Rotate revokes the presented token and persists its replacement inside one
// transaction. The presented token is identified by row id, not value, since
// the caller has already loaded it.
func (r *TokenRepository) Rotate(ctx context.Context, oldID int64, token *models.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const revokeByID = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, revokeByID, oldID, token.CreatedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if err := tx.QueryRowxContext(ctx, insertTokenQuery, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt, token.Revoked).Scan(&token.ID); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

// DeleteExpiredBefore removes tokens whose expiry predates the cutoff.
// Used only by the retention sweep.
func (r *TokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return affected, nil
}
