package models

import "time"

// RefreshToken represents a persisted refresh token session. Revocation is a
// soft flag; rows are kept as an audit trail rather than deleted.
type RefreshToken struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Expired reports whether the token has passed its expiry at the given
// instant. The expiry instant itself counts as expired.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Usable reports whether the token may still be exchanged: it must be
// neither revoked nor expired.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}
