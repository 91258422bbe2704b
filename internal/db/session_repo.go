package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// SessionRepository provides data access for API sessions. Tokens are stored
// only as SHA-256 hashes; the repository never sees the raw token.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session record.
func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, tenant_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		s.ID,
		s.UserID,
		s.TenantID,
		s.TokenHash,
		s.ExpiresAt,
		nilIfZeroTime(s.CreatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create session")
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash. Expiry is checked by
// the caller so the error code can distinguish expired from unknown.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, tenant_id, token_hash, expires_at, created_at
		 FROM sessions
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(&s.ID, &s.UserID, &s.TenantID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve session")
	}
	return &s, nil
}

// DeleteByID removes one session. Used for logout and for opportunistic
// cleanup of expired sessions.
func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return wrapDBError(err, "failed to delete session")
	}
	return nil
}

// DeleteByUser revokes every session of one user. Called when an account is
// disabled or deleted.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return wrapDBError(err, "failed to delete user sessions")
	}
	return nil
}

// DeleteExpired sweeps lapsed sessions and reports how many were removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, wrapDBError(err, "failed to sweep expired sessions")
	}
	return int(tag.RowsAffected()), nil
}
