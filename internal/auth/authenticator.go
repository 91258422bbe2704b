// Package auth resolves bearer tokens to acting users. Sign-in and token
// issuance live in the hosted auth service; this package only validates the
// sessions it creates.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"advisy/internal/types"
)

// SessionStore is the session lookup the authenticator needs.
type SessionStore interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// UserLookup loads the user behind a session.
type UserLookup interface {
	GetByID(ctx context.Context, tenantID, id string) (*types.User, error)
}

// HashToken returns the hex SHA-256 of a bearer token. Tokens are stored
// hashed so a database leak does not leak usable credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SessionAuthenticator validates bearer tokens against the sessions table.
type SessionAuthenticator struct {
	sessions SessionStore
	users    UserLookup
	clock    types.Clock
	logger   *slog.Logger
}

type Config struct {
	Sessions SessionStore
	Users    UserLookup
	Clock    types.Clock
	Logger   *slog.Logger
}

func NewSessionAuthenticator(cfg Config) *SessionAuthenticator {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthenticator{
		sessions: cfg.Sessions,
		users:    cfg.Users,
		clock:    clock,
		logger:   logger,
	}
}

// ResolveToken resolves a bearer token to the acting user.
//
// Error codes distinguish the failure modes the middleware cares about:
// ErrCodeAuthTokenInvalid for unknown or revoked tokens and non-active
// accounts, ErrCodeAuthTokenExpired when the session has lapsed.
func (a *SessionAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "bearer token is required", nil)
	}

	session, err := a.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown or revoked token", err)
	}

	if a.clock.Now().After(session.ExpiresAt) {
		// Opportunistic cleanup; expired rows are also swept in bulk.
		if err := a.sessions.DeleteByID(ctx, session.ID); err != nil {
			a.logger.WarnContext(ctx, "failed to delete expired session",
				"session_id", session.ID,
				"error", err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil)
	}

	user, err := a.users.GetByID(ctx, session.TenantID, session.UserID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "session user no longer exists", err)
	}
	if user.Status != types.UserStatusActive {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "account is not active", nil)
	}

	return &types.Actor{
		ID:       user.ID,
		Type:     types.ActorTypeUser,
		TenantID: user.TenantID,
		Role:     user.Role,
	}, nil
}
