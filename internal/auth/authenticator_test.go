package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"advisy/internal/types"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type mockSessionStore struct {
	getFn    func(ctx context.Context, tokenHash string) (*types.Session, error)
	deleteFn func(ctx context.Context, id string) error
	deleted  []string
}

func (m *mockSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*types.Session, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tokenHash)
	}
	return nil, errors.New("no session")
}

func (m *mockSessionStore) DeleteByID(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockUserLookup struct {
	getFn func(ctx context.Context, tenantID, id string) (*types.User, error)
}

func (m *mockUserLookup) GetByID(ctx context.Context, tenantID, id string) (*types.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID, id)
	}
	return &types.User{ID: id, TenantID: tenantID, Role: types.RoleAdvisor, Status: types.UserStatusActive}, nil
}

var (
	_ SessionStore = (*mockSessionStore)(nil)
	_ UserLookup   = (*mockUserLookup)(nil)
)

func validSession(now time.Time) *types.Session {
	return &types.Session{
		ID:        "sess_1",
		UserID:    "usr_1",
		TenantID:  "ten_1",
		TokenHash: HashToken("tok_valid"),
		ExpiresAt: now.Add(time.Hour),
	}
}

func newAuthenticator(sessions *mockSessionStore, users *mockUserLookup, now time.Time) *SessionAuthenticator {
	if users == nil {
		users = &mockUserLookup{}
	}
	return NewSessionAuthenticator(Config{
		Sessions: sessions,
		Users:    users,
		Clock:    fixedClock{now: now},
	})
}

func TestResolveToken_LooksUpByHash(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	sessions := &mockSessionStore{
		getFn: func(ctx context.Context, tokenHash string) (*types.Session, error) {
			if tokenHash != HashToken("tok_valid") {
				t.Errorf("lookup must use the token hash, got %q", tokenHash)
			}
			return validSession(now), nil
		},
	}
	a := newAuthenticator(sessions, nil, now)

	actor, err := a.ResolveToken(context.Background(), "tok_valid")
	if err != nil {
		t.Fatalf("ResolveToken returned error: %v", err)
	}
	if actor.ID != "usr_1" || actor.TenantID != "ten_1" {
		t.Errorf("unexpected actor %+v", actor)
	}
	if actor.Type != types.ActorTypeUser {
		t.Errorf("unexpected actor type %s", actor.Type)
	}
}

func TestResolveToken_UnknownToken(t *testing.T) {
	now := time.Now().UTC()
	sessions := &mockSessionStore{}
	a := newAuthenticator(sessions, nil, now)

	_, err := a.ResolveToken(context.Background(), "tok_bogus")
	assertAuthCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestResolveToken_ExpiredSessionDeleted(t *testing.T) {
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	sessions := &mockSessionStore{
		getFn: func(ctx context.Context, tokenHash string) (*types.Session, error) {
			s := validSession(now)
			s.ExpiresAt = now.Add(-time.Minute)
			return s, nil
		},
	}
	a := newAuthenticator(sessions, nil, now)

	_, err := a.ResolveToken(context.Background(), "tok_valid")
	assertAuthCode(t, err, types.ErrCodeAuthTokenExpired)
	if len(sessions.deleted) != 1 || sessions.deleted[0] != "sess_1" {
		t.Errorf("expected the expired session deleted, got %v", sessions.deleted)
	}
}

func TestResolveToken_DisabledUserRejected(t *testing.T) {
	now := time.Now().UTC()
	sessions := &mockSessionStore{
		getFn: func(ctx context.Context, tokenHash string) (*types.Session, error) {
			return validSession(now), nil
		},
	}
	users := &mockUserLookup{
		getFn: func(ctx context.Context, tenantID, id string) (*types.User, error) {
			return &types.User{ID: id, TenantID: tenantID, Status: types.UserStatusDisabled}, nil
		},
	}
	a := newAuthenticator(sessions, users, now)

	_, err := a.ResolveToken(context.Background(), "tok_valid")
	assertAuthCode(t, err, types.ErrCodeAuthTokenInvalid)
}

func TestResolveToken_EmptyToken(t *testing.T) {
	a := newAuthenticator(&mockSessionStore{}, nil, time.Now().UTC())

	_, err := a.ResolveToken(context.Background(), "   ")
	assertAuthCode(t, err, types.ErrCodeAuthTokenMissing)
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("hashing is not deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("distinct tokens must not collide trivially")
	}
	if len(HashToken("abc")) != 64 {
		t.Errorf("expected hex sha256, got length %d", len(HashToken("abc")))
	}
}

func assertAuthCode(t *testing.T, err error, want types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != want {
		t.Errorf("expected code %s, got %s", want, appErr.Code)
	}
}
