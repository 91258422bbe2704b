package handlers

import (
	"context"
	"net/http"
	"testing"

	"advisy/internal/types"
)

type mockUserStore struct {
	createFn       func(ctx context.Context, u *types.User) error
	getFn          func(ctx context.Context, tenantID, id string) (*types.User, error)
	listFn         func(ctx context.Context, tenantID string) ([]*types.User, error)
	updateRoleFn   func(ctx context.Context, tenantID, id string, role types.UserRole) error
	updateStatusFn func(ctx context.Context, tenantID, id string, status types.UserStatus) error
	deleteFn       func(ctx context.Context, tenantID, id string) error
}

func (m *mockUserStore) Create(ctx context.Context, u *types.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, u)
	}
	return nil
}

func (m *mockUserStore) GetByID(ctx context.Context, tenantID, id string) (*types.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID, id)
	}
	return &types.User{ID: id, TenantID: tenantID, Role: types.RoleAdvisor, Status: types.UserStatusActive}, nil
}

func (m *mockUserStore) ListByTenant(ctx context.Context, tenantID string) ([]*types.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, tenantID)
	}
	return nil, nil
}

func (m *mockUserStore) UpdateRole(ctx context.Context, tenantID, id string, role types.UserRole) error {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, tenantID, id, role)
	}
	return nil
}

func (m *mockUserStore) UpdateStatus(ctx context.Context, tenantID, id string, status types.UserStatus) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, tenantID, id, status)
	}
	return nil
}

func (m *mockUserStore) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tenantID, id)
	}
	return nil
}

type mockSeatGuard struct {
	checkFn func(ctx context.Context, tenantID string) error
	calls   int
}

func (m *mockSeatGuard) CheckCanAdd(ctx context.Context, tenantID string) error {
	m.calls++
	if m.checkFn != nil {
		return m.checkFn(ctx, tenantID)
	}
	return nil
}

var (
	_ UserStore = (*mockUserStore)(nil)
	_ SeatGuard = (*mockSeatGuard)(nil)
)

func newTestUserHandler(store *mockUserStore, seats *mockSeatGuard) *UserHandler {
	if store == nil {
		store = &mockUserStore{}
	}
	if seats == nil {
		seats = &mockSeatGuard{}
	}
	return NewUserHandler(store, seats, nil, testValidator, testLogger())
}

func TestInviteUser_CreatesInvitedMember(t *testing.T) {
	var created *types.User
	store := &mockUserStore{
		createFn: func(ctx context.Context, u *types.User) error {
			created = u
			return nil
		},
	}
	h := newTestUserHandler(store, nil)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	body := InviteUserRequest{
		Email: "paul@cabinet.fr",
		Name:  "Paul Martin",
		Role:  types.RoleAdvisor,
	}
	rr := serve(h, makeRequest("POST", "/users", body, ctx))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created == nil {
		t.Fatal("expected the member row to be created")
	}
	if created.Status != types.UserStatusInvited {
		t.Errorf("expected invited status, got %s", created.Status)
	}
	if created.TenantID != "ten_1" {
		t.Errorf("expected tenant from actor, got %s", created.TenantID)
	}
	if len(created.ID) < 5 || created.ID[:4] != "usr_" {
		t.Errorf("unexpected id %q", created.ID)
	}
}

func TestInviteUser_SeatLimitRefuses(t *testing.T) {
	store := &mockUserStore{
		createFn: func(ctx context.Context, u *types.User) error {
			t.Error("no member may be created when seats are exhausted")
			return nil
		},
	}
	seats := &mockSeatGuard{
		checkFn: func(ctx context.Context, tenantID string) error {
			return types.NewAppErrorWithDetails(types.ErrCodeLimitSeats, "no seats available", nil, map[string]any{
				"total_seats":     3,
				"available_seats": 0,
			})
		},
	}
	h := newTestUserHandler(store, seats)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	body := InviteUserRequest{Email: "paul@cabinet.fr", Name: "Paul Martin", Role: types.RoleAdvisor}
	rr := serve(h, makeRequest("POST", "/users", body, ctx))

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if errorCode(t, rr) != string(types.ErrCodeLimitSeats) {
		t.Errorf("unexpected error code %q", errorCode(t, rr))
	}
}

func TestInviteUser_AdvisorForbidden(t *testing.T) {
	h := newTestUserHandler(nil, nil)

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	body := InviteUserRequest{Email: "paul@cabinet.fr", Name: "Paul Martin", Role: types.RoleAdvisor}
	rr := serve(h, makeRequest("POST", "/users", body, ctx))

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInviteUser_OwnerRoleRejectedByValidation(t *testing.T) {
	h := newTestUserHandler(nil, nil)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	body := InviteUserRequest{Email: "paul@cabinet.fr", Name: "Paul Martin", Role: types.RoleOwner}
	rr := serve(h, makeRequest("POST", "/users", body, ctx))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateRole_OwnerProtected(t *testing.T) {
	store := &mockUserStore{
		getFn: func(ctx context.Context, tenantID, id string) (*types.User, error) {
			return &types.User{ID: id, TenantID: tenantID, Role: types.RoleOwner}, nil
		},
		updateRoleFn: func(ctx context.Context, tenantID, id string, role types.UserRole) error {
			t.Error("the owner role must never be written")
			return nil
		},
	}
	h := newTestUserHandler(store, nil)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	rr := serve(h, makeRequest("PATCH", "/users/usr_owner/role", UpdateRoleRequest{Role: types.RoleAdvisor}, ctx))

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateRole_Succeeds(t *testing.T) {
	var written types.UserRole
	store := &mockUserStore{
		updateRoleFn: func(ctx context.Context, tenantID, id string, role types.UserRole) error {
			written = role
			return nil
		},
	}
	h := newTestUserHandler(store, nil)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	rr := serve(h, makeRequest("PATCH", "/users/usr_2/role", UpdateRoleRequest{Role: types.RoleAdmin}, ctx))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if written != types.RoleAdmin {
		t.Errorf("expected admin written, got %s", written)
	}
}

func TestUpdateStatus_CannotDisableSelf(t *testing.T) {
	h := newTestUserHandler(nil, nil)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	body := UpdateUserStatusRequest{Status: types.UserStatusDisabled}
	rr := serve(h, makeRequest("PATCH", "/users/usr_test_123/status", body, ctx))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateStatus_ReenableChecksSeats(t *testing.T) {
	seats := &mockSeatGuard{}
	h := newTestUserHandler(nil, seats)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	body := UpdateUserStatusRequest{Status: types.UserStatusActive}
	rr := serve(h, makeRequest("PATCH", "/users/usr_2/status", body, ctx))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seats.calls != 1 {
		t.Errorf("expected a seat check before re-enabling, got %d calls", seats.calls)
	}
}

func TestUpdateStatus_DisableSkipsSeatCheck(t *testing.T) {
	seats := &mockSeatGuard{}
	h := newTestUserHandler(nil, seats)

	ctx := contextWithActor("ten_1", types.RoleAdmin)
	body := UpdateUserStatusRequest{Status: types.UserStatusDisabled}
	rr := serve(h, makeRequest("PATCH", "/users/usr_2/status", body, ctx))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if seats.calls != 0 {
		t.Errorf("disabling must not consult seats, got %d calls", seats.calls)
	}
}

func TestDeleteUser_CannotDeleteSelfOrOwner(t *testing.T) {
	store := &mockUserStore{
		getFn: func(ctx context.Context, tenantID, id string) (*types.User, error) {
			if id == "usr_owner" {
				return &types.User{ID: id, TenantID: tenantID, Role: types.RoleOwner}, nil
			}
			return &types.User{ID: id, TenantID: tenantID, Role: types.RoleAdvisor}, nil
		},
		deleteFn: func(ctx context.Context, tenantID, id string) error {
			t.Errorf("unexpected delete of %s", id)
			return nil
		},
	}
	h := newTestUserHandler(store, nil)
	ctx := contextWithActor("ten_1", types.RoleAdmin)

	rr := serve(h, makeRequest("DELETE", "/users/usr_test_123", nil, ctx))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("self delete: expected 400, got %d", rr.Code)
	}

	rr = serve(h, makeRequest("DELETE", "/users/usr_owner", nil, ctx))
	if rr.Code != http.StatusForbidden {
		t.Errorf("owner delete: expected 403, got %d", rr.Code)
	}
}

func TestDeleteUser_Succeeds(t *testing.T) {
	deleted := ""
	store := &mockUserStore{
		deleteFn: func(ctx context.Context, tenantID, id string) error {
			deleted = id
			return nil
		},
	}
	h := newTestUserHandler(store, nil)

	ctx := contextWithActor("ten_1", types.RoleOwner)
	rr := serve(h, makeRequest("DELETE", "/users/usr_2", nil, ctx))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if deleted != "usr_2" {
		t.Errorf("expected usr_2 deleted, got %q", deleted)
	}
}
