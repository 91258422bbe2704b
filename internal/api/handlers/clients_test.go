package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"advisy/internal/db"
	"advisy/internal/types"
)

type mockClientStore struct {
	createFn  func(ctx context.Context, c *types.Client) error
	getByIDFn func(ctx context.Context, tenantID, id string) (*types.Client, error)
	updateFn  func(ctx context.Context, c *types.Client) error
	deleteFn  func(ctx context.Context, tenantID, id string) error
	listFn    func(ctx context.Context, tenantID string, params db.ListClientsParams) ([]*types.Client, types.PageInfo, error)
}

func (m *mockClientStore) Create(ctx context.Context, c *types.Client) error {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return nil
}

func (m *mockClientStore) GetByID(ctx context.Context, tenantID, id string) (*types.Client, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, tenantID, id)
	}
	return &types.Client{ID: id, TenantID: tenantID, FirstName: "Marie", LastName: "Dupont"}, nil
}

func (m *mockClientStore) Update(ctx context.Context, c *types.Client) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, c)
	}
	return nil
}

func (m *mockClientStore) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tenantID, id)
	}
	return nil
}

func (m *mockClientStore) List(ctx context.Context, tenantID string, params db.ListClientsParams) ([]*types.Client, types.PageInfo, error) {
	if m.listFn != nil {
		return m.listFn(ctx, tenantID, params)
	}
	return []*types.Client{
		{ID: "cli_1", TenantID: tenantID, FirstName: "Marie", LastName: "Dupont"},
	}, types.PageInfo{HasMore: false}, nil
}

type mockFamilyStore struct {
	createFn       func(ctx context.Context, tenantID string, f *types.FamilyMember) error
	listByClientFn func(ctx context.Context, tenantID, clientID string) ([]*types.FamilyMember, error)
	updateFn       func(ctx context.Context, tenantID string, f *types.FamilyMember) error
	deleteFn       func(ctx context.Context, tenantID, id string) error
}

func (m *mockFamilyStore) Create(ctx context.Context, tenantID string, f *types.FamilyMember) error {
	if m.createFn != nil {
		return m.createFn(ctx, tenantID, f)
	}
	return nil
}

func (m *mockFamilyStore) ListByClient(ctx context.Context, tenantID, clientID string) ([]*types.FamilyMember, error) {
	if m.listByClientFn != nil {
		return m.listByClientFn(ctx, tenantID, clientID)
	}
	return nil, nil
}

func (m *mockFamilyStore) Update(ctx context.Context, tenantID string, f *types.FamilyMember) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, tenantID, f)
	}
	return nil
}

func (m *mockFamilyStore) Delete(ctx context.Context, tenantID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, tenantID, id)
	}
	return nil
}

var (
	_ ClientStore = (*mockClientStore)(nil)
	_ FamilyStore = (*mockFamilyStore)(nil)
)

func newTestClientHandler(clients ClientStore, family FamilyStore) *ClientHandler {
	// Gate nil: module gating is covered by the gate package tests.
	return NewClientHandler(clients, family, nil, testValidator, testLogger())
}

func TestCreateClient_DefaultsAdvisorToActor(t *testing.T) {
	var created *types.Client
	store := &mockClientStore{
		createFn: func(ctx context.Context, c *types.Client) error {
			created = c
			return nil
		},
	}
	h := newTestClientHandler(store, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	body := CreateClientRequest{FirstName: "Marie", LastName: "Dupont", Email: "marie@exemple.fr"}
	rr := serve(h, makeRequest("POST", "/clients", body, ctx))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created == nil {
		t.Fatal("expected Create to be called")
	}
	if created.AdvisorID != "usr_test_123" {
		t.Errorf("expected advisor defaulted to actor, got %q", created.AdvisorID)
	}
	if created.TenantID != "ten_1" {
		t.Errorf("expected tenant from actor, got %q", created.TenantID)
	}
	if !strings.HasPrefix(created.ID, "cli_") {
		t.Errorf("expected cli_ id prefix, got %q", created.ID)
	}
}

func TestCreateClient_MissingNameRejected(t *testing.T) {
	h := newTestClientHandler(&mockClientStore{}, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	rr := serve(h, makeRequest("POST", "/clients", CreateClientRequest{FirstName: "Marie"}, ctx))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListClients_PassesSearchAndLimit(t *testing.T) {
	var captured db.ListClientsParams
	store := &mockClientStore{
		listFn: func(ctx context.Context, tenantID string, params db.ListClientsParams) ([]*types.Client, types.PageInfo, error) {
			captured = params
			return nil, types.PageInfo{HasMore: true, NextCursor: "cli_next"}, nil
		},
	}
	h := newTestClientHandler(store, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	rr := serve(h, makeRequest("GET", "/clients?search=dupont&limit=25&cursor=cli_prev", nil, ctx))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Search != "dupont" || captured.Limit != 25 || captured.Cursor != "cli_prev" {
		t.Errorf("params not passed through: %+v", captured)
	}

	var resp struct {
		Meta types.ResponseMeta `json:"meta"`
	}
	parseJSONResponse(t, rr, &resp)
	if resp.Meta.Pagination == nil || !resp.Meta.Pagination.HasMore {
		t.Error("expected pagination meta with has_more")
	}
}

func TestListClients_InvalidLimit(t *testing.T) {
	h := newTestClientHandler(&mockClientStore{}, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	rr := serve(h, makeRequest("GET", "/clients?limit=500", nil, ctx))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for limit over 100, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetClient_NotFoundInFrench(t *testing.T) {
	store := &mockClientStore{
		getByIDFn: func(ctx context.Context, tenantID, id string) (*types.Client, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClient, "Client introuvable.", nil)
		},
	}
	h := newTestClientHandler(store, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	rr := serve(h, makeRequest("GET", "/clients/cli_gone", nil, ctx))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	parseJSONResponse(t, rr, &resp)
	if resp.Error.Message != "Client introuvable." {
		t.Errorf("expected the French message passed through, got %q", resp.Error.Message)
	}
}

func TestUpdateClient_PartialFieldsOnly(t *testing.T) {
	var updated *types.Client
	store := &mockClientStore{
		getByIDFn: func(ctx context.Context, tenantID, id string) (*types.Client, error) {
			return &types.Client{
				ID: id, TenantID: tenantID,
				FirstName: "Marie", LastName: "Dupont",
				Email: "marie@exemple.fr", City: "Lyon",
			}, nil
		},
		updateFn: func(ctx context.Context, c *types.Client) error {
			updated = c
			return nil
		},
	}
	h := newTestClientHandler(store, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	body := map[string]string{"city": "Paris"}
	rr := serve(h, makeRequest("PATCH", "/clients/cli_1", body, ctx))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if updated.City != "Paris" {
		t.Errorf("expected city updated, got %q", updated.City)
	}
	if updated.FirstName != "Marie" || updated.Email != "marie@exemple.fr" {
		t.Error("expected untouched fields preserved")
	}
}

func TestDeleteClient_NoContent(t *testing.T) {
	h := newTestClientHandler(&mockClientStore{}, &mockFamilyStore{})

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	rr := serve(h, makeRequest("DELETE", "/clients/cli_1", nil, ctx))

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateFamilyMember_VerifiesClientExists(t *testing.T) {
	store := &mockClientStore{
		getByIDFn: func(ctx context.Context, tenantID, id string) (*types.Client, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClient, "Client introuvable.", nil)
		},
	}
	family := &mockFamilyStore{
		createFn: func(ctx context.Context, tenantID string, f *types.FamilyMember) error {
			t.Error("family member must not be created for a missing client")
			return nil
		},
	}
	h := newTestClientHandler(store, family)

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	body := FamilyMemberRequest{FirstName: "Paul", LastName: "Dupont", Relationship: "enfant"}
	rr := serve(h, makeRequest("POST", "/clients/cli_gone/family", body, ctx))

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateFamilyMember_Success(t *testing.T) {
	var created *types.FamilyMember
	family := &mockFamilyStore{
		createFn: func(ctx context.Context, tenantID string, f *types.FamilyMember) error {
			created = f
			return nil
		},
	}
	h := newTestClientHandler(&mockClientStore{}, family)

	ctx := contextWithActor("ten_1", types.RoleAdvisor)
	body := FamilyMemberRequest{FirstName: "Paul", LastName: "Dupont", Relationship: "enfant"}
	rr := serve(h, makeRequest("POST", "/clients/cli_1/family", body, ctx))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created == nil || created.ClientID != "cli_1" {
		t.Fatalf("expected member attached to cli_1, got %+v", created)
	}
	if !strings.HasPrefix(created.ID, "fam_") {
		t.Errorf("expected fam_ id prefix, got %q", created.ID)
	}
}
