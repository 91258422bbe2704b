package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"advisy/internal/core"
	"advisy/internal/db"
	"advisy/internal/gate"
	"advisy/internal/types"
)

// ClientStore is the data access contract for client records. Mirrors the
// concrete db.ClientRepository methods used by this handler.
type ClientStore interface {
	Create(ctx context.Context, c *types.Client) error
	GetByID(ctx context.Context, tenantID, id string) (*types.Client, error)
	Update(ctx context.Context, c *types.Client) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, params db.ListClientsParams) ([]*types.Client, types.PageInfo, error)
}

// FamilyStore provides access to family members attached to a client.
type FamilyStore interface {
	Create(ctx context.Context, tenantID string, f *types.FamilyMember) error
	ListByClient(ctx context.Context, tenantID, clientID string) ([]*types.FamilyMember, error)
	Update(ctx context.Context, tenantID string, f *types.FamilyMember) error
	Delete(ctx context.Context, tenantID, id string) error
}

// CreateClientRequest is the request body for POST /v1/clients.
type CreateClientRequest struct {
	FirstName  string     `json:"first_name" validate:"required,max=100"`
	LastName   string     `json:"last_name" validate:"required,max=100"`
	Email      string     `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string     `json:"phone,omitempty" validate:"omitempty,max=30"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Address    string     `json:"address,omitempty" validate:"omitempty,max=300"`
	PostalCode string     `json:"postal_code,omitempty" validate:"omitempty,max=10"`
	City       string     `json:"city,omitempty" validate:"omitempty,max=100"`
	Notes      string     `json:"notes,omitempty" validate:"omitempty,max=5000"`
	AdvisorID  string     `json:"advisor_id,omitempty"`
}

// UpdateClientRequest is the request body for PATCH /v1/clients/{id}.
// Pointer fields allow partial updates.
type UpdateClientRequest struct {
	FirstName  *string    `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName   *string    `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Email      *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone      *string    `json:"phone,omitempty" validate:"omitempty,max=30"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Address    *string    `json:"address,omitempty" validate:"omitempty,max=300"`
	PostalCode *string    `json:"postal_code,omitempty" validate:"omitempty,max=10"`
	City       *string    `json:"city,omitempty" validate:"omitempty,max=100"`
	Notes      *string    `json:"notes,omitempty" validate:"omitempty,max=5000"`
	AdvisorID  *string    `json:"advisor_id,omitempty"`
}

// FamilyMemberRequest is the request body for creating or updating a family
// member attached to a client.
type FamilyMemberRequest struct {
	FirstName    string     `json:"first_name" validate:"required,max=100"`
	LastName     string     `json:"last_name" validate:"required,max=100"`
	Relationship string     `json:"relationship" validate:"required,max=50"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
}

// ClientHandler manages client CRUD and the nested family member records.
type ClientHandler struct {
	clients   ClientStore
	family    FamilyStore
	gate      *gate.Gate
	validator *core.Validator
	logger    *slog.Logger
}

func NewClientHandler(clients ClientStore, family FamilyStore, g *gate.Gate, v *core.Validator, l *slog.Logger) *ClientHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ClientHandler{clients: clients, family: family, gate: g, validator: v, logger: l}
}

// RegisterRoutes mounts client routes. The whole subtree is gated on the
// clients module.
func (h *ClientHandler) RegisterRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		if h.gate != nil {
			r.Use(gate.RequireModule(h.gate, types.ModuleClients))
		}
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)

			r.Route("/family", func(r chi.Router) {
				r.Get("/", h.ListFamily)
				r.Post("/", h.CreateFamilyMember)
				r.Patch("/{memberID}", h.UpdateFamilyMember)
				r.Delete("/{memberID}", h.DeleteFamilyMember)
			})
		})
	})
}

// Create handles POST /v1/clients.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateClientRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Unassigned clients default to the creating advisor.
	advisorID := req.AdvisorID
	if advisorID == "" {
		advisorID = actor.ID
	}

	now := time.Now().UTC()
	client := &types.Client{
		ID:         "cli_" + uuid.NewString(),
		TenantID:   actor.TenantID,
		AdvisorID:  advisorID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
		BirthDate:  req.BirthDate,
		Address:    req.Address,
		PostalCode: req.PostalCode,
		City:       req.City,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.clients.Create(r.Context(), client); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "client created",
		"client_id", client.ID,
		"tenant_id", actor.TenantID,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: client})
}

// List handles GET /v1/clients with search and cursor pagination.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	params := db.ListClientsParams{
		AdvisorID: r.URL.Query().Get("advisor_id"),
		Search:    r.URL.Query().Get("search"),
		Cursor:    r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 || parsed > 100 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a number between 1 and 100",
				nil,
			))
			return
		}
		params.Limit = parsed
	}

	clients, pageInfo, err := h.clients.List(r.Context(), actor.TenantID, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: clients,
		Meta: &types.ResponseMeta{Pagination: &pageInfo},
	})
}

// Get handles GET /v1/clients/{id}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "client ID")
	if !ok {
		return
	}

	client, err := h.clients.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: client})
}

// Update handles PATCH /v1/clients/{id}. The updated row is re-read by the
// repository and returned in full.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "client ID")
	if !ok {
		return
	}

	var req UpdateClientRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	client, err := h.clients.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.FirstName != nil {
		client.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		client.LastName = *req.LastName
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.BirthDate != nil {
		client.BirthDate = req.BirthDate
	}
	if req.Address != nil {
		client.Address = *req.Address
	}
	if req.PostalCode != nil {
		client.PostalCode = *req.PostalCode
	}
	if req.City != nil {
		client.City = *req.City
	}
	if req.Notes != nil {
		client.Notes = *req.Notes
	}
	if req.AdvisorID != nil {
		client.AdvisorID = *req.AdvisorID
	}

	if err := h.clients.Update(r.Context(), client); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: client})
}

// Delete handles DELETE /v1/clients/{id}. Deletion is soft; attached records
// keep their rows.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "client ID")
	if !ok {
		return
	}

	if err := h.clients.Delete(r.Context(), actor.TenantID, id); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "client deleted",
		"client_id", id,
		"tenant_id", actor.TenantID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// ListFamily handles GET /v1/clients/{id}/family.
func (h *ClientHandler) ListFamily(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	clientID, ok := urlID(w, r, "id", "client ID")
	if !ok {
		return
	}

	members, err := h.family.ListByClient(r.Context(), actor.TenantID, clientID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: members})
}

// CreateFamilyMember handles POST /v1/clients/{id}/family.
func (h *ClientHandler) CreateFamilyMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	clientID, ok := urlID(w, r, "id", "client ID")
	if !ok {
		return
	}

	var req FamilyMemberRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Ensure the client exists in this tenant before attaching.
	if _, err := h.clients.GetByID(r.Context(), actor.TenantID, clientID); err != nil {
		core.Error(w, r, err)
		return
	}

	member := &types.FamilyMember{
		ID:           "fam_" + uuid.NewString(),
		ClientID:     clientID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Relationship: req.Relationship,
		BirthDate:    req.BirthDate,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.family.Create(r.Context(), actor.TenantID, member); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: member})
}

// UpdateFamilyMember handles PATCH /v1/clients/{id}/family/{memberID}.
func (h *ClientHandler) UpdateFamilyMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	clientID, ok := urlID(w, r, "id", "client ID")
	if !ok {
		return
	}
	memberID, ok := urlID(w, r, "memberID", "family member ID")
	if !ok {
		return
	}

	var req FamilyMemberRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	member := &types.FamilyMember{
		ID:           memberID,
		ClientID:     clientID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Relationship: req.Relationship,
		BirthDate:    req.BirthDate,
	}
	if err := h.family.Update(r.Context(), actor.TenantID, member); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: member})
}

// DeleteFamilyMember handles DELETE /v1/clients/{id}/family/{memberID}.
func (h *ClientHandler) DeleteFamilyMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if _, ok := urlID(w, r, "id", "client ID"); !ok {
		return
	}
	memberID, ok := urlID(w, r, "memberID", "family member ID")
	if !ok {
		return
	}

	if err := h.family.Delete(r.Context(), actor.TenantID, memberID); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
