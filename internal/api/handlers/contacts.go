package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"advisy/internal/core"
	"advisy/internal/types"
)

// ContactStore is the data access contract for company contacts.
type ContactStore interface {
	Create(ctx context.Context, ct *types.CompanyContact) error
	GetByID(ctx context.Context, tenantID, id string) (*types.CompanyContact, error)
	ListByCompany(ctx context.Context, tenantID, companyID string) ([]*types.CompanyContact, error)
	Update(ctx context.Context, ct *types.CompanyContact) error
	Delete(ctx context.Context, tenantID, id string) error
}

// ContactRequest is the request body for creating a company contact.
type ContactRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=30"`
	JobTitle  string `json:"job_title,omitempty" validate:"omitempty,max=100"`
}

// UpdateContactRequest allows partial updates to a company contact.
type UpdateContactRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	JobTitle *string `json:"job_title,omitempty" validate:"omitempty,max=100"`
}

// ContactHandler manages the tenant's address book of insurance company
// contacts.
type ContactHandler struct {
	contacts  ContactStore
	validator *core.Validator
	logger    *slog.Logger
}

func NewContactHandler(contacts ContactStore, v *core.Validator, l *slog.Logger) *ContactHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ContactHandler{contacts: contacts, validator: v, logger: l}
}

// RegisterRoutes mounts company contact routes.
func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.ListByCompany)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// Create handles POST /v1/contacts.
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req ContactRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	contact := &types.CompanyContact{
		ID:        "cct_" + uuid.NewString(),
		TenantID:  actor.TenantID,
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		JobTitle:  req.JobTitle,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.contacts.Create(r.Context(), contact); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: contact})
}

// ListByCompany handles GET /v1/contacts?company_id=...
func (h *ContactHandler) ListByCompany(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	companyID := r.URL.Query().Get("company_id")
	if companyID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"company_id is required",
			nil,
		))
		return
	}

	contacts, err := h.contacts.ListByCompany(r.Context(), actor.TenantID, companyID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: contacts})
}

// Get handles GET /v1/contacts/{id}.
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "contact ID")
	if !ok {
		return
	}

	contact, err := h.contacts.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: contact})
}

// Update handles PATCH /v1/contacts/{id}.
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "contact ID")
	if !ok {
		return
	}

	var req UpdateContactRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	contact, err := h.contacts.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.Name != nil {
		contact.Name = *req.Name
	}
	if req.Email != nil {
		contact.Email = *req.Email
	}
	if req.Phone != nil {
		contact.Phone = *req.Phone
	}
	if req.JobTitle != nil {
		contact.JobTitle = *req.JobTitle
	}

	if err := h.contacts.Update(r.Context(), contact); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: contact})
}

// Delete handles DELETE /v1/contacts/{id}.
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "contact ID")
	if !ok {
		return
	}

	if err := h.contacts.Delete(r.Context(), actor.TenantID, id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
