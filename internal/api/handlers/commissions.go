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

// CommissionStore is the data access contract for commission lines.
type CommissionStore interface {
	Create(ctx context.Context, cm *types.Commission) error
	GetByID(ctx context.Context, tenantID, id string) (*types.Commission, error)
	Update(ctx context.Context, cm *types.Commission) error
	UpdateStatus(ctx context.Context, tenantID, id string, status types.CommissionStatus) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, params db.ListCommissionsParams) ([]*types.Commission, types.PageInfo, error)
	TotalForPeriod(ctx context.Context, tenantID, periodMonth string) (int64, error)
}

// CreateCommissionRequest is the request body for POST /v1/commissions.
type CreateCommissionRequest struct {
	ClientID    string  `json:"client_id,omitempty"`
	CompanyID   string  `json:"company_id,omitempty"`
	ContractRef string  `json:"contract_ref" validate:"required,max=100"`
	AmountCents int64   `json:"amount_cents" validate:"required"`
	Rate        float64 `json:"rate" validate:"omitempty,min=0,max=100"`
	PeriodMonth string  `json:"period_month" validate:"required,len=7"` // YYYY-MM
}

// UpdateCommissionRequest is the request body for PATCH /v1/commissions/{id}.
type UpdateCommissionRequest struct {
	ClientID    *string  `json:"client_id,omitempty"`
	CompanyID   *string  `json:"company_id,omitempty"`
	ContractRef *string  `json:"contract_ref,omitempty" validate:"omitempty,max=100"`
	AmountCents *int64   `json:"amount_cents,omitempty"`
	Rate        *float64 `json:"rate,omitempty" validate:"omitempty,min=0,max=100"`
	PeriodMonth *string  `json:"period_month,omitempty" validate:"omitempty,len=7"`
}

// UpdateCommissionStatusRequest is the request body for
// POST /v1/commissions/{id}/status.
type UpdateCommissionStatusRequest struct {
	Status types.CommissionStatus `json:"status" validate:"required,oneof=pending reconciled disputed"`
}

// CommissionHandler manages commission lines and period totals.
type CommissionHandler struct {
	commissions CommissionStore
	gate        *gate.Gate
	validator   *core.Validator
	logger      *slog.Logger
}

func NewCommissionHandler(commissions CommissionStore, g *gate.Gate, v *core.Validator, l *slog.Logger) *CommissionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CommissionHandler{commissions: commissions, gate: g, validator: v, logger: l}
}

// RegisterRoutes mounts commission routes, gated on the commissions module.
func (h *CommissionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/commissions", func(r chi.Router) {
		if h.gate != nil {
			r.Use(gate.RequireModule(h.gate, types.ModuleCommissions))
		}
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/total", h.PeriodTotal)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Post("/status", h.UpdateStatus)
			r.Delete("/", h.Delete)
		})
	})
}

// Create handles POST /v1/commissions.
func (h *CommissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateCommissionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	cm := &types.Commission{
		ID:          "com_" + uuid.NewString(),
		TenantID:    actor.TenantID,
		ClientID:    req.ClientID,
		CompanyID:   req.CompanyID,
		ContractRef: req.ContractRef,
		AmountCents: req.AmountCents,
		Rate:        req.Rate,
		PeriodMonth: req.PeriodMonth,
		Status:      types.CommissionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.commissions.Create(r.Context(), cm); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: cm})
}

// List handles GET /v1/commissions with filters and cursor pagination.
func (h *CommissionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	params := db.ListCommissionsParams{
		ClientID:    r.URL.Query().Get("client_id"),
		CompanyID:   r.URL.Query().Get("company_id"),
		PeriodMonth: r.URL.Query().Get("period_month"),
		Status:      types.CommissionStatus(r.URL.Query().Get("status")),
		Cursor:      r.URL.Query().Get("cursor"),
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

	lines, pageInfo, err := h.commissions.List(r.Context(), actor.TenantID, params)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: lines,
		Meta: &types.ResponseMeta{Pagination: &pageInfo},
	})
}

// PeriodTotal handles GET /v1/commissions/total?period_month=YYYY-MM.
func (h *CommissionHandler) PeriodTotal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	period := r.URL.Query().Get("period_month")
	if period == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"period_month is required",
			nil,
		))
		return
	}

	total, err := h.commissions.TotalForPeriod(r.Context(), actor.TenantID, period)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"period_month":       period,
		"total_amount_cents": total,
	}})
}

// Get handles GET /v1/commissions/{id}.
func (h *CommissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "commission ID")
	if !ok {
		return
	}

	cm, err := h.commissions.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cm})
}

// Update handles PATCH /v1/commissions/{id}.
func (h *CommissionHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "commission ID")
	if !ok {
		return
	}

	var req UpdateCommissionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	cm, err := h.commissions.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.ClientID != nil {
		cm.ClientID = *req.ClientID
	}
	if req.CompanyID != nil {
		cm.CompanyID = *req.CompanyID
	}
	if req.ContractRef != nil {
		cm.ContractRef = *req.ContractRef
	}
	if req.AmountCents != nil {
		cm.AmountCents = *req.AmountCents
	}
	if req.Rate != nil {
		cm.Rate = *req.Rate
	}
	if req.PeriodMonth != nil {
		cm.PeriodMonth = *req.PeriodMonth
	}

	if err := h.commissions.Update(r.Context(), cm); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cm})
}

// UpdateStatus handles POST /v1/commissions/{id}/status.
func (h *CommissionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "commission ID")
	if !ok {
		return
	}

	var req UpdateCommissionStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.commissions.UpdateStatus(r.Context(), actor.TenantID, id, req.Status); err != nil {
		core.Error(w, r, err)
		return
	}

	cm, err := h.commissions.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: cm})
}

// Delete handles DELETE /v1/commissions/{id}.
func (h *CommissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "commission ID")
	if !ok {
		return
	}

	if err := h.commissions.Delete(r.Context(), actor.TenantID, id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
