package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"advisy/internal/billing"
	"advisy/internal/core"
	"advisy/internal/plan"
	"advisy/internal/types"
)

// SeatManager is the seat accounting surface. Implemented by
// billing.SeatService.
type SeatManager interface {
	Usage(ctx context.Context, tenantID string) (types.SeatUsage, error)
	AddSeat(ctx context.Context, tenantID string, urls types.RedirectURLs) (*types.SeatAddResult, error)
}

// UsageReporter assembles the consumption snapshot. Implemented by
// billing.Reporter.
type UsageReporter interface {
	Snapshot(ctx context.Context, tenantID string) (*types.UsageSnapshot, error)
}

// PlanBilling is the Stripe surface for plan signup and the billing portal.
// Implemented by external.StripeClient.
type PlanBilling interface {
	EnsureCustomer(ctx context.Context, tenantID string, email string) (string, error)
	CreatePlanCheckout(ctx context.Context, tenantID, customerID string, plan types.PlanTier, urls types.RedirectURLs) (string, string, error)
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error)
}

// BillingTenantStore reads the tenant row for billing operations.
type BillingTenantStore interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
}

// CreateCheckoutRequest is the request body for POST /v1/billing/checkout.
type CreateCheckoutRequest struct {
	Plan       types.PlanTier `json:"plan" validate:"required,oneof=start pro prime founder"`
	SuccessURL string         `json:"success_url" validate:"required,url"`
	CancelURL  string         `json:"cancel_url" validate:"required,url"`
}

// AddSeatRequest is the request body for POST /v1/billing/seats.
type AddSeatRequest struct {
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// PortalRequest is the request body for POST /v1/billing/portal.
type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// MetricView decorates a consumption metric with its percentage and alert
// level for direct rendering.
type MetricView struct {
	types.ConsumptionMetric
	Percent int              `json:"percent"`
	Level   types.AlertLevel `json:"level,omitempty"`
}

// UsageView is the response body for GET /v1/billing/usage.
type UsageView struct {
	Plan       types.PlanTier  `json:"plan"`
	PlanName   string          `json:"plan_name"`
	Metrics    []MetricView    `json:"metrics"`
	Seats      types.SeatUsage `json:"seats"`
	ShowBanner bool            `json:"show_banner"`
}

// PlanView is the response body for GET /v1/billing/plan: the resolved plan
// with its unlocked modules, for client-side gating.
type PlanView struct {
	Plan          types.PlanTier           `json:"plan"`
	PlanName      string                   `json:"plan_name"`
	BillingStatus types.SubscriptionStatus `json:"billing_status"`
	Modules       []types.Module           `json:"modules"`
	UpgradeTo     string                   `json:"upgrade_to,omitempty"`
}

// BillingHandler serves seat accounting, consumption metrics, and the hosted
// Stripe page redirects.
type BillingHandler struct {
	seats     SeatManager
	reporter  UsageReporter
	stripe    PlanBilling
	tenants   BillingTenantStore
	catalog   plan.Catalog
	validator *core.Validator
	logger    *slog.Logger
}

func NewBillingHandler(
	seats SeatManager,
	reporter UsageReporter,
	stripe PlanBilling,
	tenants BillingTenantStore,
	catalog plan.Catalog,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		seats:     seats,
		reporter:  reporter,
		stripe:    stripe,
		tenants:   tenants,
		catalog:   catalog,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts billing routes.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/plan", h.GetPlan)
		r.Get("/usage", h.GetUsage)
		r.Get("/seats", h.GetSeats)
		r.Post("/seats", h.AddSeat)
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/portal", h.CreatePortal)
	})
}

// GetPlan handles GET /v1/billing/plan.
func (h *BillingHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	tenant, err := h.tenants.GetByID(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	view := PlanView{
		Plan:          tenant.Plan,
		PlanName:      plan.DisplayName(tenant.Plan),
		BillingStatus: tenant.BillingStatus,
		Modules:       h.catalog.ModulesFor(tenant.Plan),
	}
	if next, hasNext := plan.UpgradePath(tenant.Plan); hasNext {
		view.UpgradeTo = plan.DisplayName(next)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: view})
}

// GetUsage handles GET /v1/billing/usage: plan limits merged with live
// counters, each metric classified, plus the aggregate banner flag.
func (h *BillingHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	snapshot, err := h.reporter.Snapshot(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	metrics := make([]MetricView, len(snapshot.Metrics))
	for i, m := range snapshot.Metrics {
		percent := billing.PercentUsed(m.Used, m.Limit)
		metrics[i] = MetricView{
			ConsumptionMetric: m,
			Percent:           percent,
			Level:             billing.LevelFor(percent),
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: UsageView{
		Plan:       snapshot.Plan,
		PlanName:   plan.DisplayName(snapshot.Plan),
		Metrics:    metrics,
		Seats:      snapshot.Seats,
		ShowBanner: billing.ShowBanner(snapshot.Metrics),
	}})
}

// GetSeats handles GET /v1/billing/seats.
func (h *BillingHandler) GetSeats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	usage, err := h.seats.Usage(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: usage})
}

// AddSeat handles POST /v1/billing/seats. The response carries either
// `{method: "subscription_update"}` (seat applied immediately) or
// `{method: "checkout", url}` (hosted checkout to complete).
func (h *BillingHandler) AddSeat(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req AddSeatRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.seats.AddSeat(r.Context(), actor.TenantID, types.RedirectURLs{
		Success: req.SuccessURL,
		Cancel:  req.CancelURL,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "seat addition requested",
		"tenant_id", actor.TenantID,
		"method", string(result.Method),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// CreateCheckout handles POST /v1/billing/checkout: plan signup through a
// hosted checkout session. The customer is resolved or created first.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tenant, err := h.tenants.GetByID(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	customerID, err := h.stripe.EnsureCustomer(r.Context(), tenant.ID, tenant.BillingEmail)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	checkoutURL, sessionID, err := h.stripe.CreatePlanCheckout(r.Context(), tenant.ID, customerID, req.Plan, types.RedirectURLs{
		Success: req.SuccessURL,
		Cancel:  req.CancelURL,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "plan checkout session created",
		"tenant_id", tenant.ID,
		"plan", string(req.Plan),
		"session_id", sessionID,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{
		"url":        checkoutURL,
		"session_id": sessionID,
	}})
}

// CreatePortal handles POST /v1/billing/portal.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req PortalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tenant, err := h.tenants.GetByID(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if tenant.StripeCustomerID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			"tenant has no billing account",
			nil,
		))
		return
	}

	portalURL, err := h.stripe.CreatePortalSession(r.Context(), tenant.StripeCustomerID, req.ReturnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{
		"url": portalURL,
	}})
}
