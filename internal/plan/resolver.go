package plan

import (
	"context"
	"log/slog"

	"advisy/internal/types"
)

// TenantGetter is the tenant lookup the resolver needs.
type TenantGetter interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
}

// TenantPlanResolver loads the plan snapshot the gate middleware evaluates.
// It runs once per authenticated request.
type TenantPlanResolver struct {
	tenants TenantGetter
	logger  *slog.Logger
}

func NewTenantPlanResolver(tenants TenantGetter, logger *slog.Logger) *TenantPlanResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantPlanResolver{tenants: tenants, logger: logger}
}

// ResolvePlan returns the tenant's plan snapshot. On lookup failure the
// snapshot carries ResolutionFailed alongside the error; gating treats an
// unresolved plan as pending, never as access granted.
func (r *TenantPlanResolver) ResolvePlan(ctx context.Context, tenantID string) (types.TenantPlanInfo, error) {
	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return types.TenantPlanInfo{
			TenantID:   tenantID,
			Resolution: types.ResolutionFailed,
		}, err
	}
	return types.TenantPlanInfo{
		TenantID:      tenant.ID,
		Plan:          tenant.Plan,
		BillingStatus: tenant.BillingStatus,
		Resolution:    types.ResolutionResolved,
	}, nil
}
