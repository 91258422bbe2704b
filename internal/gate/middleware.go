package gate

import (
	"net/http"

	"advisy/internal/core"
	"advisy/internal/types"
)

// RequireModule returns middleware that blocks the request unless the
// tenant's plan unlocks at least one of the given modules.
//
// The plan-resolution middleware must run first and store the snapshot in
// the context. A missing or failed snapshot is rejected as unavailable,
// never allowed through.
func RequireModule(g *Gate, modules ...types.Module) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := types.GetPlanInfo(r.Context())
			if !ok {
				info = types.TenantPlanInfo{Resolution: types.ResolutionPending}
			}

			decision := g.Evaluate(info, modules...)
			switch decision.State {
			case StateAllow:
				next.ServeHTTP(w, r)
			case StatePending:
				core.Error(w, r, types.NewAppError(
					types.ErrCodeUpstreamUnavailable,
					"Plan could not be resolved for this request",
					nil,
				))
			default:
				core.Error(w, r, types.NewAppErrorWithDetails(
					types.ErrCodePermissionModule,
					decision.Prompt(),
					nil,
					map[string]any{
						"missing_modules": decision.MissingLabels,
						"current_plan":    decision.PlanName,
						"upgrade_to":      decision.UpgradeTo,
					},
				))
			}
		})
	}
}
