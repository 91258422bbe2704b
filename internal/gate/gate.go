// Package gate evaluates module access against a tenant's resolved plan.
//
// The gate never decides optimistically: while the plan snapshot is pending
// or failed to load, the outcome is Pending and callers must render nothing.
// A failed plan fetch is never an implicit allow.
package gate

import (
	"fmt"

	"advisy/internal/plan"
	"advisy/internal/types"
)

// State is the tri-state outcome of a gate evaluation.
type State string

const (
	// StatePending means the plan snapshot is not resolved yet (or failed to
	// load with no cached data). Callers render nothing, not a denial.
	StatePending State = "pending"
	StateAllow   State = "allow"
	StateDeny    State = "deny"
)

// Decision is the result of evaluating one or more required modules.
type Decision struct {
	State State

	// Populated on deny.
	MissingModules []types.Module
	MissingLabels  []string
	PlanName       string
	UpgradeTo      string
}

// Allowed is a convenience accessor for the common boolean check.
func (d Decision) Allowed() bool { return d.State == StateAllow }

// Prompt renders the French upgrade prompt for a denied decision, naming the
// missing module labels and the tenant's current plan.
func (d Decision) Prompt() string {
	if d.State != StateDeny || len(d.MissingLabels) == 0 {
		return ""
	}
	label := d.MissingLabels[0]
	msg := fmt.Sprintf("Le module %s n'est pas inclus dans votre offre %s.", label, d.PlanName)
	if d.UpgradeTo != "" {
		msg += fmt.Sprintf(" Passez à l'offre %s pour y accéder.", d.UpgradeTo)
	}
	return msg
}

// suspendedStatuses are billing states under which gated modules are locked.
// The base clients module stays reachable so the tenant can still consult
// its data while regularizing payment.
var suspendedStatuses = map[types.SubscriptionStatus]bool{
	types.SubStatusPastDue:           true,
	types.SubStatusUnpaid:            true,
	types.SubStatusCanceled:          true,
	types.SubStatusIncompleteExpired: true,
}

// Gate evaluates module requirements against the plan catalog.
type Gate struct {
	catalog plan.Catalog
}

// New returns a Gate backed by the given catalog.
func New(catalog plan.Catalog) *Gate {
	return &Gate{catalog: catalog}
}

// Evaluate checks whether the tenant may access a feature requiring any of
// the given modules (ANY semantics: one enabled module suffices).
func (g *Gate) Evaluate(info types.TenantPlanInfo, required ...types.Module) Decision {
	if info.Resolution != types.ResolutionResolved {
		return Decision{State: StatePending}
	}
	if len(required) == 0 {
		return Decision{State: StateAllow}
	}

	if suspendedStatuses[info.BillingStatus] && !onlyBaseModule(required) {
		return g.deny(info, required)
	}

	for _, m := range required {
		if g.catalog.IsEnabled(info.Plan, m) {
			return Decision{State: StateAllow}
		}
	}
	return g.deny(info, required)
}

func onlyBaseModule(required []types.Module) bool {
	for _, m := range required {
		if m != types.ModuleClients {
			return false
		}
	}
	return true
}

func (g *Gate) deny(info types.TenantPlanInfo, required []types.Module) Decision {
	missing := make([]types.Module, 0, len(required))
	labels := make([]string, 0, len(required))
	for _, m := range required {
		if !g.catalog.IsEnabled(info.Plan, m) {
			missing = append(missing, m)
			labels = append(labels, plan.ModuleLabel(m))
		}
	}
	// Billing suspension can deny even modules the plan includes.
	if len(missing) == 0 {
		missing = append(missing, required...)
		for _, m := range required {
			labels = append(labels, plan.ModuleLabel(m))
		}
	}

	return Decision{
		State:          StateDeny,
		MissingModules: missing,
		MissingLabels:  labels,
		PlanName:       plan.DisplayName(info.Plan),
		UpgradeTo:      g.upgradeTarget(info.Plan, required),
	}
}

// upgradeTarget walks the tier order upward from the current plan and returns
// the display name of the first tier that unlocks any required module.
func (g *Gate) upgradeTarget(current types.PlanTier, required []types.Module) string {
	tier := current
	for {
		next, ok := plan.UpgradePath(tier)
		if !ok {
			return ""
		}
		for _, m := range required {
			if g.catalog.IsEnabled(next, m) {
				return plan.DisplayName(next)
			}
		}
		tier = next
	}
}
