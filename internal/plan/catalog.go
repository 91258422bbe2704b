// Package plan provides the static plan catalog: which modules and resource
// limits each subscription tier unlocks.
package plan

import "advisy/internal/types"

// Catalog is the authoritative mapping from plan tier to unlocked modules and
// resource limits. This is the single source of truth for what each plan allows.
type Catalog interface {
	// ModulesFor returns the set of modules unlocked by the given tier.
	// For unknown tiers, returns the Start set (most restrictive) to fail
	// safely; an unrecognized plan never grants full access.
	ModulesFor(tier types.PlanTier) []types.Module

	// IsEnabled reports whether the module is part of the tier's set.
	IsEnabled(tier types.PlanTier, module types.Module) bool

	// Limits returns the metered resource limits for the given tier.
	// Unknown tiers fall back to the Start limits.
	Limits(tier types.PlanTier) types.PlanLimits
}

// TierOrder lists the tiers from most restrictive to most permissive.
// Each tier's module set is a strict superset of the previous one.
var TierOrder = []types.PlanTier{
	types.PlanStart,
	types.PlanPro,
	types.PlanPrime,
	types.PlanFounder,
}

// UpgradePath returns the next tier up from the given one. The second return
// is false when the tier is already the top tier (or unknown).
func UpgradePath(tier types.PlanTier) (types.PlanTier, bool) {
	for i, t := range TierOrder {
		if t == tier && i+1 < len(TierOrder) {
			return TierOrder[i+1], true
		}
	}
	return "", false
}

// tierModules defines the per-tier module sets. Each entry lists only the
// modules added over the previous tier; the effective set is cumulative.
var tierModules = map[types.PlanTier][]types.Module{
	types.PlanStart: {
		types.ModuleClients,
		types.ModuleContracts,
	},
	types.PlanPro: {
		types.ModuleCommissions,
		types.ModuleStatements,
		types.ModulePayroll,
	},
	types.PlanPrime: {
		types.ModuleMembership,
		types.ModuleEmailing,
		types.ModuleAutomation,
	},
	types.PlanFounder: {
		types.ModuleMandateAutomation,
		types.ModuleClientPortal,
	},
}

// tierLimits defines the hardcoded resource limits per tier.
// A limit of 0 means the resource is not available on the plan.
var tierLimits = map[types.PlanTier]types.PlanLimits{
	types.PlanStart: {
		StorageGB:     5,
		SMSMonthly:    50,
		EmailsMonthly: 200,
		AIDocsMonthly: 10,
		IncludedSeats: 1,
	},
	types.PlanPro: {
		StorageGB:     20,
		SMSMonthly:    200,
		EmailsMonthly: 1000,
		AIDocsMonthly: 50,
		IncludedSeats: 3,
	},
	types.PlanPrime: {
		StorageGB:     50,
		SMSMonthly:    500,
		EmailsMonthly: 5000,
		AIDocsMonthly: 200,
		IncludedSeats: 5,
	},
	types.PlanFounder: {
		StorageGB:     100,
		SMSMonthly:    2000,
		EmailsMonthly: 20000,
		AIDocsMonthly: 1000,
		IncludedSeats: 10,
	},
}

// staticCatalog is a compile-time catalog backed by in-memory maps.
// It implements Catalog and is the standard implementation for production use.
type staticCatalog struct {
	modules map[types.PlanTier][]types.Module
	limits  map[types.PlanTier]types.PlanLimits
}

// NewStaticCatalog returns a Catalog backed by the hardcoded tier tables.
// No database or external service is required.
func NewStaticCatalog() Catalog {
	// Materialize the cumulative sets so lookups are a single map read, and
	// copy into fresh maps so callers cannot mutate the package-level tables.
	modules := make(map[types.PlanTier][]types.Module, len(TierOrder))
	var cumulative []types.Module
	for _, tier := range TierOrder {
		cumulative = append(cumulative, tierModules[tier]...)
		set := make([]types.Module, len(cumulative))
		copy(set, cumulative)
		modules[tier] = set
	}

	limits := make(map[types.PlanTier]types.PlanLimits, len(tierLimits))
	for k, v := range tierLimits {
		limits[k] = v
	}
	return &staticCatalog{modules: modules, limits: limits}
}

// ModulesFor returns the module set for the given tier.
// Unknown tiers resolve to the Start set as a safe default.
func (c *staticCatalog) ModulesFor(tier types.PlanTier) []types.Module {
	if set, ok := c.modules[tier]; ok {
		return set
	}
	return c.modules[types.PlanStart]
}

// IsEnabled reports whether the module is unlocked by the tier.
func (c *staticCatalog) IsEnabled(tier types.PlanTier, module types.Module) bool {
	for _, m := range c.ModulesFor(tier) {
		if m == module {
			return true
		}
	}
	return false
}

// Limits returns the resource limits for the given tier.
// Unknown tiers resolve to the Start limits as a safe default.
func (c *staticCatalog) Limits(tier types.PlanTier) types.PlanLimits {
	if l, ok := c.limits[tier]; ok {
		return l
	}
	return c.limits[types.PlanStart]
}
