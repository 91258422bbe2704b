package plan

import "advisy/internal/types"

// Display names shown in upgrade prompts and billing views.
var tierDisplayNames = map[types.PlanTier]string{
	types.PlanStart:   "Start",
	types.PlanPro:     "Pro",
	types.PlanPrime:   "Prime",
	types.PlanFounder: "Founder",
}

// French labels for gated modules, used verbatim in upgrade prompts.
var moduleLabels = map[types.Module]string{
	types.ModuleClients:           "Clients",
	types.ModuleContracts:         "Contrats",
	types.ModuleCommissions:       "Commissions",
	types.ModuleStatements:        "Bordereaux",
	types.ModuleMembership:        "Adhésions",
	types.ModulePayroll:           "Masse salariale",
	types.ModuleEmailing:          "Emailing",
	types.ModuleAutomation:        "Automatisation",
	types.ModuleMandateAutomation: "Automatisation des mandats",
	types.ModuleClientPortal:      "Portail client",
}

// DisplayName returns the marketing name for a tier. Unknown tiers render as
// the Start tier, consistent with the catalog fallback.
func DisplayName(tier types.PlanTier) string {
	if name, ok := tierDisplayNames[tier]; ok {
		return name
	}
	return tierDisplayNames[types.PlanStart]
}

// ModuleLabel returns the French label for a module. Unknown modules fall
// back to their raw identifier rather than an empty string.
func ModuleLabel(module types.Module) string {
	if label, ok := moduleLabels[module]; ok {
		return label
	}
	return string(module)
}
