package gate

import (
	"strings"
	"testing"

	"advisy/internal/plan"
	"advisy/internal/types"
)

func newGate() *Gate {
	return New(plan.NewStaticCatalog())
}

func resolved(tier types.PlanTier) types.TenantPlanInfo {
	return types.TenantPlanInfo{
		TenantID:      "ten_1",
		Plan:          tier,
		BillingStatus: types.SubStatusActive,
		Resolution:    types.ResolutionResolved,
	}
}

// TestEvaluatePendingRendersNothing verifies the anti-flicker contract: no
// decision is made while the plan is unresolved.
func TestEvaluatePendingRendersNothing(t *testing.T) {
	g := newGate()

	for _, res := range []types.PlanResolution{types.ResolutionPending, types.ResolutionFailed} {
		info := types.TenantPlanInfo{Plan: types.PlanFounder, Resolution: res}
		d := g.Evaluate(info, types.ModuleClients)
		if d.State != StatePending {
			t.Errorf("resolution %q: state = %q, want pending", res, d.State)
		}
		if d.Allowed() {
			t.Errorf("resolution %q must never grant access", res)
		}
	}
}

// TestEvaluateFailedFetchNeverAllows covers the failure path explicitly: even
// a founder-tier snapshot is useless when resolution failed.
func TestEvaluateFailedFetchNeverAllows(t *testing.T) {
	g := newGate()
	info := types.TenantPlanInfo{
		Plan:          types.PlanFounder,
		BillingStatus: types.SubStatusActive,
		Resolution:    types.ResolutionFailed,
	}
	if d := g.Evaluate(info, types.ModulePayroll); d.Allowed() {
		t.Fatal("failed resolution produced an allow")
	}
}

// TestStartPlanPayrollUpgradePrompt is the canonical denial scenario: a Start
// tenant hitting the payroll module gets an upgrade prompt naming the module
// and the current plan, and the same tenant on Pro gets through.
func TestStartPlanPayrollUpgradePrompt(t *testing.T) {
	g := newGate()

	d := g.Evaluate(resolved(types.PlanStart), types.ModulePayroll)
	if d.State != StateDeny {
		t.Fatalf("state = %q, want deny", d.State)
	}
	if len(d.MissingLabels) != 1 || d.MissingLabels[0] != "Masse salariale" {
		t.Errorf("missing labels = %v, want [Masse salariale]", d.MissingLabels)
	}
	if d.PlanName != "Start" {
		t.Errorf("plan name = %q, want Start", d.PlanName)
	}
	if d.UpgradeTo != "Pro" {
		t.Errorf("upgrade target = %q, want Pro", d.UpgradeTo)
	}
	prompt := d.Prompt()
	if !strings.Contains(prompt, "Masse salariale") || !strings.Contains(prompt, "Start") {
		t.Errorf("prompt %q must name the module and the current plan", prompt)
	}

	if d := g.Evaluate(resolved(types.PlanPro), types.ModulePayroll); !d.Allowed() {
		t.Errorf("pro plan should unlock payroll, got state %q", d.State)
	}
}

// TestEvaluateAnySemantics verifies one enabled module among several suffices.
func TestEvaluateAnySemantics(t *testing.T) {
	g := newGate()

	// Start has clients but not emailing: ANY over both must allow.
	d := g.Evaluate(resolved(types.PlanStart), types.ModuleEmailing, types.ModuleClients)
	if !d.Allowed() {
		t.Errorf("ANY semantics: state = %q, want allow", d.State)
	}

	// Neither module on Start: deny listing both labels.
	d = g.Evaluate(resolved(types.PlanStart), types.ModuleEmailing, types.ModuleAutomation)
	if d.State != StateDeny {
		t.Fatalf("state = %q, want deny", d.State)
	}
	if len(d.MissingLabels) != 2 {
		t.Errorf("missing labels = %v, want both modules listed", d.MissingLabels)
	}
}

// TestEvaluateNoRequirements verifies an empty requirement list allows.
func TestEvaluateNoRequirements(t *testing.T) {
	g := newGate()
	if d := g.Evaluate(resolved(types.PlanStart)); !d.Allowed() {
		t.Errorf("no required modules: state = %q, want allow", d.State)
	}
}

// TestSuspendedBillingLocksGatedModules verifies past-due tenants lose gated
// modules but keep the base clients module.
func TestSuspendedBillingLocksGatedModules(t *testing.T) {
	g := newGate()
	info := resolved(types.PlanPrime)
	info.BillingStatus = types.SubStatusPastDue

	if d := g.Evaluate(info, types.ModuleCommissions); d.Allowed() {
		t.Error("past-due tenant should not access commissions")
	}
	if d := g.Evaluate(info, types.ModuleClients); !d.Allowed() {
		t.Errorf("past-due tenant must keep the clients module, got %q", d.State)
	}
}

// TestUpgradeTargetSkipsTiers verifies the target is the first tier that
// actually unlocks the module, not blindly the next tier.
func TestUpgradeTargetSkipsTiers(t *testing.T) {
	g := newGate()

	d := g.Evaluate(resolved(types.PlanStart), types.ModuleClientPortal)
	if d.State != StateDeny {
		t.Fatalf("state = %q, want deny", d.State)
	}
	if d.UpgradeTo != "Founder" {
		t.Errorf("upgrade target = %q, want Founder (first tier with client portal)", d.UpgradeTo)
	}
}

// TestUnknownPlanDeniesBeyondStart verifies the catalog fallback flows
// through the gate: an unknown plan behaves as Start.
func TestUnknownPlanDeniesBeyondStart(t *testing.T) {
	g := newGate()
	info := resolved(types.PlanTier("legacy_gold"))

	if d := g.Evaluate(info, types.ModuleClients); !d.Allowed() {
		t.Errorf("unknown plan should retain Start modules, got %q", d.State)
	}
	if d := g.Evaluate(info, types.ModuleMandateAutomation); d.Allowed() {
		t.Error("unknown plan must not unlock founder modules")
	}
}
