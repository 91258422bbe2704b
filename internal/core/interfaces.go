package core

import (
	"context"

	"advisy/internal/types"
)

// Authenticator decouples the HTTP layer from the specific auth mechanism
// (DB lookups against the hosted auth service), allowing for easy mocking.
type Authenticator interface {
	// ResolveToken resolves a bearer token to the acting user.
	//
	// Distinct error codes:
	//   - ErrCodeAuthTokenInvalid when the token is malformed, unknown, or revoked.
	//   - ErrCodeAuthTokenExpired when the token exists but has expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// PlanResolver loads the plan snapshot for the actor's tenant. It runs once
// per authenticated request, after the Authenticator.
//
// Implementations must return an error rather than a zero snapshot on
// failure: the middleware records the failure as an unresolved plan, which
// downstream gating treats as pending, never as access granted.
type PlanResolver interface {
	ResolvePlan(ctx context.Context, tenantID string) (types.TenantPlanInfo, error)
}
