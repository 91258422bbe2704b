package types

import (
	"context"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
type Actor struct {
	ID       string
	Type     ActorType
	TenantID string
	Role     UserRole
}

// roleRank orders roles for minimum-role checks.
var roleRank = map[UserRole]int{
	RoleAdvisor: 1,
	RoleAdmin:   2,
	RoleOwner:   3,
}

// RoleHasAtLeast reports whether the actor's role meets the minimum.
// Unknown roles rank below every known role.
func (a Actor) RoleHasAtLeast(min UserRole) bool {
	return roleRank[a.Role] >= roleRank[min]
}

// Context Keys
type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
	planInfoKey  contextKey = "plan_info"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the Logger from the context.
// The returned logger is expected to have been pre-enriched with request-scoped
// fields (e.g., RequestID, ActorID) by middleware before storage.
// Returns nil if no logger has been set.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}

// WithPlanInfo stores the resolved tenant plan snapshot in the context.
// Set by the plan-resolution middleware so gate checks and handlers can
// evaluate module access without re-fetching.
func WithPlanInfo(ctx context.Context, info TenantPlanInfo) context.Context {
	return context.WithValue(ctx, planInfoKey, info)
}

// GetPlanInfo retrieves the resolved tenant plan snapshot from the context.
// The second return is false when no resolution has happened for this
// request; callers must treat that as pending, never as access granted.
func GetPlanInfo(ctx context.Context) (TenantPlanInfo, bool) {
	info, ok := ctx.Value(planInfoKey).(TenantPlanInfo)
	return info, ok
}

// Logger defines the structured logging interface used throughout the platform.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
