package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"advisy/internal/core"
	"advisy/internal/types"
)

// UserStore is the persistence surface for tenant members.
type UserStore interface {
	Create(ctx context.Context, u *types.User) error
	GetByID(ctx context.Context, tenantID, id string) (*types.User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*types.User, error)
	UpdateRole(ctx context.Context, tenantID, id string, role types.UserRole) error
	UpdateStatus(ctx context.Context, tenantID, id string, status types.UserStatus) error
	Delete(ctx context.Context, tenantID, id string) error
}

// SeatGuard gates member creation on seat availability. Implemented by
// billing.SeatService.
type SeatGuard interface {
	CheckCanAdd(ctx context.Context, tenantID string) error
}

// InviteMailer delivers the invitation email. May be nil; invitations are
// then created without a notification.
type InviteMailer interface {
	SendTemplate(ctx context.Context, req types.EmailRequest) (string, error)
}

// InviteUserRequest is the request body for POST /v1/users.
type InviteUserRequest struct {
	Email string         `json:"email" validate:"required,email"`
	Name  string         `json:"name" validate:"required,max=200"`
	Role  types.UserRole `json:"role" validate:"required,oneof=admin advisor"`
	Phone string         `json:"phone,omitempty" validate:"omitempty,max=20"`
}

// UpdateRoleRequest is the request body for PATCH /v1/users/{id}/role.
type UpdateRoleRequest struct {
	Role types.UserRole `json:"role" validate:"required,oneof=admin advisor"`
}

// UpdateUserStatusRequest is the request body for PATCH /v1/users/{id}/status.
type UpdateUserStatusRequest struct {
	Status types.UserStatus `json:"status" validate:"required,oneof=active disabled"`
}

// UserHandler serves tenant member management. Every mutation below list/get
// requires at least the admin role.
type UserHandler struct {
	users     UserStore
	seats     SeatGuard
	mailer    InviteMailer
	validator *core.Validator
	logger    *slog.Logger
}

func NewUserHandler(users UserStore, seats SeatGuard, mailer InviteMailer, v *core.Validator, l *slog.Logger) *UserHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UserHandler{
		users:     users,
		seats:     seats,
		mailer:    mailer,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts user management routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Invite)
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/role", h.UpdateRole)
			r.Patch("/status", h.UpdateStatus)
			r.Delete("/", h.Delete)
		})
	})
}

// List handles GET /v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	users, err := h.users.ListByTenant(r.Context(), actor.TenantID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: users})
}

// Get handles GET /v1/users/{userID}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "userID", "user id")
	if !ok {
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// Invite handles POST /v1/users. Seat availability is checked before the row
// is created; a refusal carries the seat counts so the client can offer the
// paid-seat flow.
func (h *UserHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.requireAdmin(w, r, actor) {
		return
	}

	var req InviteUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.seats.CheckCanAdd(r.Context(), actor.TenantID); err != nil {
		core.Error(w, r, err)
		return
	}

	user := &types.User{
		ID:       "usr_" + uuid.NewString(),
		TenantID: actor.TenantID,
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		Status:   types.UserStatusInvited,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.mailer != nil {
		_, err := h.mailer.SendTemplate(r.Context(), types.EmailRequest{
			Type:           types.TemplateAccountCreated,
			RecipientEmail: user.Email,
			RecipientName:  user.Name,
			Data: map[string]any{
				"inviterName": actor.ID,
			},
		})
		if err != nil {
			// The member row exists; the invite can be re-sent later.
			h.logger.ErrorContext(r.Context(), "failed to send invite email",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	h.logger.InfoContext(r.Context(), "user invited",
		"tenant_id", actor.TenantID,
		"user_id", user.ID,
		"role", string(user.Role),
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: user})
}

// UpdateRole handles PATCH /v1/users/{userID}/role. Owners cannot be
// demoted through this endpoint.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.requireAdmin(w, r, actor) {
		return
	}
	id, ok := urlID(w, r, "userID", "user id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	target, err := h.users.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if target.Role == types.RoleOwner {
		core.Error(w, r, types.NewAppError(
			types.ErrCodePermissionRole,
			"the owner role cannot be changed",
			nil,
		))
		return
	}

	if err := h.users.UpdateRole(r.Context(), actor.TenantID, id, req.Role); err != nil {
		core.Error(w, r, err)
		return
	}

	target.Role = req.Role
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: target})
}

// UpdateStatus handles PATCH /v1/users/{userID}/status. Disabling a member
// frees their seat without deleting history.
func (h *UserHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.requireAdmin(w, r, actor) {
		return
	}
	id, ok := urlID(w, r, "userID", "user id")
	if !ok {
		return
	}

	var req UpdateUserStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if id == actor.ID && req.Status == types.UserStatusDisabled {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBody,
			"you cannot disable your own account",
			nil,
		))
		return
	}

	if req.Status == types.UserStatusActive {
		// Re-enabling a member takes a seat back.
		if err := h.seats.CheckCanAdd(r.Context(), actor.TenantID); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	if err := h.users.UpdateStatus(r.Context(), actor.TenantID, id, req.Status); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: user})
}

// Delete handles DELETE /v1/users/{userID}.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if !h.requireAdmin(w, r, actor) {
		return
	}
	id, ok := urlID(w, r, "userID", "user id")
	if !ok {
		return
	}

	if id == actor.ID {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationBody,
			"you cannot delete your own account",
			nil,
		))
		return
	}

	target, err := h.users.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if target.Role == types.RoleOwner {
		core.Error(w, r, types.NewAppError(
			types.ErrCodePermissionRole,
			"the owner account cannot be deleted",
			nil,
		))
		return
	}

	if err := h.users.Delete(r.Context(), actor.TenantID, id); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user deleted",
		"tenant_id", actor.TenantID,
		"user_id", id,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) requireAdmin(w http.ResponseWriter, r *http.Request, actor types.Actor) bool {
	if actor.RoleHasAtLeast(types.RoleAdmin) {
		return true
	}
	core.Error(w, r, types.NewAppError(
		types.ErrCodePermissionRole,
		fmt.Sprintf("role %s cannot manage members", actor.Role),
		nil,
	))
	return false
}
