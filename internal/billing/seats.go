// Package billing provides seat accounting, consumption metrics, and the
// Stripe-backed seat purchase flow.
package billing

import (
	"context"
	"log/slog"

	"advisy/internal/types"
)

// ComputeSeats derives the seat figures for a tenant. Available may be
// negative when active users exceed purchased seats; the deficit is
// preserved so the UI can show it, never clamped to zero.
func ComputeSeats(seatsIncluded, extraUsers, activeUsers int) types.SeatUsage {
	total := seatsIncluded + extraUsers
	available := total - activeUsers
	return types.SeatUsage{
		TotalSeats:     total,
		AvailableSeats: available,
		CanAddUser:     available > 0,
	}
}

// TenantStore is the minimal tenant access SeatService needs.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*types.Tenant, error)
	SetExtraUsers(ctx context.Context, id string, extraUsers int) error
}

// UserCounter reports how many seat-consuming users a tenant has.
type UserCounter interface {
	CountActive(ctx context.Context, tenantID string) (int, error)
}

// SeatBilling is the Stripe surface for seat purchases. Implemented by
// external.StripeClient.
type SeatBilling interface {
	// UpdateSeatQuantity sets the extra-seat line quantity on an existing
	// subscription. The change bills by proration and applies immediately.
	UpdateSeatQuantity(ctx context.Context, subscriptionID string, quantity int) error

	// CreateSeatCheckout opens a hosted checkout session for the first extra
	// seat when the tenant has no seat line yet. The seat activates when the
	// checkout.session.completed webhook arrives.
	CreateSeatCheckout(ctx context.Context, customerID, tenantID string, urls types.RedirectURLs) (string, error)
}

// SeatService implements the seat addition protocol. Two paths exist:
// tenants with an active subscription get an immediate quantity update,
// tenants without one are sent through hosted checkout.
type SeatService struct {
	tenants TenantStore
	users   UserCounter
	stripe  SeatBilling
	logger  *slog.Logger
}

// NewSeatService creates a SeatService.
func NewSeatService(tenants TenantStore, users UserCounter, stripe SeatBilling, logger *slog.Logger) *SeatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeatService{tenants: tenants, users: users, stripe: stripe, logger: logger}
}

// Usage returns the current seat figures for a tenant.
func (s *SeatService) Usage(ctx context.Context, tenantID string) (types.SeatUsage, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return types.SeatUsage{}, err
	}
	active, err := s.users.CountActive(ctx, tenantID)
	if err != nil {
		return types.SeatUsage{}, err
	}
	return ComputeSeats(tenant.SeatsIncluded, tenant.ExtraUsers, active), nil
}

// CheckCanAdd returns nil when the tenant has a free seat, or a seat limit
// error carrying the current figures. The invite flow calls this before
// creating a user.
func (s *SeatService) CheckCanAdd(ctx context.Context, tenantID string) error {
	usage, err := s.Usage(ctx, tenantID)
	if err != nil {
		return err
	}
	if usage.CanAddUser {
		return nil
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeLimitSeats,
		"no seats available; purchase an additional seat first",
		nil,
		map[string]any{
			"total_seats":     usage.TotalSeats,
			"available_seats": usage.AvailableSeats,
		},
	)
}

// AddSeat purchases one extra seat for the tenant.
//
// With an existing subscription the seat line quantity is bumped and the
// local extra_users count updated in the same call; the seat is usable
// immediately. Without a subscription the caller receives a checkout URL and
// the count is updated later by the webhook, once payment completes.
func (s *SeatService) AddSeat(ctx context.Context, tenantID string, urls types.RedirectURLs) (*types.SeatAddResult, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if tenant.StripeSubscriptionID != "" {
		newExtra := tenant.ExtraUsers + 1
		if err := s.stripe.UpdateSeatQuantity(ctx, tenant.StripeSubscriptionID, newExtra); err != nil {
			return nil, err
		}
		if err := s.tenants.SetExtraUsers(ctx, tenant.ID, newExtra); err != nil {
			// Stripe already billed the seat; the webhook re-syncs the count
			// from the subscription on the next event.
			s.logger.ErrorContext(ctx, "seat quantity updated in stripe but local update failed",
				"tenant_id", tenant.ID,
				"extra_users", newExtra,
				"error", err,
			)
			return nil, err
		}
		s.logger.InfoContext(ctx, "seat added via subscription update",
			"tenant_id", tenant.ID,
			"extra_users", newExtra,
		)
		return &types.SeatAddResult{Method: types.SeatAddSubscriptionUpdate}, nil
	}

	if tenant.StripeCustomerID == "" {
		return nil, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			"tenant has no billing account; complete plan signup first",
			nil,
		)
	}

	checkoutURL, err := s.stripe.CreateSeatCheckout(ctx, tenant.StripeCustomerID, tenant.ID, urls)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "seat checkout session created", "tenant_id", tenant.ID)
	return &types.SeatAddResult{Method: types.SeatAddCheckout, URL: checkoutURL}, nil
}
