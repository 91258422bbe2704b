package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// TenantRepository provides data access for the tenants table (brokerage
// cabinets). Seat configuration and Stripe references live here; derived seat
// figures are computed in the billing package.
type TenantRepository struct {
	db DBTX
}

// NewTenantRepository creates a new TenantRepository backed by the given
// database connection (pool or transaction).
func NewTenantRepository(db DBTX) *TenantRepository {
	return &TenantRepository{db: db}
}

// tenantColumns defines the standard set of columns selected for tenant
// queries. Used consistently across all query methods to avoid column drift.
const tenantColumns = `t.id, t.name, t.billing_email, t.plan, t.billing_status,
	t.stripe_customer_id, t.stripe_subscription_id,
	t.seats_included, t.extra_users,
	t.created_at, t.updated_at, t.deleted_at`

// scanTenant scans a single tenant row into a types.Tenant struct.
// The columns must match the order defined in tenantColumns.
func scanTenant(row pgx.Row) (*types.Tenant, error) {
	var t types.Tenant
	var stripeCustomerID, stripeSubscriptionID *string

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.BillingEmail,
		&t.Plan,
		&t.BillingStatus,
		&stripeCustomerID,
		&stripeSubscriptionID,
		&t.SeatsIncluded,
		&t.ExtraUsers,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if stripeCustomerID != nil {
		t.StripeCustomerID = *stripeCustomerID
	}
	if stripeSubscriptionID != nil {
		t.StripeSubscriptionID = *stripeSubscriptionID
	}
	return &t, nil
}

// Create inserts a new tenant record. The caller must set the ID (prefixed
// UUID, e.g. "tn_...") and required fields before calling.
func (r *TenantRepository) Create(ctx context.Context, t *types.Tenant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tenants (id, name, billing_email, plan, billing_status,
		 stripe_customer_id, stripe_subscription_id, seats_included, extra_users,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		 COALESCE($10, NOW()), COALESCE($11, NOW()))`,
		t.ID,
		t.Name,
		t.BillingEmail,
		t.Plan,
		t.BillingStatus,
		nilIfEmpty(t.StripeCustomerID),
		nilIfEmpty(t.StripeSubscriptionID),
		t.SeatsIncluded,
		t.ExtraUsers,
		nilIfZeroTime(t.CreatedAt),
		nilIfZeroTime(t.UpdatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create tenant")
	}
	return nil
}

// GetByID retrieves a tenant by its ID. Excludes soft-deleted tenants.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t
		 WHERE t.id = $1 AND t.deleted_at IS NULL`,
		id,
	)

	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve tenant")
	}
	return t, nil
}

// GetByStripeCustomerID retrieves a tenant by its Stripe customer reference.
// Used by the webhook handler to locate the tenant for a billing event.
func (r *TenantRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*types.Tenant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+`
		 FROM tenants t
		 WHERE t.stripe_customer_id = $1 AND t.deleted_at IS NULL`,
		customerID,
	)

	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found for customer", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve tenant by customer")
	}
	return t, nil
}

// GetPlanInfo loads the minimal plan snapshot the request middleware stores
// in the context. It is the hot path behind every authenticated request, so
// it reads only the three columns gating needs.
func (r *TenantRepository) GetPlanInfo(ctx context.Context, tenantID string) (types.TenantPlanInfo, error) {
	info := types.TenantPlanInfo{TenantID: tenantID}
	err := r.db.QueryRow(ctx,
		`SELECT plan, billing_status
		 FROM tenants
		 WHERE id = $1 AND deleted_at IS NULL`,
		tenantID,
	).Scan(&info.Plan, &info.BillingStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.TenantPlanInfo{}, types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
		}
		return types.TenantPlanInfo{}, wrapDBError(err, "failed to load plan snapshot")
	}
	info.Resolution = types.ResolutionResolved
	return info, nil
}

// UpdatePlan updates the tenant's plan tier, billing status, and included
// seat count. Used by the billing integration to apply plan changes from
// Stripe webhooks.
func (r *TenantRepository) UpdatePlan(ctx context.Context, id string, plan types.PlanTier, status types.SubscriptionStatus, seatsIncluded int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET plan = $1,
		     billing_status = $2,
		     seats_included = $3,
		     updated_at = NOW()
		 WHERE id = $4 AND deleted_at IS NULL`,
		plan,
		status,
		seatsIncluded,
		id,
	)
	if err != nil {
		return wrapDBError(err, "failed to update tenant plan")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// UpdateBillingStatus updates only the subscription status. Used for webhook
// events that change payment state without a plan change (past_due, unpaid).
func (r *TenantRepository) UpdateBillingStatus(ctx context.Context, id string, status types.SubscriptionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET billing_status = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		status, id,
	)
	if err != nil {
		return wrapDBError(err, "failed to update billing status")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// UpdateStripeRefs stores the Stripe customer and subscription identifiers
// after checkout completes.
func (r *TenantRepository) UpdateStripeRefs(ctx context.Context, id, customerID, subscriptionID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants
		 SET stripe_customer_id = $1,
		     stripe_subscription_id = $2,
		     updated_at = NOW()
		 WHERE id = $3 AND deleted_at IS NULL`,
		nilIfEmpty(customerID),
		nilIfEmpty(subscriptionID),
		id,
	)
	if err != nil {
		return wrapDBError(err, "failed to update stripe references")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// SetStripeCustomerID records the Stripe customer id without touching the
// subscription reference. Used by EnsureCustomer, which runs before any
// subscription exists.
func (r *TenantRepository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET stripe_customer_id = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		customerID, id,
	)
	if err != nil {
		return wrapDBError(err, "failed to update stripe customer id")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// SetExtraUsers overwrites the purchased extra seat count. Called after a
// successful subscription update or checkout completion, with the count from
// the Stripe subscription as the source of truth.
func (r *TenantRepository) SetExtraUsers(ctx context.Context, id string, extraUsers int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET extra_users = $1, updated_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		extraUsers, id,
	)
	if err != nil {
		return wrapDBError(err, "failed to update extra seats")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found", nil)
	}
	return nil
}

// Delete performs a soft delete by setting deleted_at = NOW(). The caller
// must cancel the billing subscription first.
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tenants SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete tenant")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTenant, "tenant not found or already deleted", nil)
	}
	return nil
}
