package billing

import (
	"context"

	"advisy/internal/plan"
	"advisy/internal/types"
)

// Alert thresholds, in percent of the plan limit.
const (
	// ThresholdWarning marks a metric as approaching its limit.
	ThresholdWarning = 85
	// ThresholdCritical marks a metric as at or past its limit.
	ThresholdCritical = 100
	// ThresholdBanner is the aggregate level at which the usage banner shows.
	ThresholdBanner = 70
)

// bytesPerGB converts the stored byte total to the GB-denominated metric.
const bytesPerGB = 1_000_000_000

// PercentUsed converts a (used, limit) pair to whole percent. A zero limit
// reads as 0: the resource is not part of the plan and never alerts.
func PercentUsed(used, limit int) int {
	if limit <= 0 {
		return 0
	}
	return used * 100 / limit
}

// LevelFor classifies a consumption percentage.
func LevelFor(percent int) types.AlertLevel {
	switch {
	case percent >= ThresholdCritical:
		return types.AlertCritical
	case percent >= ThresholdWarning:
		return types.AlertWarning
	default:
		return types.AlertNone
	}
}

// ShowBanner reports whether the aggregate usage banner should display:
// true as soon as any metric reaches the banner threshold.
func ShowBanner(metrics []types.ConsumptionMetric) bool {
	for _, m := range metrics {
		if PercentUsed(m.Used, m.Limit) >= ThresholdBanner {
			return true
		}
	}
	return false
}

// StorageLookup reports the stored document bytes for a tenant.
type StorageLookup interface {
	TotalStorageBytes(ctx context.Context, tenantID string) (int64, error)
}

// UsageCounters reads the metered monthly counters.
type UsageCounters interface {
	GetAllCounts(ctx context.Context, tenantID string) (map[types.ResourceType]int, error)
	GetCount(ctx context.Context, tenantID string, resource types.ResourceType) (int, error)
}

// Reporter assembles the usage snapshot: plan limits from the catalog merged
// with live counters from Postgres, plus the seat figures.
type Reporter struct {
	catalog plan.Catalog
	tenants TenantStore
	users   UserCounter
	storage StorageLookup
	usage   UsageCounters
}

// NewReporter creates a Reporter.
func NewReporter(catalog plan.Catalog, tenants TenantStore, users UserCounter, storage StorageLookup, usage UsageCounters) *Reporter {
	return &Reporter{
		catalog: catalog,
		tenants: tenants,
		users:   users,
		storage: storage,
		usage:   usage,
	}
}

// Snapshot returns the tenant's consumption against its plan limits for the
// current month.
func (r *Reporter) Snapshot(ctx context.Context, tenantID string) (*types.UsageSnapshot, error) {
	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	limits := r.catalog.Limits(tenant.Plan)

	counts, err := r.usage.GetAllCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	storageBytes, err := r.storage.TotalStorageBytes(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	activeUsers, err := r.users.CountActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	metrics := []types.ConsumptionMetric{
		{Resource: types.ResourceStorageGB, Used: storageGBUsed(storageBytes), Limit: limits.StorageGB},
		{Resource: types.ResourceSMS, Used: counts[types.ResourceSMS], Limit: limits.SMSMonthly},
		{Resource: types.ResourceEmails, Used: counts[types.ResourceEmails], Limit: limits.EmailsMonthly},
		{Resource: types.ResourceAIDocuments, Used: counts[types.ResourceAIDocuments], Limit: limits.AIDocsMonthly},
		{Resource: types.ResourceActiveUsers, Used: activeUsers, Limit: tenant.SeatsIncluded + tenant.ExtraUsers},
	}

	return &types.UsageSnapshot{
		Plan:    tenant.Plan,
		Metrics: metrics,
		Seats:   ComputeSeats(tenant.SeatsIncluded, tenant.ExtraUsers, activeUsers),
	}, nil
}

// CheckLimit verifies the tenant can consume count more units of a metered
// resource this month. Returns nil when allowed, a resource limit error with
// the figures otherwise. A zero limit means the resource is not part of the
// plan and is always denied.
func (r *Reporter) CheckLimit(ctx context.Context, tenantID string, resource types.ResourceType, count int) error {
	tenant, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	limits := r.catalog.Limits(tenant.Plan)

	var used, limit int
	switch resource {
	case types.ResourceStorageGB:
		storageBytes, err := r.storage.TotalStorageBytes(ctx, tenantID)
		if err != nil {
			return err
		}
		used, limit = storageGBUsed(storageBytes), limits.StorageGB
	case types.ResourceSMS:
		used, err = r.usage.GetCount(ctx, tenantID, resource)
		limit = limits.SMSMonthly
	case types.ResourceEmails:
		used, err = r.usage.GetCount(ctx, tenantID, resource)
		limit = limits.EmailsMonthly
	case types.ResourceAIDocuments:
		used, err = r.usage.GetCount(ctx, tenantID, resource)
		limit = limits.AIDocsMonthly
	default:
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unknown resource type for limit check: "+string(resource),
			nil,
		)
	}
	if err != nil {
		return err
	}

	if used+count > limit {
		return types.NewAppErrorWithDetails(
			types.ErrCodeLimitResource,
			"plan limit reached for "+string(resource),
			nil,
			map[string]any{
				"resource": string(resource),
				"used":     used,
				"limit":    limit,
				"plan":     string(tenant.Plan),
			},
		)
	}
	return nil
}

// storageGBUsed rounds stored bytes up to whole GB so any usage at all is
// visible against the limit.
func storageGBUsed(bytes int64) int {
	if bytes <= 0 {
		return 0
	}
	return int((bytes + bytesPerGB - 1) / bytesPerGB)
}
