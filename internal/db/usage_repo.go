package db

import (
	"context"

	"advisy/internal/types"
)

// UsageRepository tracks metered resource consumption per tenant and calendar
// month. Counters back the consumption metrics and the plan limit checks.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// Increment atomically adds delta to the current month's counter for one
// resource and returns the new total. The UPSERT ensures the usage row
// exists for the current period.
func (r *UsageRepository) Increment(ctx context.Context, tenantID string, resource types.ResourceType, delta int) (int, error) {
	var newCount int
	err := r.db.QueryRow(ctx,
		`INSERT INTO usage_counters (tenant_id, resource, period_month, count)
		 VALUES ($1, $2, date_trunc('month', NOW())::date, $3)
		 ON CONFLICT (tenant_id, resource, period_month)
		 DO UPDATE SET count = usage_counters.count + $3
		 RETURNING count`,
		tenantID, resource, delta,
	).Scan(&newCount)
	if err != nil {
		return 0, wrapDBError(err, "failed to increment usage counter")
	}
	return newCount, nil
}

// GetCount returns the current month's counter for one resource. A missing
// row means no consumption yet and reads as zero.
func (r *UsageRepository) GetCount(ctx context.Context, tenantID string, resource types.ResourceType) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM usage_counters
		 WHERE tenant_id = $1 AND resource = $2
		 AND period_month = date_trunc('month', NOW())::date`,
		tenantID, resource,
	).Scan(&count)
	if err != nil {
		return 0, wrapDBError(err, "failed to read usage counter")
	}
	return count, nil
}

// GetAllCounts returns every non-zero counter for the current month, keyed by
// resource. Resources with no row are simply absent.
func (r *UsageRepository) GetAllCounts(ctx context.Context, tenantID string) (map[types.ResourceType]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT resource, count FROM usage_counters
		 WHERE tenant_id = $1 AND period_month = date_trunc('month', NOW())::date`,
		tenantID,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to read usage counters")
	}
	defer rows.Close()

	counts := make(map[types.ResourceType]int)
	for rows.Next() {
		var resource types.ResourceType
		var count int
		if scanErr := rows.Scan(&resource, &count); scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan usage counter row")
		}
		counts[resource] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating usage counter rows")
	}
	return counts, nil
}

// DeleteOldPeriods removes counters from periods older than keepMonths
// before the current month. Returns the number of rows removed. Called by
// the retention job; the current and recent periods stay queryable for the
// consumption metrics.
func (r *UsageRepository) DeleteOldPeriods(ctx context.Context, keepMonths int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM usage_counters
		 WHERE period_month < date_trunc('month', NOW())::date - make_interval(months => $1)`,
		keepMonths,
	)
	if err != nil {
		return 0, wrapDBError(err, "failed to prune old usage periods")
	}
	return tag.RowsAffected(), nil
}
