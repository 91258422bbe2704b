package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// CommissionRepository provides data access for commission lines reported by
// insurance companies.
type CommissionRepository struct {
	db DBTX
}

// NewCommissionRepository creates a new CommissionRepository.
func NewCommissionRepository(db DBTX) *CommissionRepository {
	return &CommissionRepository{db: db}
}

const commissionColumns = `cm.id, cm.tenant_id, cm.client_id, cm.company_id,
	cm.contract_ref, cm.amount_cents, cm.rate, cm.period_month, cm.status,
	cm.created_at, cm.updated_at`

func scanCommission(row pgx.Row) (*types.Commission, error) {
	var cm types.Commission
	var clientID, companyID *string

	err := row.Scan(
		&cm.ID,
		&cm.TenantID,
		&clientID,
		&companyID,
		&cm.ContractRef,
		&cm.AmountCents,
		&cm.Rate,
		&cm.PeriodMonth,
		&cm.Status,
		&cm.CreatedAt,
		&cm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if clientID != nil {
		cm.ClientID = *clientID
	}
	if companyID != nil {
		cm.CompanyID = *companyID
	}
	return &cm, nil
}

func scanCommissionFromRows(rows pgx.Rows) (*types.Commission, error) {
	return scanCommission(rows)
}

// Create inserts a new commission line.
func (r *CommissionRepository) Create(ctx context.Context, cm *types.Commission) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO commissions (id, tenant_id, client_id, company_id,
		 contract_ref, amount_cents, rate, period_month, status,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		 COALESCE($10, NOW()), COALESCE($11, NOW()))`,
		cm.ID,
		cm.TenantID,
		nilIfEmpty(cm.ClientID),
		nilIfEmpty(cm.CompanyID),
		cm.ContractRef,
		cm.AmountCents,
		cm.Rate,
		cm.PeriodMonth,
		cm.Status,
		nilIfZeroTime(cm.CreatedAt),
		nilIfZeroTime(cm.UpdatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create commission")
	}
	return nil
}

// GetByID retrieves a commission line scoped to a tenant.
func (r *CommissionRepository) GetByID(ctx context.Context, tenantID, id string) (*types.Commission, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+commissionColumns+`
		 FROM commissions cm
		 WHERE cm.id = $1 AND cm.tenant_id = $2`,
		id, tenantID,
	)

	cm, err := scanCommission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCommission, "commission not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve commission")
	}
	return cm, nil
}

// Update overwrites the mutable fields of a commission line.
func (r *CommissionRepository) Update(ctx context.Context, cm *types.Commission) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE commissions
		 SET client_id = $1,
		     company_id = $2,
		     contract_ref = $3,
		     amount_cents = $4,
		     rate = $5,
		     period_month = $6,
		     status = $7,
		     updated_at = NOW()
		 WHERE id = $8 AND tenant_id = $9`,
		nilIfEmpty(cm.ClientID),
		nilIfEmpty(cm.CompanyID),
		cm.ContractRef,
		cm.AmountCents,
		cm.Rate,
		cm.PeriodMonth,
		cm.Status,
		cm.ID,
		cm.TenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update commission")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCommission, "commission not found", nil)
	}
	return nil
}

// UpdateStatus transitions the reconciliation state of a commission line.
func (r *CommissionRepository) UpdateStatus(ctx context.Context, tenantID, id string, status types.CommissionStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE commissions SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND tenant_id = $3`,
		status, id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update commission status")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCommission, "commission not found", nil)
	}
	return nil
}

// Delete removes a commission line. Hard delete; commission imports are
// re-runnable from the company statements.
func (r *CommissionRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM commissions WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete commission")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCommission, "commission not found", nil)
	}
	return nil
}

// ListCommissionsParams defines filters for listing commission lines.
type ListCommissionsParams struct {
	ClientID    string                 `json:"client_id"`
	CompanyID   string                 `json:"company_id"`
	PeriodMonth string                 `json:"period_month"`
	Status      types.CommissionStatus `json:"status"`
	Limit       int                    `json:"limit"`
	Cursor      string                 `json:"cursor"`
}

// List retrieves commission lines for a tenant with filtering and
// cursor-based pagination, ordered by created_at DESC.
//
// Uses limit+1 fetch strategy to determine HasMore without a separate COUNT
// query.
func (r *CommissionRepository) List(ctx context.Context, tenantID string, params ListCommissionsParams) ([]*types.Commission, types.PageInfo, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("cm.tenant_id = $%d", argIdx))
	args = append(args, tenantID)
	argIdx++

	if params.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("cm.client_id = $%d", argIdx))
		args = append(args, params.ClientID)
		argIdx++
	}
	if params.CompanyID != "" {
		conditions = append(conditions, fmt.Sprintf("cm.company_id = $%d", argIdx))
		args = append(args, params.CompanyID)
		argIdx++
	}
	if params.PeriodMonth != "" {
		conditions = append(conditions, fmt.Sprintf("cm.period_month = $%d", argIdx))
		args = append(args, params.PeriodMonth)
		argIdx++
	}
	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cm.status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}

	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("cm.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	query := fmt.Sprintf(
		`SELECT %s
		 FROM commissions cm
		 WHERE %s
		 ORDER BY cm.created_at DESC
		 LIMIT $%d`,
		commissionColumns,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, wrapDBError(err, "failed to list commissions")
	}
	defer rows.Close()

	var results []*types.Commission
	for rows.Next() {
		cm, scanErr := scanCommissionFromRows(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, wrapDBError(scanErr, "failed to scan commission row")
		}
		results = append(results, cm)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, wrapDBError(err, "error iterating commission rows")
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}

// TotalForPeriod sums commission amounts for a tenant and period month.
// Feeds the monthly revenue summary on the dashboard.
func (r *CommissionRepository) TotalForPeriod(ctx context.Context, tenantID, periodMonth string) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM commissions
		 WHERE tenant_id = $1 AND period_month = $2`,
		tenantID, periodMonth,
	).Scan(&total)
	if err != nil {
		return 0, wrapDBError(err, "failed to compute commission total")
	}
	return total, nil
}
