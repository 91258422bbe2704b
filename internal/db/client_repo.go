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

// ClientRepository provides data access for CRM client records.
type ClientRepository struct {
	db DBTX
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository(db DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `c.id, c.tenant_id, c.advisor_id, c.first_name, c.last_name,
	c.email, c.phone, c.birth_date, c.address, c.postal_code, c.city, c.notes,
	c.created_at, c.updated_at, c.deleted_at`

func scanClient(row pgx.Row) (*types.Client, error) {
	var c types.Client
	var advisorID, email, phone, address, postalCode, city, notes *string

	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&advisorID,
		&c.FirstName,
		&c.LastName,
		&email,
		&phone,
		&c.BirthDate,
		&address,
		&postalCode,
		&city,
		&notes,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if advisorID != nil {
		c.AdvisorID = *advisorID
	}
	if email != nil {
		c.Email = *email
	}
	if phone != nil {
		c.Phone = *phone
	}
	if address != nil {
		c.Address = *address
	}
	if postalCode != nil {
		c.PostalCode = *postalCode
	}
	if city != nil {
		c.City = *city
	}
	if notes != nil {
		c.Notes = *notes
	}
	return &c, nil
}

func scanClientFromRows(rows pgx.Rows) (*types.Client, error) {
	return scanClient(rows)
}

// Create inserts a new client record.
func (r *ClientRepository) Create(ctx context.Context, c *types.Client) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO clients (id, tenant_id, advisor_id, first_name, last_name,
		 email, phone, birth_date, address, postal_code, city, notes,
		 created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		 COALESCE($13, NOW()), COALESCE($14, NOW()))`,
		c.ID,
		c.TenantID,
		nilIfEmpty(c.AdvisorID),
		c.FirstName,
		c.LastName,
		nilIfEmpty(c.Email),
		nilIfEmpty(c.Phone),
		c.BirthDate,
		nilIfEmpty(c.Address),
		nilIfEmpty(c.PostalCode),
		nilIfEmpty(c.City),
		nilIfEmpty(c.Notes),
		nilIfZeroTime(c.CreatedAt),
		nilIfZeroTime(c.UpdatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create client")
	}
	return nil
}

// GetByID retrieves a client scoped to a tenant. Excludes soft-deleted rows.
func (r *ClientRepository) GetByID(ctx context.Context, tenantID, id string) (*types.Client, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+`
		 FROM clients c
		 WHERE c.id = $1 AND c.tenant_id = $2 AND c.deleted_at IS NULL`,
		id, tenantID,
	)

	c, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve client")
	}
	return c, nil
}

// Update overwrites the mutable fields of a client record.
func (r *ClientRepository) Update(ctx context.Context, c *types.Client) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients
		 SET advisor_id = $1,
		     first_name = $2,
		     last_name = $3,
		     email = $4,
		     phone = $5,
		     birth_date = $6,
		     address = $7,
		     postal_code = $8,
		     city = $9,
		     notes = $10,
		     updated_at = NOW()
		 WHERE id = $11 AND tenant_id = $12 AND deleted_at IS NULL`,
		nilIfEmpty(c.AdvisorID),
		c.FirstName,
		c.LastName,
		nilIfEmpty(c.Email),
		nilIfEmpty(c.Phone),
		c.BirthDate,
		nilIfEmpty(c.Address),
		nilIfEmpty(c.PostalCode),
		nilIfEmpty(c.City),
		nilIfEmpty(c.Notes),
		c.ID,
		c.TenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update client")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
	}
	return nil
}

// Delete performs a soft delete. Attached documents and family members remain
// readable through their own repositories until purged.
func (r *ClientRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete client")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClient, "client not found or already deleted", nil)
	}
	return nil
}

// ListClientsParams defines filters for listing clients.
type ListClientsParams struct {
	AdvisorID string `json:"advisor_id"`
	// Search matches first name, last name, and email (case-insensitive).
	Search string `json:"search"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

// List retrieves clients for a tenant with filtering and cursor-based
// pagination, ordered by created_at DESC (newest first).
//
// Uses limit+1 fetch strategy to determine HasMore without a separate COUNT
// query. Excludes soft-deleted records.
func (r *ClientRepository) List(ctx context.Context, tenantID string, params ListClientsParams) ([]*types.Client, types.PageInfo, error) {
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

	// Tenant scope is always enforced.
	conditions = append(conditions, fmt.Sprintf("c.tenant_id = $%d", argIdx))
	args = append(args, tenantID)
	argIdx++

	conditions = append(conditions, "c.deleted_at IS NULL")

	if params.AdvisorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.advisor_id = $%d", argIdx))
		args = append(args, params.AdvisorID)
		argIdx++
	}

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(c.first_name ILIKE $%d OR c.last_name ILIKE $%d OR c.email ILIKE $%d)",
			argIdx, argIdx, argIdx,
		))
		args = append(args, "%"+params.Search+"%")
		argIdx++
	}

	// Cursor-based pagination: fetch items older than the cursor timestamp.
	if params.Cursor != "" {
		cursorTime, err := time.Parse(time.RFC3339Nano, params.Cursor)
		if err != nil {
			return nil, types.PageInfo{}, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"invalid cursor format; expected RFC3339 timestamp",
				err,
			)
		}
		conditions = append(conditions, fmt.Sprintf("c.created_at < $%d", argIdx))
		args = append(args, cursorTime)
		argIdx++
	}

	// Fetch limit+1 to detect if there are more results.
	query := fmt.Sprintf(
		`SELECT %s
		 FROM clients c
		 WHERE %s
		 ORDER BY c.created_at DESC
		 LIMIT $%d`,
		clientColumns,
		strings.Join(conditions, " AND "),
		argIdx,
	)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.PageInfo{}, wrapDBError(err, "failed to list clients")
	}
	defer rows.Close()

	var results []*types.Client
	for rows.Next() {
		c, scanErr := scanClientFromRows(rows)
		if scanErr != nil {
			return nil, types.PageInfo{}, wrapDBError(scanErr, "failed to scan client row")
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.PageInfo{}, wrapDBError(err, "error iterating client rows")
	}

	pageInfo := types.PageInfo{}
	if len(results) > limit {
		pageInfo.HasMore = true
		pageInfo.NextCursor = results[limit-1].CreatedAt.Format(time.RFC3339Nano)
		results = results[:limit]
	}

	return results, pageInfo, nil
}
