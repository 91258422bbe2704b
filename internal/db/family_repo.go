package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// FamilyRepository provides data access for client family members. Rows are
// tenant-scoped through their parent client; row-level security enforces the
// boundary in SQL, so queries join through clients.
type FamilyRepository struct {
	db DBTX
}

// NewFamilyRepository creates a new FamilyRepository.
func NewFamilyRepository(db DBTX) *FamilyRepository {
	return &FamilyRepository{db: db}
}

const familyColumns = `f.id, f.client_id, f.first_name, f.last_name,
	f.relationship, f.birth_date, f.created_at`

func scanFamilyMember(row pgx.Row) (*types.FamilyMember, error) {
	var f types.FamilyMember
	err := row.Scan(
		&f.ID,
		&f.ClientID,
		&f.FirstName,
		&f.LastName,
		&f.Relationship,
		&f.BirthDate,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create inserts a family member under a client. The client must belong to
// the tenant; the subquery guard turns a cross-tenant write into a not-found.
func (r *FamilyRepository) Create(ctx context.Context, tenantID string, f *types.FamilyMember) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO family_members (id, client_id, first_name, last_name, relationship, birth_date, created_at)
		 SELECT $1, c.id, $3, $4, $5, $6, COALESCE($7, NOW())
		 FROM clients c
		 WHERE c.id = $2 AND c.tenant_id = $8 AND c.deleted_at IS NULL`,
		f.ID,
		f.ClientID,
		f.FirstName,
		f.LastName,
		f.Relationship,
		f.BirthDate,
		nilIfZeroTime(f.CreatedAt),
		tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to create family member")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundClient, "client not found", nil)
	}
	return nil
}

// GetByID retrieves a family member, scoped to the tenant through the parent
// client.
func (r *FamilyRepository) GetByID(ctx context.Context, tenantID, id string) (*types.FamilyMember, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+familyColumns+`
		 FROM family_members f
		 JOIN clients c ON c.id = f.client_id
		 WHERE f.id = $1 AND c.tenant_id = $2 AND c.deleted_at IS NULL`,
		id, tenantID,
	)

	f, err := scanFamilyMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundFamilyMember, "family member not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve family member")
	}
	return f, nil
}

// ListByClient returns all family members for a client, oldest first to keep
// the household in a stable display order.
func (r *FamilyRepository) ListByClient(ctx context.Context, tenantID, clientID string) ([]*types.FamilyMember, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+familyColumns+`
		 FROM family_members f
		 JOIN clients c ON c.id = f.client_id
		 WHERE f.client_id = $1 AND c.tenant_id = $2 AND c.deleted_at IS NULL
		 ORDER BY f.created_at ASC`,
		clientID, tenantID,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to list family members")
	}
	defer rows.Close()

	var members []*types.FamilyMember
	for rows.Next() {
		f, scanErr := scanFamilyMember(rows)
		if scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan family member row")
		}
		members = append(members, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating family member rows")
	}
	return members, nil
}

// Update overwrites the mutable fields of a family member.
func (r *FamilyRepository) Update(ctx context.Context, tenantID string, f *types.FamilyMember) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE family_members f
		 SET first_name = $1, last_name = $2, relationship = $3, birth_date = $4
		 FROM clients c
		 WHERE f.id = $5 AND c.id = f.client_id AND c.tenant_id = $6 AND c.deleted_at IS NULL`,
		f.FirstName,
		f.LastName,
		f.Relationship,
		f.BirthDate,
		f.ID,
		tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update family member")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundFamilyMember, "family member not found", nil)
	}
	return nil
}

// Delete removes a family member. Hard delete: household composition has no
// audit requirement.
func (r *FamilyRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM family_members f
		 USING clients c
		 WHERE f.id = $1 AND c.id = f.client_id AND c.tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete family member")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundFamilyMember, "family member not found", nil)
	}
	return nil
}
