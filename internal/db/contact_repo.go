package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// ContactRepository provides data access for the tenant's address book of
// insurance company contacts.
type ContactRepository struct {
	db DBTX
}

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `ct.id, ct.tenant_id, ct.company_id, ct.name,
	ct.email, ct.phone, ct.job_title, ct.created_at`

func scanContact(row pgx.Row) (*types.CompanyContact, error) {
	var ct types.CompanyContact
	var email, phone, jobTitle *string

	err := row.Scan(
		&ct.ID,
		&ct.TenantID,
		&ct.CompanyID,
		&ct.Name,
		&email,
		&phone,
		&jobTitle,
		&ct.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email != nil {
		ct.Email = *email
	}
	if phone != nil {
		ct.Phone = *phone
	}
	if jobTitle != nil {
		ct.JobTitle = *jobTitle
	}
	return &ct, nil
}

// Create inserts a new company contact.
func (r *ContactRepository) Create(ctx context.Context, ct *types.CompanyContact) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO company_contacts (id, tenant_id, company_id, name, email, phone, job_title, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		ct.ID,
		ct.TenantID,
		ct.CompanyID,
		ct.Name,
		nilIfEmpty(ct.Email),
		nilIfEmpty(ct.Phone),
		nilIfEmpty(ct.JobTitle),
		nilIfZeroTime(ct.CreatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create company contact")
	}
	return nil
}

// GetByID retrieves a company contact scoped to a tenant.
func (r *ContactRepository) GetByID(ctx context.Context, tenantID, id string) (*types.CompanyContact, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+contactColumns+`
		 FROM company_contacts ct
		 WHERE ct.id = $1 AND ct.tenant_id = $2`,
		id, tenantID,
	)

	ct, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundContact, "company contact not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve company contact")
	}
	return ct, nil
}

// ListByCompany returns all contacts for one insurance company in the
// tenant's address book, alphabetical by name.
func (r *ContactRepository) ListByCompany(ctx context.Context, tenantID, companyID string) ([]*types.CompanyContact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+contactColumns+`
		 FROM company_contacts ct
		 WHERE ct.tenant_id = $1 AND ct.company_id = $2
		 ORDER BY ct.name ASC`,
		tenantID, companyID,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to list company contacts")
	}
	defer rows.Close()

	var contacts []*types.CompanyContact
	for rows.Next() {
		ct, scanErr := scanContact(rows)
		if scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan company contact row")
		}
		contacts = append(contacts, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating company contact rows")
	}
	return contacts, nil
}

// Update overwrites the mutable fields of a company contact.
func (r *ContactRepository) Update(ctx context.Context, ct *types.CompanyContact) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE company_contacts
		 SET name = $1, email = $2, phone = $3, job_title = $4
		 WHERE id = $5 AND tenant_id = $6`,
		ct.Name,
		nilIfEmpty(ct.Email),
		nilIfEmpty(ct.Phone),
		nilIfEmpty(ct.JobTitle),
		ct.ID,
		ct.TenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update company contact")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundContact, "company contact not found", nil)
	}
	return nil
}

// Delete removes a company contact.
func (r *ContactRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM company_contacts WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete company contact")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundContact, "company contact not found", nil)
	}
	return nil
}
