package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// CatalogRepository provides read access to the shared insurance catalog
// (carriers and their products). The catalog is global, not tenant-scoped;
// writes happen through back-office imports only.
type CatalogRepository struct {
	db DBTX
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const companyColumns = `co.id, co.name, co.logo_url`

func scanCompany(row pgx.Row) (*types.InsuranceCompany, error) {
	var co types.InsuranceCompany
	var logoURL *string

	err := row.Scan(&co.ID, &co.Name, &logoURL)
	if err != nil {
		return nil, err
	}
	if logoURL != nil {
		co.LogoURL = *logoURL
	}
	return &co, nil
}

// ListCompanies returns all carriers, alphabetical by name.
func (r *CatalogRepository) ListCompanies(ctx context.Context) ([]*types.InsuranceCompany, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+companyColumns+`
		 FROM insurance_companies co
		 ORDER BY co.name ASC`,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to list insurance companies")
	}
	defer rows.Close()

	var companies []*types.InsuranceCompany
	for rows.Next() {
		co, scanErr := scanCompany(rows)
		if scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan insurance company row")
		}
		companies = append(companies, co)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating insurance company rows")
	}
	return companies, nil
}

// GetCompany retrieves one carrier by ID.
func (r *CatalogRepository) GetCompany(ctx context.Context, id string) (*types.InsuranceCompany, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+companyColumns+`
		 FROM insurance_companies co
		 WHERE co.id = $1`,
		id,
	)

	co, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "insurance company not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve insurance company")
	}
	return co, nil
}

// ListProducts returns catalog entries (product joined with carrier),
// optionally filtered by product category. Ordered by carrier then product
// name for stable catalog display.
func (r *CatalogRepository) ListProducts(ctx context.Context, category string) ([]*types.CatalogEntry, error) {
	query := `SELECT p.id, p.company_id, p.name, p.category, p.description,
		 co.id, co.name, co.logo_url
		 FROM insurance_products p
		 JOIN insurance_companies co ON co.id = p.company_id`
	var args []any
	if category != "" {
		query += ` WHERE p.category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY co.name ASC, p.name ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "failed to list catalog products")
	}
	defer rows.Close()

	var entries []*types.CatalogEntry
	for rows.Next() {
		var e types.CatalogEntry
		var description, logoURL *string

		scanErr := rows.Scan(
			&e.Product.ID,
			&e.Product.CompanyID,
			&e.Product.Name,
			&e.Product.Category,
			&description,
			&e.Company.ID,
			&e.Company.Name,
			&logoURL,
		)
		if scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan catalog row")
		}
		if description != nil {
			e.Product.Description = *description
		}
		if logoURL != nil {
			e.Company.LogoURL = *logoURL
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating catalog rows")
	}
	return entries, nil
}

// GetProduct retrieves one catalog entry by product ID.
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (*types.CatalogEntry, error) {
	var e types.CatalogEntry
	var description, logoURL *string

	err := r.db.QueryRow(ctx,
		`SELECT p.id, p.company_id, p.name, p.category, p.description,
		 co.id, co.name, co.logo_url
		 FROM insurance_products p
		 JOIN insurance_companies co ON co.id = p.company_id
		 WHERE p.id = $1`,
		id,
	).Scan(
		&e.Product.ID,
		&e.Product.CompanyID,
		&e.Product.Name,
		&e.Product.Category,
		&description,
		&e.Company.ID,
		&e.Company.Name,
		&logoURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProduct, "insurance product not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve insurance product")
	}
	if description != nil {
		e.Product.Description = *description
	}
	if logoURL != nil {
		e.Company.LogoURL = *logoURL
	}
	return &e, nil
}
