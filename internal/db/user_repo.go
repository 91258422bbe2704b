package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// UserRepository provides data access for tenant users (advisors, admins,
// owners). Active user counts feed seat accounting.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `u.id, u.tenant_id, u.email, u.name, u.phone, u.role, u.status,
	u.phone_verified_at, u.created_at, u.last_login_at, u.deleted_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var name, phone *string

	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Email,
		&name,
		&phone,
		&u.Role,
		&u.Status,
		&u.PhoneVerifiedAt,
		&u.CreatedAt,
		&u.LastLoginAt,
		&u.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if name != nil {
		u.Name = *name
	}
	if phone != nil {
		u.Phone = *phone
	}
	return &u, nil
}

func scanUserFromRows(rows pgx.Rows) (*types.User, error) {
	return scanUser(rows)
}

// Create inserts a new user record.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, tenant_id, email, name, phone, role, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		u.ID,
		u.TenantID,
		u.Email,
		nilIfEmpty(u.Name),
		nilIfEmpty(u.Phone),
		u.Role,
		u.Status,
		nilIfZeroTime(u.CreatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to create user")
	}
	return nil
}

// GetByID retrieves a user scoped to a tenant. Excludes soft-deleted users.
func (r *UserRepository) GetByID(ctx context.Context, tenantID, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.id = $1 AND u.tenant_id = $2 AND u.deleted_at IS NULL`,
		id, tenantID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve user")
	}
	return u, nil
}

// GetByEmail retrieves a user by email across the tenant. Used by the invite
// flow to detect duplicates before reserving a seat.
func (r *UserRepository) GetByEmail(ctx context.Context, tenantID, email string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.tenant_id = $1 AND u.email = $2 AND u.deleted_at IS NULL`,
		tenantID, email,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve user by email")
	}
	return u, nil
}

// ListByTenant returns all non-deleted users for a tenant, newest first.
// Tenant user lists are small (bounded by seats) so this does not paginate.
func (r *UserRepository) ListByTenant(ctx context.Context, tenantID string) ([]*types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users u
		 WHERE u.tenant_id = $1 AND u.deleted_at IS NULL
		 ORDER BY u.created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to list users")
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		u, err := scanUserFromRows(rows)
		if err != nil {
			return nil, wrapDBError(err, "failed to scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "failed to iterate users")
	}
	return users, nil
}

// CountActive returns the number of seat-consuming users for a tenant.
// Invited users count: a pending invite reserves its seat.
func (r *UserRepository) CountActive(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users
		 WHERE tenant_id = $1 AND deleted_at IS NULL AND status != $2`,
		tenantID, types.UserStatusDisabled,
	).Scan(&count)
	if err != nil {
		return 0, wrapDBError(err, "failed to count active users")
	}
	return count, nil
}

// UpdateRole changes a user's role within the tenant.
func (r *UserRepository) UpdateRole(ctx context.Context, tenantID, id string, role types.UserRole) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET role = $1
		 WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL`,
		role, id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update user role")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdateStatus changes the account lifecycle state (invited, active, disabled).
func (r *UserRepository) UpdateStatus(ctx context.Context, tenantID, id string, status types.UserStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET status = $1
		 WHERE id = $2 AND tenant_id = $3 AND deleted_at IS NULL`,
		status, id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to update user status")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// SetPhoneVerified records a successful phone verification and stores the
// verified number on the user.
func (r *UserRepository) SetPhoneVerified(ctx context.Context, userID, phone string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET phone = $1, phone_verified_at = NOW()
		 WHERE id = $2 AND deleted_at IS NULL`,
		phone, userID,
	)
	if err != nil {
		return wrapDBError(err, "failed to mark phone verified")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// TouchLastLogin updates the last login timestamp. Missing users are ignored
// so the auth path never fails on this write.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return wrapDBError(err, "failed to update last login")
	}
	return nil
}

// Delete soft-deletes a user, freeing their seat.
func (r *UserRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET deleted_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		id, tenantID,
	)
	if err != nil {
		return wrapDBError(err, "failed to delete user")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found or already deleted", nil)
	}
	return nil
}
