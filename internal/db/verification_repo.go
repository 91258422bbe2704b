package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// VerificationRepository stores issued SMS verification codes. Only the
// bcrypt hash of a code is ever persisted.
type VerificationRepository struct {
	db DBTX
}

// NewVerificationRepository creates a new VerificationRepository.
func NewVerificationRepository(db DBTX) *VerificationRepository {
	return &VerificationRepository{db: db}
}

const verificationColumns = `v.id, v.user_id, v.phone, v.type, v.code_hash,
	v.simulated, v.expires_at, v.created_at`

func scanVerification(row pgx.Row) (*types.VerificationIssue, error) {
	var v types.VerificationIssue
	err := row.Scan(
		&v.ID,
		&v.UserID,
		&v.Phone,
		&v.Type,
		&v.CodeHash,
		&v.Simulated,
		&v.ExpiresAt,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create records a newly issued verification code.
func (r *VerificationRepository) Create(ctx context.Context, v *types.VerificationIssue) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO verification_issues (id, user_id, phone, type, code_hash, simulated, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		v.ID,
		v.UserID,
		v.Phone,
		v.Type,
		v.CodeHash,
		v.Simulated,
		v.ExpiresAt,
		nilIfZeroTime(v.CreatedAt),
	)
	if err != nil {
		return wrapDBError(err, "failed to record verification code")
	}
	return nil
}

// GetLatest returns the most recent unexpired issue for a user and
// verification type. Expired codes are invisible here; the caller treats a
// miss as "no valid code outstanding".
func (r *VerificationRepository) GetLatest(ctx context.Context, userID string, vType types.VerificationType) (*types.VerificationIssue, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+verificationColumns+`
		 FROM verification_issues v
		 WHERE v.user_id = $1 AND v.type = $2 AND v.expires_at > NOW()
		 ORDER BY v.created_at DESC
		 LIMIT 1`,
		userID, vType,
	)

	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundVerification, "no valid verification code", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve verification code")
	}
	return v, nil
}

// Consume deletes all outstanding issues for a user and type after a
// successful verification, so a code cannot be replayed.
func (r *VerificationRepository) Consume(ctx context.Context, userID string, vType types.VerificationType) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM verification_issues WHERE user_id = $1 AND type = $2`,
		userID, vType,
	)
	if err != nil {
		return wrapDBError(err, "failed to consume verification codes")
	}
	return nil
}

// CountRecent returns how many codes were issued to a user within the last
// windowMinutes. Backs the issuance throttle.
func (r *VerificationRepository) CountRecent(ctx context.Context, userID string, windowMinutes int) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_issues
		 WHERE user_id = $1 AND created_at > NOW() - ($2 || ' minutes')::interval`,
		userID, windowMinutes,
	).Scan(&count)
	if err != nil {
		return 0, wrapDBError(err, "failed to count recent verification codes")
	}
	return count, nil
}

// DeleteExpired purges expired issues. Called by the retention job.
func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM verification_issues WHERE expires_at < NOW()`,
	)
	if err != nil {
		return 0, wrapDBError(err, "failed to purge expired verification codes")
	}
	return tag.RowsAffected(), nil
}
