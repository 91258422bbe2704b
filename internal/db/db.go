// Package db provides PostgreSQL-backed repository implementations for the
// Advisy platform. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"advisy/internal/config"
	"advisy/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid database URL", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "database unreachable", err)
	}

	return pool, nil
}

// PostgreSQL error codes this layer cares about.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeInsufficientPrivs   = "42501"
)

// wrapDBError converts a driver error into a structured AppError with a
// French user-facing message. Constraint and policy violations map to their
// dedicated codes; anything else is an internal database error with the
// fallback message. The raw error is preserved in the chain for logging.
func wrapDBError(err error, fallback string) *types.AppError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeUniqueViolation:
			return types.NewAppError(types.ErrCodeConflictDuplicate, types.MsgDuplicateRecord, err)
		case pgCodeForeignKeyViolation:
			return types.NewAppError(types.ErrCodeConflictReferenced, types.MsgRecordInUse, err)
		case pgCodeInsufficientPrivs:
			return types.NewAppError(types.ErrCodePermissionRowSecurity, types.TranslateError(pgErr.Message), err)
		}
		// Row-level security failures surface as check violations with a
		// policy message; translate per-table when the full string is known.
		if translated := types.TranslateError(pgErr.Message); translated != pgErr.Message {
			return types.NewAppError(types.ErrCodePermissionRowSecurity, translated, err)
		}
	}
	return types.NewAppError(types.ErrCodeInternalDB, fallback, err)
}

// nilIfEmpty returns nil for empty strings so optional columns store NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZeroTime returns nil for zero times so COALESCE defaults apply.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
