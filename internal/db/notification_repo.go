package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"advisy/internal/types"
)

// notifyChannel is the Postgres NOTIFY channel carrying new notification
// events to live feed subscribers.
const notifyChannel = "advisy_notifications"

// NotificationRepository provides data access for in-app notifications.
// Reads power the feed (recent-N, newest first); writes publish on the
// NOTIFY channel so open feeds update without polling.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `n.id, n.tenant_id, n.user_id, n.kind, n.title,
	n.message, n.payload, n.created_at, n.read_at`

func scanNotification(row pgx.Row) (*types.Notification, error) {
	var n types.Notification
	err := row.Scan(
		&n.ID,
		&n.TenantID,
		&n.UserID,
		&n.Kind,
		&n.Title,
		&n.Message,
		&n.Payload,
		&n.CreatedAt,
		&n.ReadAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotificationFromRows(rows pgx.Rows) (*types.Notification, error) {
	return scanNotification(rows)
}

// Create inserts a notification and publishes it on the NOTIFY channel. The
// insert populates CreatedAt from the database clock so feed ordering matches
// storage ordering.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO notifications (id, tenant_id, user_id, kind, title, message, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		n.ID,
		n.TenantID,
		n.UserID,
		n.Kind,
		n.Title,
		n.Message,
		n.Payload,
	).Scan(&n.CreatedAt)
	if err != nil {
		return wrapDBError(err, "failed to create notification")
	}

	// Best effort: a failed publish must not fail the write. Subscribers
	// reconcile on their next feed load.
	if payload, marshalErr := json.Marshal(n); marshalErr == nil {
		_, _ = r.db.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload))
	}
	return nil
}

// ListRecent returns the most recent notifications for a scope, newest
// first. A user scope also sees the tenant-wide rows (empty user_id)
// addressed to everyone in the tenant.
func (r *NotificationRepository) ListRecent(ctx context.Context, scope types.NotificationScope, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications n
		 WHERE n.tenant_id = $1 AND (n.user_id = $2 OR n.user_id = '')
		 ORDER BY n.created_at DESC
		 LIMIT $3`,
		scope.TenantID, scope.UserID, limit,
	)
	if err != nil {
		return nil, wrapDBError(err, "failed to list notifications")
	}
	defer rows.Close()

	var notifications []*types.Notification
	for rows.Next() {
		n, scanErr := scanNotificationFromRows(rows)
		if scanErr != nil {
			return nil, wrapDBError(scanErr, "failed to scan notification row")
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "error iterating notification rows")
	}
	return notifications, nil
}

// MarkRead marks one notification as read. Idempotent: marking an already
// read notification keeps its original read_at and succeeds. Tenant-wide
// notifications are markable by any user in the tenant; read state is
// per row, so the read flips for the whole tenant.
func (r *NotificationRepository) MarkRead(ctx context.Context, scope types.NotificationScope, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications
		 SET read_at = COALESCE(read_at, NOW())
		 WHERE id = $1 AND tenant_id = $2 AND (user_id = $3 OR user_id = '')`,
		id, scope.TenantID, scope.UserID,
	)
	if err != nil {
		return wrapDBError(err, "failed to mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// MarkAllRead marks every unread notification in the scope as read in one
// statement and returns the number of notifications transitioned.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, scope types.NotificationScope) (int, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET read_at = NOW()
		 WHERE tenant_id = $1 AND (user_id = $2 OR user_id = '') AND read_at IS NULL`,
		scope.TenantID, scope.UserID,
	)
	if err != nil {
		return 0, wrapDBError(err, "failed to mark all notifications read")
	}
	return int(tag.RowsAffected()), nil
}

// CountUnread returns the unread notification count for a scope.
func (r *NotificationRepository) CountUnread(ctx context.Context, scope types.NotificationScope) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE tenant_id = $1 AND (user_id = $2 OR user_id = '') AND read_at IS NULL`,
		scope.TenantID, scope.UserID,
	).Scan(&count)
	if err != nil {
		return 0, wrapDBError(err, "failed to count unread notifications")
	}
	return count, nil
}

// GetByID retrieves one notification scoped to its audience.
func (r *NotificationRepository) GetByID(ctx context.Context, scope types.NotificationScope, id string) (*types.Notification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM notifications n
		 WHERE n.id = $1 AND n.tenant_id = $2 AND (n.user_id = $3 OR n.user_id = '')`,
		id, scope.TenantID, scope.UserID,
	)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
		}
		return nil, wrapDBError(err, "failed to retrieve notification")
	}
	return n, nil
}

// DeleteOlderThan purges notifications past the retention window. Returns the
// number of rows removed. Called by the retention job.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications
		 WHERE created_at < NOW() - ($1 || ' days')::interval`,
		days,
	)
	if err != nil {
		return 0, wrapDBError(err, "failed to purge old notifications")
	}
	return tag.RowsAffected(), nil
}
