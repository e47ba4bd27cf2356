package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bimatrack/bimatrack-backend/internal/notifications/domain"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// NotificationRepository handles notification persistence
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, tenant_id, user_id, kind, priority, title, message,
	policy_id, permit_id, vehicle_id, dedupe_key, read_at, created_at, updated_at, deleted_at`

// Insert writes one notification. Returns false without error when the
// dedupe key already exists for the recipient.
func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) (bool, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return false, err
	}
	n.TenantID = tenantID

	query := `
		INSERT INTO notifications (tenant_id, user_id, kind, priority, title, message,
			policy_id, permit_id, vehicle_id, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, user_id, dedupe_key) WHERE dedupe_key IS NOT NULL AND deleted_at IS NULL
		DO NOTHING
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRowx(ctx, query,
		n.TenantID, n.UserID, n.Kind, n.Priority, n.Title, n.Message,
		n.PolicyID, n.PermitID, n.VehicleID, n.DedupeKey,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return false, appErr
		}
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	return true, nil
}

// ListForUser returns a user's notifications, newest first. Pass unreadOnly
// to hide read items.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	where := `tenant_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	if unreadOnly {
		where += ` AND read_at IS NULL`
	}

	var total int64
	if err := r.db.Get(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE `+where, tenantID, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	notifications := []domain.Notification{}
	query := `
		SELECT ` + notificationColumns + ` FROM notifications
		WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	if err := r.db.Select(ctx, &notifications, query, tenantID, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkRead marks one notification read for its recipient. Re-marking keeps
// the original read time.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var n domain.Notification
	query := `
		UPDATE notifications
		SET read_at = COALESCE(read_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND user_id = $3 AND deleted_at IS NULL
		RETURNING ` + notificationColumns

	if err := r.db.Get(ctx, &n, query, id, tenantID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("notification")
		}
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return &n, nil
}

// MarkAllRead marks all of a user's unread notifications read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return 0, err
	}

	res, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET read_at = NOW(), updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL AND deleted_at IS NULL`,
		tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CountUnread returns a user's unread notification count.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	tenantID, err := tenant.IDFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL AND deleted_at IS NULL`
	if err := r.db.Get(ctx, &count, query, tenantID, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
