package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
)

// NotificationRepository is the live notification store. Every method takes
// the connection or transaction it should run on; transaction boundaries are
// owned by the management service.
type NotificationRepository interface {
	InsertNotification(ctx context.Context, ext sqlx.ExtContext, tenantID, configID int, typ models.NotificationType, description string) (int64, error)
	InsertUserActions(ctx context.Context, ext sqlx.ExtContext, notificationID int64, usernames []string) error
	GetLatestNotifications(ctx context.Context, ext sqlx.ExtContext, tenantID, offset, limit int) ([]models.Notification, error)
	GetNotificationsByIDs(ctx context.Context, ext sqlx.ExtContext, ids []int64) ([]models.Notification, error)
	GetUserNotificationsWithStatus(ctx context.Context, ext sqlx.ExtContext, username string, limit, offset int, isRead *bool) (models.PaginatedUserNotifications, error)
	UpdateNotificationAction(ctx context.Context, ext sqlx.ExtContext, ids []int64, username string, isRead bool) error
	UnreadCountForUser(ctx context.Context, ext sqlx.ExtContext, username string) (int, error)
	DeleteUserNotifications(ctx context.Context, ext sqlx.ExtContext, ids []int64, username string) (models.DeleteResult, error)
	DeleteAllUserNotifications(ctx context.Context, ext sqlx.ExtContext, username string) error
}

type notificationRepository struct {
	dialect dialect.Dialect
	now     func() time.Time
}

func NewNotificationRepository(d dialect.Dialect) NotificationRepository {
	return &notificationRepository{dialect: d, now: time.Now}
}

const notificationColumns = "id, config_id, tenant_id, description, type, created_at"

func (r *notificationRepository) InsertNotification(ctx context.Context, ext sqlx.ExtContext, tenantID, configID int, typ models.NotificationType, description string) (int64, error) {
	const query = `
		INSERT INTO notifications (config_id, tenant_id, description, type, created_at)
		VALUES (?, ?, ?, ?, ?)`
	id, err := r.dialect.InsertWithID(ctx, ext, query, "id",
		configID, tenantID, description, string(typ), r.now().UTC())
	if err != nil {
		return 0, apperr.Store("insert notification", err)
	}
	return id, nil
}

// InsertUserActions fans out one unread action row per username in a single
// batched statement.
func (r *notificationRepository) InsertUserActions(ctx context.Context, ext sqlx.ExtContext, notificationID int64, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	query := "INSERT INTO user_notification_actions (notification_id, username, is_read, action_timestamp) VALUES "
	args := make([]interface{}, 0, len(usernames)*4)
	now := r.now().UTC()
	for i, username := range usernames {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?)"
		args = append(args, notificationID, username, r.dialect.Bool(false), now)
	}
	if _, err := ext.ExecContext(ctx, r.dialect.Rebind(query), args...); err != nil {
		return apperr.Store("insert user actions", err)
	}
	return nil
}

func (r *notificationRepository) GetLatestNotifications(ctx context.Context, ext sqlx.ExtContext, tenantID, offset, limit int) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		` + r.dialect.LimitOffset(limit, offset)
	var notifications []models.Notification
	if err := sqlx.SelectContext(ctx, ext, &notifications, r.dialect.Rebind(query), tenantID); err != nil {
		return nil, apperr.Store("get latest notifications", err)
	}
	return notifications, nil
}

func (r *notificationRepository) GetNotificationsByIDs(ctx context.Context, ext sqlx.ExtContext, ids []int64) ([]models.Notification, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT "+notificationColumns+" FROM notifications WHERE id IN (?) ORDER BY created_at DESC, id DESC", ids)
	if err != nil {
		return nil, apperr.Store("get notifications by ids", err)
	}
	var notifications []models.Notification
	if err := sqlx.SelectContext(ctx, ext, &notifications, r.dialect.Rebind(query), args...); err != nil {
		return nil, apperr.Store("get notifications by ids", err)
	}
	return notifications, nil
}

// GetUserNotificationsWithStatus joins notification and action rows for one
// user, optionally filtered by read state, newest action first. The total is
// computed by a separate count query under the same filter.
func (r *notificationRepository) GetUserNotificationsWithStatus(ctx context.Context, ext sqlx.ExtContext, username string, limit, offset int, isRead *bool) (models.PaginatedUserNotifications, error) {
	where := "a.username = ?"
	filterArgs := []interface{}{username}
	if isRead != nil {
		where += " AND a.is_read = ?"
		filterArgs = append(filterArgs, r.dialect.Bool(*isRead))
	}

	query := `
		SELECT n.id AS id, n.description AS description, n.type AS type,
		       CASE WHEN a.is_read = ? THEN 'READ' ELSE 'UNREAD' END AS status,
		       a.username AS username, n.created_at AS created_at
		FROM notifications n
		JOIN user_notification_actions a ON a.notification_id = n.id
		WHERE ` + where + `
		ORDER BY a.action_timestamp DESC, n.id DESC
		` + r.dialect.LimitOffset(limit, offset)
	args := append([]interface{}{r.dialect.Bool(true)}, filterArgs...)

	var page models.PaginatedUserNotifications
	if err := sqlx.SelectContext(ctx, ext, &page.Notifications, r.dialect.Rebind(query), args...); err != nil {
		return models.PaginatedUserNotifications{}, apperr.Store("get user notifications", err)
	}

	countQuery := `
		SELECT COUNT(*)
		FROM notifications n
		JOIN user_notification_actions a ON a.notification_id = n.id
		WHERE ` + where
	if err := sqlx.GetContext(ctx, ext, &page.Total, r.dialect.Rebind(countQuery), filterArgs...); err != nil {
		return models.PaginatedUserNotifications{}, apperr.Store("count user notifications", err)
	}
	return page, nil
}

func (r *notificationRepository) UpdateNotificationAction(ctx context.Context, ext sqlx.ExtContext, ids []int64, username string, isRead bool) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"UPDATE user_notification_actions SET is_read = ?, action_timestamp = ? WHERE username = ? AND notification_id IN (?)",
		r.dialect.Bool(isRead), r.now().UTC(), username, ids)
	if err != nil {
		return apperr.Store("update notification action", err)
	}
	if _, err := ext.ExecContext(ctx, r.dialect.Rebind(query), args...); err != nil {
		return apperr.Store("update notification action", err)
	}
	return nil
}

func (r *notificationRepository) UnreadCountForUser(ctx context.Context, ext sqlx.ExtContext, username string) (int, error) {
	const query = "SELECT COUNT(*) FROM user_notification_actions WHERE username = ? AND is_read = ?"
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, r.dialect.Rebind(query), username, r.dialect.Bool(false)); err != nil {
		return 0, apperr.Store("unread count", err)
	}
	return count, nil
}

// DeleteUserNotifications removes the user's action rows for the requested
// ids and reports which ids did not exist for the user.
func (r *notificationRepository) DeleteUserNotifications(ctx context.Context, ext sqlx.ExtContext, ids []int64, username string) (models.DeleteResult, error) {
	result := models.DeleteResult{Deleted: []int64{}, Invalid: []int64{}}
	if len(ids) == 0 {
		return result, nil
	}

	existing, err := r.existingActionIDs(ctx, ext, ids, username)
	if err != nil {
		return models.DeleteResult{}, err
	}
	for _, id := range ids {
		if existing[id] {
			result.Deleted = append(result.Deleted, id)
		} else {
			result.Invalid = append(result.Invalid, id)
		}
	}
	if len(result.Deleted) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		"DELETE FROM user_notification_actions WHERE username = ? AND notification_id IN (?)",
		username, result.Deleted)
	if err != nil {
		return models.DeleteResult{}, apperr.Store("delete user notifications", err)
	}
	if _, err := ext.ExecContext(ctx, r.dialect.Rebind(query), args...); err != nil {
		return models.DeleteResult{}, apperr.Store("delete user notifications", err)
	}
	return result, nil
}

func (r *notificationRepository) DeleteAllUserNotifications(ctx context.Context, ext sqlx.ExtContext, username string) error {
	const query = "DELETE FROM user_notification_actions WHERE username = ?"
	if _, err := ext.ExecContext(ctx, r.dialect.Rebind(query), username); err != nil {
		return apperr.Store("delete all user notifications", err)
	}
	return nil
}

func (r *notificationRepository) existingActionIDs(ctx context.Context, ext sqlx.ExtContext, ids []int64, username string) (map[int64]bool, error) {
	query, args, err := sqlx.In(
		"SELECT notification_id FROM user_notification_actions WHERE username = ? AND notification_id IN (?)",
		username, ids)
	if err != nil {
		return nil, apperr.Store("select user actions", err)
	}
	var found []int64
	if err := sqlx.SelectContext(ctx, ext, &found, r.dialect.Rebind(query), args...); err != nil {
		return nil, apperr.Store("select user actions", err)
	}
	existing := make(map[int64]bool, len(found))
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}
