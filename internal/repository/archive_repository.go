package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
)

// ArchiveRepository moves aged notifications between the live store and the
// archive store. Every operation takes a source connection (live) and a
// destination connection (archive); the two may belong to different physical
// databases, so copies happen row-wise through the process and never as a
// single cross-database statement.
//
// Move operations are duplicate-safe: re-running with an overlapping id set
// after a partial failure converges on the same terminal state. The ordering
// discipline is copy before delete; a crash between the two leaves rows
// present in both stores, never in neither.
type ArchiveRepository interface {
	MoveNotificationsToArchive(ctx context.Context, src, dst sqlx.ExtContext, cutoff time.Time, tenantID int) ([]int64, error)
	MoveNotificationsToArchiveByConfig(ctx context.Context, src, dst sqlx.ExtContext, cutoff time.Time, tenantID, configID int) ([]int64, error)
	MoveNotificationsToArchiveExcludingConfigs(ctx context.Context, src, dst sqlx.ExtContext, cutoff time.Time, tenantID int, excludedConfigIDs []int) ([]int64, error)
	MoveUserActionsToArchive(ctx context.Context, src, dst sqlx.ExtContext, notificationIDs []int64) error

	DeleteOldNotifications(ctx context.Context, src sqlx.ExtContext, cutoff time.Time, tenantID int) (int64, error)
	DeleteOldNotificationsByConfig(ctx context.Context, src sqlx.ExtContext, cutoff time.Time, tenantID, configID int) (int64, error)
	DeleteOldNotificationsExcludingConfigs(ctx context.Context, src sqlx.ExtContext, cutoff time.Time, tenantID int, excludedConfigIDs []int) (int64, error)

	ArchiveUserNotifications(ctx context.Context, src, dst sqlx.ExtContext, ids []int64, username string) (models.ArchiveResult, error)
	ArchiveAllUserNotifications(ctx context.Context, src, dst sqlx.ExtContext, username string) error

	DeleteExpiredArchivedNotifications(ctx context.Context, dst sqlx.ExtContext, cutoff time.Time, tenantID int) error
}

type archiveRepository struct {
	srcDialect dialect.Dialect
	dstDialect dialect.Dialect
}

// NewArchiveRepository builds an archive store spanning a source and a
// destination dialect, which may differ.
func NewArchiveRepository(src, dst dialect.Dialect) ArchiveRepository {
	return &archiveRepository{srcDialect: src, dstDialect: dst}
}

const archiveBatchSize = 500

// int64Chunks splits ids into archive-batch-sized runs so IN clauses stay
// under driver placeholder limits.
func int64Chunks(ids []int64) [][]int64 {
	chunks := make([][]int64, 0, (len(ids)+archiveBatchSize-1)/archiveBatchSize)
	for start := 0; start < len(ids); start += archiveBatchSize {
		end := start + archiveBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func (r *archiveRepository) MoveNotificationsToArchive(ctx context.Context, src, dst sqlx.ExtContext, cutoff time.Time, tenantID int) ([]int64, error) {
	return r.moveNotifications(ctx, src, dst, "tenant_id = ? AND created_at < ?", tenantID, cutoff.UTC())
}

func (r *archiveRepository) MoveNotificationsToArchiveByConfig(ctx context.Context, src, dst sqlx.ExtContext, cutoff time.Time, tenantID, configID int) ([]int64, error) {
	return r.moveNotifications(ctx, src, dst, "tenant_id = ? AND created_at < ? AND config_id = ?", tenantID, cutoff.UTC(), configID)
}

func (r *archiveRepository) MoveNotificationsToArchiveExcludingConfigs(ctx context.Context, src, dst sqlx.ExtContext, cutoff time.Time, tenantID int, excludedConfigIDs []int) ([]int64, error) {
	if len(excludedConfigIDs) == 0 {
		// Degenerate form kept from the original contract: with nothing
		// excluded, only rows carrying no matching config are swept.
		return r.moveNotifications(ctx, src, dst, "tenant_id = ? AND created_at < ? AND config_id = ?", tenantID, cutoff.UTC(), -1)
	}
	where, args, err := sqlx.In("tenant_id = ? AND created_at < ? AND config_id NOT IN (?)", tenantID, cutoff.UTC(), excludedConfigIDs)
	if err != nil {
		return nil, apperr.Store("move notifications excluding configs", err)
	}
	return r.moveNotifications(ctx, src, dst, where, args...)
}

// moveNotifications selects matching live rows, copies the ones the archive
// does not already hold, and returns every selected id. It does not delete
// from source; deletion is a separate call.
func (r *archiveRepository) moveNotifications(ctx context.Context, src, dst sqlx.ExtContext, where string, args ...interface{}) ([]int64, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE " + where + " ORDER BY id"
	var notifications []models.Notification
	if err := sqlx.SelectContext(ctx, src, &notifications, r.srcDialect.Rebind(query), args...); err != nil {
		return nil, apperr.Store("select notifications for archive", err)
	}
	if len(notifications) == 0 {
		return []int64{}, nil
	}

	ids := make([]int64, len(notifications))
	for i, n := range notifications {
		ids[i] = n.ID
	}

	archived, err := r.archivedNotificationIDs(ctx, dst, ids)
	if err != nil {
		return nil, err
	}

	pending := notifications[:0]
	for _, n := range notifications {
		if !archived[n.ID] {
			pending = append(pending, n)
		}
	}
	for start := 0; start < len(pending); start += archiveBatchSize {
		end := start + archiveBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := r.insertArchivedNotifications(ctx, dst, pending[start:end]); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (r *archiveRepository) insertArchivedNotifications(ctx context.Context, dst sqlx.ExtContext, batch []models.Notification) error {
	query := "INSERT INTO arch_notifications (id, config_id, tenant_id, description, type, created_at) VALUES "
	args := make([]interface{}, 0, len(batch)*6)
	for i, n := range batch {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, n.ID, n.ConfigID, n.TenantID, n.Description, string(n.Type), n.CreatedAt.UTC())
	}
	query = r.dstDialect.InsertIgnore(query, "id")
	if _, err := dst.ExecContext(ctx, r.dstDialect.Rebind(query), args...); err != nil {
		return apperr.Store("insert archived notifications", err)
	}
	return nil
}

func (r *archiveRepository) archivedNotificationIDs(ctx context.Context, dst sqlx.ExtContext, ids []int64) (map[int64]bool, error) {
	existing := make(map[int64]bool, len(ids))
	for _, chunk := range int64Chunks(ids) {
		query, args, err := sqlx.In("SELECT id FROM arch_notifications WHERE id IN (?)", chunk)
		if err != nil {
			return nil, apperr.Store("select archived ids", err)
		}
		var found []int64
		if err := sqlx.SelectContext(ctx, dst, &found, r.dstDialect.Rebind(query), args...); err != nil {
			return nil, apperr.Store("select archived ids", err)
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}

// MoveUserActionsToArchive copies the action rows for the given notifications
// into the archive side and deletes them from source.
func (r *archiveRepository) MoveUserActionsToArchive(ctx context.Context, src, dst sqlx.ExtContext, notificationIDs []int64) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	var actions []models.UserNotificationAction
	for _, chunk := range int64Chunks(notificationIDs) {
		query, args, err := sqlx.In(
			"SELECT action_id, notification_id, username, is_read, action_timestamp FROM user_notification_actions WHERE notification_id IN (?) ORDER BY action_id",
			chunk)
		if err != nil {
			return apperr.Store("select user actions for archive", err)
		}
		var batch []models.UserNotificationAction
		if err := sqlx.SelectContext(ctx, src, &batch, r.srcDialect.Rebind(query), args...); err != nil {
			return apperr.Store("select user actions for archive", err)
		}
		actions = append(actions, batch...)
	}
	if err := r.insertArchivedActions(ctx, dst, actions); err != nil {
		return err
	}

	for _, chunk := range int64Chunks(notificationIDs) {
		deleteQuery, deleteArgs, err := sqlx.In("DELETE FROM user_notification_actions WHERE notification_id IN (?)", chunk)
		if err != nil {
			return apperr.Store("delete archived user actions", err)
		}
		if _, err := src.ExecContext(ctx, r.srcDialect.Rebind(deleteQuery), deleteArgs...); err != nil {
			return apperr.Store("delete archived user actions", err)
		}
	}
	return nil
}

func (r *archiveRepository) insertArchivedActions(ctx context.Context, dst sqlx.ExtContext, actions []models.UserNotificationAction) error {
	for start := 0; start < len(actions); start += archiveBatchSize {
		end := start + archiveBatchSize
		if end > len(actions) {
			end = len(actions)
		}
		batch := actions[start:end]
		query := "INSERT INTO arch_user_notification_actions (action_id, notification_id, username, is_read, action_timestamp) VALUES "
		args := make([]interface{}, 0, len(batch)*5)
		for i, a := range batch {
			if i > 0 {
				query += ", "
			}
			query += "(?, ?, ?, ?, ?)"
			args = append(args, a.ActionID, a.NotificationID, a.Username, r.dstDialect.Bool(a.IsRead), a.ActionTimestamp.UTC())
		}
		query = r.dstDialect.InsertIgnore(query, "action_id")
		if _, err := dst.ExecContext(ctx, r.dstDialect.Rebind(query), args...); err != nil {
			return apperr.Store("insert archived user actions", err)
		}
	}
	return nil
}

func (r *archiveRepository) DeleteOldNotifications(ctx context.Context, src sqlx.ExtContext, cutoff time.Time, tenantID int) (int64, error) {
	return r.deleteNotifications(ctx, src, "tenant_id = ? AND created_at < ?", tenantID, cutoff.UTC())
}

func (r *archiveRepository) DeleteOldNotificationsByConfig(ctx context.Context, src sqlx.ExtContext, cutoff time.Time, tenantID, configID int) (int64, error) {
	return r.deleteNotifications(ctx, src, "tenant_id = ? AND created_at < ? AND config_id = ?", tenantID, cutoff.UTC(), configID)
}

func (r *archiveRepository) DeleteOldNotificationsExcludingConfigs(ctx context.Context, src sqlx.ExtContext, cutoff time.Time, tenantID int, excludedConfigIDs []int) (int64, error) {
	if len(excludedConfigIDs) == 0 {
		return r.deleteNotifications(ctx, src, "tenant_id = ? AND created_at < ? AND config_id = ?", tenantID, cutoff.UTC(), -1)
	}
	where, args, err := sqlx.In("tenant_id = ? AND created_at < ? AND config_id NOT IN (?)", tenantID, cutoff.UTC(), excludedConfigIDs)
	if err != nil {
		return 0, apperr.Store("delete old notifications excluding configs", err)
	}
	return r.deleteNotifications(ctx, src, where, args...)
}

func (r *archiveRepository) deleteNotifications(ctx context.Context, src sqlx.ExtContext, where string, args ...interface{}) (int64, error) {
	res, err := src.ExecContext(ctx, r.srcDialect.Rebind("DELETE FROM notifications WHERE "+where), args...)
	if err != nil {
		return 0, apperr.Store("delete old notifications", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Store("delete old notifications", err)
	}
	return count, nil
}

// ArchiveUserNotifications archives the user's action rows for the requested
// ids, partitioning requested ids into found and not-found. Parent
// notifications are copied to the archive side when missing so archived
// actions never dangle.
func (r *archiveRepository) ArchiveUserNotifications(ctx context.Context, src, dst sqlx.ExtContext, ids []int64, username string) (models.ArchiveResult, error) {
	result := models.ArchiveResult{Archived: []int64{}, Invalid: []int64{}}
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(
		"SELECT action_id, notification_id, username, is_read, action_timestamp FROM user_notification_actions WHERE username = ? AND notification_id IN (?) ORDER BY action_id",
		username, ids)
	if err != nil {
		return models.ArchiveResult{}, apperr.Store("select user actions to archive", err)
	}
	var actions []models.UserNotificationAction
	if err := sqlx.SelectContext(ctx, src, &actions, r.srcDialect.Rebind(query), args...); err != nil {
		return models.ArchiveResult{}, apperr.Store("select user actions to archive", err)
	}

	found := make(map[int64]bool, len(actions))
	for _, a := range actions {
		found[a.NotificationID] = true
	}
	for _, id := range ids {
		if found[id] {
			result.Archived = append(result.Archived, id)
		} else {
			result.Invalid = append(result.Invalid, id)
		}
	}
	if len(actions) == 0 {
		return result, nil
	}

	if err := r.archiveActions(ctx, src, dst, actions, username); err != nil {
		return models.ArchiveResult{}, err
	}
	return result, nil
}

// ArchiveAllUserNotifications unconditionally moves every action row the user
// holds to the archive side.
func (r *archiveRepository) ArchiveAllUserNotifications(ctx context.Context, src, dst sqlx.ExtContext, username string) error {
	const query = "SELECT action_id, notification_id, username, is_read, action_timestamp FROM user_notification_actions WHERE username = ? ORDER BY action_id"
	var actions []models.UserNotificationAction
	if err := sqlx.SelectContext(ctx, src, &actions, r.srcDialect.Rebind(query), username); err != nil {
		return apperr.Store("select all user actions to archive", err)
	}
	if len(actions) == 0 {
		return nil
	}
	return r.archiveActions(ctx, src, dst, actions, username)
}

func (r *archiveRepository) archiveActions(ctx context.Context, src, dst sqlx.ExtContext, actions []models.UserNotificationAction, username string) error {
	ids := make([]int64, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.NotificationID)
	}

	// Copy parents first, then actions, then delete from source.
	var parents []models.Notification
	for _, chunk := range int64Chunks(ids) {
		parentQuery, parentArgs, err := sqlx.In("SELECT "+notificationColumns+" FROM notifications WHERE id IN (?) ORDER BY id", chunk)
		if err != nil {
			return apperr.Store("select parent notifications", err)
		}
		var batch []models.Notification
		if err := sqlx.SelectContext(ctx, src, &batch, r.srcDialect.Rebind(parentQuery), parentArgs...); err != nil {
			return apperr.Store("select parent notifications", err)
		}
		parents = append(parents, batch...)
	}
	archived, err := r.archivedNotificationIDs(ctx, dst, ids)
	if err != nil {
		return err
	}
	pending := parents[:0]
	for _, p := range parents {
		if !archived[p.ID] {
			pending = append(pending, p)
		}
	}
	if len(pending) > 0 {
		if err := r.insertArchivedNotifications(ctx, dst, pending); err != nil {
			return err
		}
	}
	if err := r.insertArchivedActions(ctx, dst, actions); err != nil {
		return err
	}

	for _, chunk := range int64Chunks(ids) {
		deleteQuery, deleteArgs, err := sqlx.In("DELETE FROM user_notification_actions WHERE username = ? AND notification_id IN (?)", username, chunk)
		if err != nil {
			return apperr.Store("delete archived user actions", err)
		}
		if _, err := src.ExecContext(ctx, r.srcDialect.Rebind(deleteQuery), deleteArgs...); err != nil {
			return apperr.Store("delete archived user actions", err)
		}
	}
	return nil
}

// DeleteExpiredArchivedNotifications prunes the archive side past the hard
// deletion horizon. Action rows go first to respect the foreign relationship.
func (r *archiveRepository) DeleteExpiredArchivedNotifications(ctx context.Context, dst sqlx.ExtContext, cutoff time.Time, tenantID int) error {
	const actionsQuery = `
		DELETE FROM arch_user_notification_actions
		WHERE notification_id IN (
			SELECT id FROM arch_notifications WHERE tenant_id = ? AND created_at < ?
		)`
	if _, err := dst.ExecContext(ctx, r.dstDialect.Rebind(actionsQuery), tenantID, cutoff.UTC()); err != nil {
		return apperr.Store("delete expired archived actions", err)
	}
	const notificationsQuery = "DELETE FROM arch_notifications WHERE tenant_id = ? AND created_at < ?"
	if _, err := dst.ExecContext(ctx, r.dstDialect.Rebind(notificationsQuery), tenantID, cutoff.UTC()); err != nil {
		return apperr.Store("delete expired archived notifications", err)
	}
	return nil
}
