package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
)

// liveSchema mirrors the live migrations in SQLite form.
const liveSchema = `
CREATE TABLE tenants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);
CREATE TABLE users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id INTEGER NOT NULL,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    roles TEXT NOT NULL DEFAULT 'viewer'
);
CREATE TABLE tenant_metadata (
    tenant_id INTEGER NOT NULL,
    meta_key TEXT NOT NULL,
    meta_value TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (tenant_id, meta_key)
);
CREATE TABLE notifications (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    config_id INTEGER NOT NULL,
    tenant_id INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE user_notification_actions (
    action_id INTEGER PRIMARY KEY AUTOINCREMENT,
    notification_id INTEGER NOT NULL,
    username TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    action_timestamp TIMESTAMP NOT NULL
);`

const archiveSchema = `
CREATE TABLE arch_notifications (
    id INTEGER PRIMARY KEY,
    config_id INTEGER NOT NULL,
    tenant_id INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE arch_user_notification_actions (
    action_id INTEGER PRIMARY KEY,
    notification_id INTEGER NOT NULL,
    username TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    action_timestamp TIMESTAMP NOT NULL
);`

func newTestDB(t *testing.T, schema string) *DBContext {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return NewDBContext(db, dialect.SQLite{})
}

func newLiveDB(t *testing.T) *DBContext    { return newTestDB(t, liveSchema) }
func newArchiveDB(t *testing.T) *DBContext { return newTestDB(t, archiveSchema) }

// seedNotification inserts a row with an explicit creation time.
func seedNotification(t *testing.T, db *DBContext, tenantID, configID int, description string, createdAt time.Time) int64 {
	t.Helper()
	repo := &notificationRepository{dialect: db.Dialect(), now: func() time.Time { return createdAt }}
	id, err := repo.InsertNotification(context.Background(), db.DB(), tenantID, configID, models.NotificationTypeOperation, description)
	require.NoError(t, err)
	return id
}

func seedActions(t *testing.T, db *DBContext, notificationID int64, usernames ...string) {
	t.Helper()
	repo := NewNotificationRepository(db.Dialect())
	require.NoError(t, repo.InsertUserActions(context.Background(), db.DB(), notificationID, usernames))
}

func countRows(t *testing.T, db *DBContext, table string) int {
	t.Helper()
	var count int
	require.NoError(t, db.DB().Get(&count, "SELECT COUNT(*) FROM "+table))
	return count
}
