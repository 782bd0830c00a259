package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/notifar/notifar/internal/broker"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/policy"
	"github.com/notifar/notifar/internal/repository"
)

const testLiveSchema = `
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

const testArchiveSchema = `
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

type serviceFixture struct {
	live     *repository.DBContext
	archive  *repository.DBContext
	broker   *broker.Broker
	service  Service
	resolver *policy.Resolver
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	live := openTestDB(t, testLiveSchema)
	archive := openTestDB(t, testArchiveSchema)

	store := repository.NewNotificationRepository(live.Dialect())
	archiver := repository.NewArchiveRepository(live.Dialect(), archive.Dialect())
	users := repository.NewUserRepository(live.Dialect())
	meta := repository.NewMetadataRepository(live.Dialect())
	resolver := policy.NewResolver(live, meta, policy.NewStaticOperationCodes(nil), zerolog.Nop())

	deliveryBroker := broker.New(zerolog.Nop())
	t.Cleanup(func() { deliveryBroker.Close() })

	contexts := repository.ArchiveContexts{Source: live, Destination: archive}
	svc := NewService(live, contexts, store, archiver, users, resolver, deliveryBroker, zerolog.Nop())

	ctx := context.Background()
	_, err := users.CreateUser(ctx, live.DB(), 1, "alice", "", "pw", []models.UserRole{models.RoleAdmin})
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, live.DB(), 1, "bob", "", "pw", []models.UserRole{models.RoleOperator})
	require.NoError(t, err)

	return serviceFixture{live: live, archive: archive, broker: deliveryBroker, service: svc, resolver: resolver}
}

func openTestDB(t *testing.T, schema string) *repository.DBContext {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return repository.NewDBContext(db, dialect.SQLite{})
}

func (f serviceFixture) storeConfigList(t *testing.T, tenantID int, list models.NotificationConfigList) {
	t.Helper()
	raw, err := json.Marshal(list)
	require.NoError(t, err)
	_, err = f.live.DB().Exec(
		"INSERT INTO tenant_metadata (tenant_id, meta_key, meta_value, version) VALUES (?, ?, ?, 1)",
		tenantID, policy.MetadataKey, string(raw))
	require.NoError(t, err)
}

func receiveEvent(t *testing.T, events <-chan broker.Event) broker.Event {
	t.Helper()
	select {
	case evt, ok := <-events:
		require.True(t, ok, "event channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery event")
		return broker.Event{}
	}
}

func TestCreateNotificationSkipsUnknownRecipients(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	events, err := f.broker.Subscribe(ctx, "alice")
	require.NoError(t, err)

	created, err := f.service.CreateNotification(ctx, 1, 1, models.NotificationTypeOperation, "enrollment finished", []string{"alice", "bob", "ghost"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "enrollment finished", created.Description)

	evt := receiveEvent(t, events)
	assert.Equal(t, "enrollment finished", evt.Message)
	assert.Equal(t, 1, evt.UnreadCount)

	for _, username := range []string{"alice", "bob"} {
		count, err := f.service.UnreadCount(ctx, username)
		require.NoError(t, err)
		assert.Equal(t, 1, count, username)
	}

	// Ghost got no action row.
	count, err := f.service.UnreadCount(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateNotificationAllRecipientsUnknown(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.CreateNotification(context.Background(), 1, 1, models.NotificationTypeOperation, "n", []string{"ghost"})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestMarkActionsPublishesRecomputedUnreadCount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	events, err := f.broker.Subscribe(ctx, "alice")
	require.NoError(t, err)

	created, err := f.service.CreateNotification(ctx, 1, 1, models.NotificationTypeOperation, "n", []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, receiveEvent(t, events).UnreadCount)

	require.NoError(t, f.service.MarkActions(ctx, []int64{created.ID}, "alice", true))
	evt := receiveEvent(t, events)
	assert.Empty(t, evt.Message)
	assert.Zero(t, evt.UnreadCount)

	require.NoError(t, f.service.MarkActions(ctx, []int64{created.ID}, "alice", false))
	assert.Equal(t, 1, receiveEvent(t, events).UnreadCount)
}

func TestMutationsRequireKnownUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.service.MarkActions(ctx, []int64{1}, "ghost", true), ErrUnknownUser)
	_, err := f.service.DeleteUserNotifications(ctx, []int64{1}, "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.ErrorIs(t, f.service.DeleteAllUserNotifications(ctx, "ghost"), ErrUnknownUser)
	_, err = f.service.ArchiveUserNotifications(ctx, []int64{1}, "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.ErrorIs(t, f.service.ArchiveAllUserNotifications(ctx, "ghost"), ErrUnknownUser)
}

func TestDeleteUserNotificationsPartitionsResult(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateNotification(ctx, 1, 1, models.NotificationTypeOperation, "n", []string{"alice", "bob"})
	require.NoError(t, err)

	result, err := f.service.DeleteUserNotifications(ctx, []int64{created.ID, 999}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{created.ID}, result.Deleted)
	assert.Equal(t, []int64{999}, result.Invalid)

	bobCount, err := f.service.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bobCount)
}

func TestArchiveUserNotificationsMovesAcrossStores(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateNotification(ctx, 1, 1, models.NotificationTypeOperation, "n", []string{"alice", "bob"})
	require.NoError(t, err)

	result, err := f.service.ArchiveUserNotifications(ctx, []int64{created.ID}, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int64{created.ID}, result.Archived)
	assert.Empty(t, result.Invalid)

	var archived int
	require.NoError(t, f.archive.DB().Get(&archived, "SELECT COUNT(*) FROM arch_user_notification_actions WHERE username = 'alice'"))
	assert.Equal(t, 1, archived)

	aliceCount, err := f.service.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, aliceCount)
	bobCount, err := f.service.UnreadCount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bobCount)
}

func operationConfig() models.NotificationConfig {
	return models.NotificationConfig{
		ID:         1,
		Name:       "Device lock",
		Type:       models.NotificationTypeOperation,
		Code:       "DEVICE_LOCK",
		DeviceType: "ios",
		Recipients: models.Recipients{Roles: []string{"admin"}, Users: []string{"bob"}},
		Enabled:    true,
		Settings: models.NotificationSettings{
			TriggerPoints:    []string{"END"},
			CriticalCriteria: models.CriticalCriteria{Enabled: true, Statuses: []string{"FAILED"}},
			Batch:            models.BatchSettings{Enabled: true, IncludeDeviceIDs: true},
		},
	}
}

func TestHandleOperationNotificationBatchMode(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.storeConfigList(t, 1, models.NotificationConfigList{Configs: []models.NotificationConfig{operationConfig()}})

	evt := OperationEvent{
		TenantID:            1,
		Code:                "DEVICE_LOCK",
		Status:              "FAILED",
		DeviceType:          "ios",
		TriggerPoint:        "end",
		DeviceEnrollmentIDs: []string{"dev-1", "dev-2"},
	}
	require.NoError(t, f.service.HandleOperationNotification(ctx, evt))

	latest, err := f.service.LatestNotifications(ctx, 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "Operation DEVICE_LOCK is failed for 2 device(s): dev-1, dev-2", latest[0].Description)
	assert.Equal(t, 1, latest[0].ConfigID)

	// Role admin resolved alice, user list added bob.
	for _, username := range []string{"alice", "bob"} {
		count, err := f.service.UnreadCount(ctx, username)
		require.NoError(t, err)
		assert.Equal(t, 1, count, username)
	}
}

func TestHandleOperationNotificationPerDeviceMode(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	cfg := operationConfig()
	cfg.Settings.Batch = models.BatchSettings{}
	f.storeConfigList(t, 1, models.NotificationConfigList{Configs: []models.NotificationConfig{cfg}})

	evt := OperationEvent{
		TenantID:            1,
		Code:                "DEVICE_LOCK",
		Status:              "FAILED",
		DeviceType:          "ios",
		TriggerPoint:        "END",
		DeviceEnrollmentIDs: []string{"dev-1", "dev-2"},
	}
	require.NoError(t, f.service.HandleOperationNotification(ctx, evt))

	latest, err := f.service.LatestNotifications(ctx, 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	count, err := f.service.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHandleOperationNotificationFilters(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	disabled := operationConfig()
	disabled.Enabled = false
	f.storeConfigList(t, 1, models.NotificationConfigList{Configs: []models.NotificationConfig{disabled}})

	base := OperationEvent{
		TenantID:            1,
		Code:                "DEVICE_LOCK",
		Status:              "FAILED",
		DeviceType:          "ios",
		TriggerPoint:        "END",
		DeviceEnrollmentIDs: []string{"dev-1"},
	}

	// Disabled config.
	require.NoError(t, f.service.HandleOperationNotification(ctx, base))

	f2 := newServiceFixture(t)
	f2.storeConfigList(t, 1, models.NotificationConfigList{Configs: []models.NotificationConfig{operationConfig()}})

	// Trigger point not configured.
	wrongTrigger := base
	wrongTrigger.TriggerPoint = "START"
	require.NoError(t, f2.service.HandleOperationNotification(ctx, wrongTrigger))

	// Status outside the critical allow-list.
	wrongStatus := base
	wrongStatus.Status = "COMPLETED"
	require.NoError(t, f2.service.HandleOperationNotification(ctx, wrongStatus))

	// Unknown code altogether.
	wrongCode := base
	wrongCode.Code = "DEVICE_WIPE"
	require.NoError(t, f2.service.HandleOperationNotification(ctx, wrongCode))

	for _, f := range []serviceFixture{f, f2} {
		latest, err := f.service.LatestNotifications(ctx, 1, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, latest)
	}
}
