package policy

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/repository"
)

var testCatalog = map[string][]string{
	"ios":     {"DEVICE_LOCK", "DEVICE_WIPE"},
	"android": {"DEVICE_LOCK"},
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`
		CREATE TABLE tenant_metadata (
			tenant_id INTEGER NOT NULL,
			meta_key TEXT NOT NULL,
			meta_value TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (tenant_id, meta_key)
		)`)
	require.NoError(t, err)

	dbctx := repository.NewDBContext(db, dialect.SQLite{})
	meta := repository.NewMetadataRepository(dbctx.Dialect())
	return NewResolver(dbctx, meta, NewStaticOperationCodes(testCatalog), zerolog.Nop())
}

func validConfig() models.NotificationConfig {
	return models.NotificationConfig{
		Name:         "Device lock",
		Type:         models.NotificationTypeOperation,
		Code:         "DEVICE_LOCK",
		DeviceType:   "ios",
		Recipients:   models.Recipients{Roles: []string{"admin"}},
		Enabled:      true,
		ConfiguredBy: "alice",
	}
}

func TestConfigurationsAbsentDocumentYieldsDefaults(t *testing.T) {
	r := newTestResolver(t)

	list, err := r.Configurations(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, list.Configs)
	assert.Empty(t, list.Configs)
	assert.Equal(t, models.ArchiveTypeDefault, list.DefaultArchiveType)
	require.NotNil(t, list.DefaultArchiveAfter)
	assert.Equal(t, DefaultArchivePeriod, *list.DefaultArchiveAfter)
	assert.Zero(t, list.Version)
}

func TestAddConfigGeneratesMonotonicIDs(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	first, err := r.AddConfig(ctx, 1, validConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, first.ID)

	second := validConfig()
	second.Code = "DEVICE_WIPE"
	added, err := r.AddConfig(ctx, 1, second)
	require.NoError(t, err)
	assert.Equal(t, 2, added.ID)

	// Deleting the highest id does not free it for reuse of lower ids.
	require.NoError(t, r.DeleteConfig(ctx, 1, 1))
	third := validConfig()
	added, err = r.AddConfig(ctx, 1, third)
	require.NoError(t, err)
	assert.Equal(t, 3, added.ID)
}

func TestAddConfigRejectsCallerSuppliedID(t *testing.T) {
	r := newTestResolver(t)

	cfg := validConfig()
	cfg.ID = 42
	_, err := r.AddConfig(context.Background(), 1, cfg)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
}

func TestAddConfigRejectsDuplicateCodePair(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.AddConfig(ctx, 1, validConfig())
	require.NoError(t, err)

	dup := validConfig()
	dup.Name = "Another name"
	_, err = r.AddConfig(ctx, 1, dup)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfigConflict, apperr.KindOf(err))

	// The stored list is unchanged by the rejected add.
	list, err := r.Configurations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list.Configs, 1)

	// Same code on a different device type is fine.
	other := validConfig()
	other.DeviceType = "android"
	_, err = r.AddConfig(ctx, 1, other)
	require.NoError(t, err)
}

func TestAddConfigValidation(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	noCode := validConfig()
	noCode.Code = ""
	_, err := r.AddConfig(ctx, 1, noCode)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))

	noRecipients := validConfig()
	noRecipients.Recipients = models.Recipients{}
	_, err = r.AddConfig(ctx, 1, noRecipients)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))

	unknownCode := validConfig()
	unknownCode.Code = "NOT_A_REAL_OP"
	_, err = r.AddConfig(ctx, 1, unknownCode)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))

	badPeriod := validConfig()
	badPeriod.Settings.ArchiveAfter = &models.ArchivePeriod{Value: -1, Unit: models.ArchiveUnitDays}
	_, err = r.AddConfig(ctx, 1, badPeriod)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
}

func TestUpdateAndDeleteConfig(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	created, err := r.AddConfig(ctx, 1, validConfig())
	require.NoError(t, err)

	created.Name = "Renamed"
	updated, err := r.UpdateConfig(ctx, 1, created)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	got, err := r.ConfigByID(ctx, 1, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	missing := validConfig()
	missing.ID = 99
	_, err = r.UpdateConfig(ctx, 1, missing)
	assert.Equal(t, apperr.KindConfigNotFound, apperr.KindOf(err))

	require.NoError(t, r.DeleteConfig(ctx, 1, created.ID))
	_, err = r.ConfigByID(ctx, 1, created.ID)
	assert.Equal(t, apperr.KindConfigNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.KindConfigNotFound, apperr.KindOf(r.DeleteConfig(ctx, 1, created.ID)))
}

func TestConfigExistsIsCaseInsensitive(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.AddConfig(ctx, 1, validConfig())
	require.NoError(t, err)

	exists, err := r.ConfigExists(ctx, 1, "IOS", "device_lock")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = r.ConfigExists(ctx, 1, "android", "DEVICE_LOCK")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilteredConfigurations(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	lock := validConfig()
	_, err := r.AddConfig(ctx, 1, lock)
	require.NoError(t, err)
	wipe := validConfig()
	wipe.Name = "Full device wipe"
	wipe.Code = "DEVICE_WIPE"
	_, err = r.AddConfig(ctx, 1, wipe)
	require.NoError(t, err)
	android := validConfig()
	android.DeviceType = "android"
	_, err = r.AddConfig(ctx, 1, android)
	require.NoError(t, err)

	page, err := r.FilteredConfigurations(ctx, 1, ConfigFilter{Name: "wipe"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Configs, 1)
	assert.Equal(t, "DEVICE_WIPE", page.Configs[0].Code)

	page, err = r.FilteredConfigurations(ctx, 1, ConfigFilter{DeviceType: "IOS"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	// Offset and limit clamp to the filtered result's bounds.
	page, err = r.FilteredConfigurations(ctx, 1, ConfigFilter{Offset: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Configs, 1)

	page, err = r.FilteredConfigurations(ctx, 1, ConfigFilter{Offset: 50, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Configs)
}

func TestCutoffTimestamp(t *testing.T) {
	r := newTestResolver(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	cases := []struct {
		period models.ArchivePeriod
		want   time.Time
	}{
		{models.ArchivePeriod{Value: 6, Unit: models.ArchiveUnitHours}, now.Add(-6 * time.Hour)},
		{models.ArchivePeriod{Value: 10, Unit: models.ArchiveUnitDays}, now.AddDate(0, 0, -10)},
		{models.ArchivePeriod{Value: 2, Unit: models.ArchiveUnitWeeks}, now.AddDate(0, 0, -14)},
		{models.ArchivePeriod{Value: 6, Unit: models.ArchiveUnitMonths}, now.AddDate(0, -6, 0)},
		{models.ArchivePeriod{Value: 1, Unit: models.ArchiveUnitYears}, now.AddDate(-1, 0, 0)},
	}
	for _, tc := range cases {
		got, err := r.CutoffTimestamp(tc.period)
		require.NoError(t, err, tc.period.Unit)
		assert.Equal(t, tc.want, got, tc.period.Unit)
	}

	_, err := r.CutoffTimestamp(models.ArchivePeriod{Value: 1, Unit: "FORTNIGHTS"})
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
	_, err = r.CutoffTimestamp(models.ArchivePeriod{Value: 0, Unit: models.ArchiveUnitDays})
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
}

func TestSetDefaultArchiveMetadataRoundTrips(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	period := models.ArchivePeriod{Value: 3, Unit: models.ArchiveUnitMonths}
	require.NoError(t, r.SetDefaultArchiveMetadata(ctx, 1, models.ArchiveTypeNone, period))

	list, err := r.Configurations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveTypeNone, list.DefaultArchiveType)
	require.NotNil(t, list.DefaultArchiveAfter)
	assert.Equal(t, period, *list.DefaultArchiveAfter)
	assert.Equal(t, 1, list.Version)

	err = r.SetDefaultArchiveMetadata(ctx, 1, "", period)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
	err = r.SetDefaultArchiveMetadata(ctx, 1, models.ArchiveTypeDefault, models.ArchivePeriod{Value: 0, Unit: models.ArchiveUnitDays})
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
}

func TestConfigurationsMalformedDocument(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	require.NoError(t, r.meta.Create(ctx, r.dbctx.DB(), 1, MetadataKey, "{not json"))

	_, err := r.Configurations(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfigInvalid, apperr.KindOf(err))
}

func TestConcurrentSaveLoses(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	_, err := r.AddConfig(ctx, 1, validConfig())
	require.NoError(t, err)

	// A stale writer replays an outdated document version.
	stale, err := r.Configurations(ctx, 1)
	require.NoError(t, err)

	wipe := validConfig()
	wipe.Code = "DEVICE_WIPE"
	_, err = r.AddConfig(ctx, 1, wipe)
	require.NoError(t, err)

	err = r.save(ctx, 1, stale)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfigConflict, apperr.KindOf(err))

	// The winning write is intact.
	list, err := r.Configurations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list.Configs, 2)
}
