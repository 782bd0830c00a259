// Package policy resolves per-tenant notification configuration: which
// notification types exist, who they address, and when they are archived.
// The whole configuration is one JSON document per tenant in the metadata
// store; every read-modify-write is guarded by the document version.
package policy

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/repository"
)

// MetadataKey is the fixed key the configuration document is stored under.
const MetadataKey = "NOTIFICATION_CONFIGURATIONS"

// DefaultArchivePeriod is the conservative fallback applied when a tenant has
// no default retention configured.
var DefaultArchivePeriod = models.ArchivePeriod{Value: 6, Unit: models.ArchiveUnitMonths}

// OperationCodeValidator checks operation codes against the device-feature
// catalog. It is an external collaborator of the resolver.
type OperationCodeValidator interface {
	ValidOperationCodes(ctx context.Context, deviceType string, codes []string) (map[string]bool, error)
}

type Resolver struct {
	dbctx   *repository.DBContext
	meta    repository.MetadataRepository
	opCodes OperationCodeValidator
	logger  zerolog.Logger
	now     func() time.Time
}

func NewResolver(dbctx *repository.DBContext, meta repository.MetadataRepository, opCodes OperationCodeValidator, logger zerolog.Logger) *Resolver {
	return &Resolver{
		dbctx:   dbctx,
		meta:    meta,
		opCodes: opCodes,
		logger:  logger.With().Str("component", "policy_resolver").Logger(),
		now:     time.Now,
	}
}

// Configurations loads the tenant's configuration list. A missing document
// yields an empty list with default archival values populated, never an error
// and never nil.
func (r *Resolver) Configurations(ctx context.Context, tenantID int) (models.NotificationConfigList, error) {
	meta, found, err := r.meta.Retrieve(ctx, r.dbctx.DB(), tenantID, MetadataKey)
	if err != nil {
		return models.NotificationConfigList{}, err
	}
	if !found {
		return emptyList(), nil
	}
	if strings.TrimSpace(meta.Value) == "" {
		list := emptyList()
		list.Version = meta.Version
		return list, nil
	}
	var list models.NotificationConfigList
	if err := json.Unmarshal([]byte(meta.Value), &list); err != nil {
		return models.NotificationConfigList{}, apperr.ConfigInvalid("malformed configuration document", err)
	}
	list.Version = meta.Version
	if list.Configs == nil {
		list.Configs = []models.NotificationConfig{}
	}
	if list.DefaultArchiveType == "" {
		list.DefaultArchiveType = models.ArchiveTypeDefault
	}
	if list.DefaultArchiveAfter == nil {
		period := DefaultArchivePeriod
		list.DefaultArchiveAfter = &period
	}
	return list, nil
}

func emptyList() models.NotificationConfigList {
	period := DefaultArchivePeriod
	return models.NotificationConfigList{
		Configs:             []models.NotificationConfig{},
		DefaultArchiveType:  models.ArchiveTypeDefault,
		DefaultArchiveAfter: &period,
	}
}

// SetDefaultArchiveMetadata persists the tenant-wide default archive type and
// retention period.
func (r *Resolver) SetDefaultArchiveMetadata(ctx context.Context, tenantID int, archiveType models.ArchiveType, period models.ArchivePeriod) error {
	if strings.TrimSpace(string(archiveType)) == "" {
		return apperr.ConfigInvalidf("default archive type must not be empty")
	}
	if !period.Valid() {
		return apperr.ConfigInvalidf("default archive period must be positive with a known unit")
	}
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return err
	}
	list.DefaultArchiveType = archiveType
	p := period
	list.DefaultArchiveAfter = &p
	return r.save(ctx, tenantID, list)
}

// CutoffTimestamp resolves a retention period to the absolute instant before
// which notifications are eligible for archival.
func (r *Resolver) CutoffTimestamp(period models.ArchivePeriod) (time.Time, error) {
	if period.Value <= 0 {
		return time.Time{}, apperr.ConfigInvalidf("archive period value must be positive, got %d", period.Value)
	}
	now := r.now().UTC()
	switch period.Unit {
	case models.ArchiveUnitHours:
		return now.Add(-time.Duration(period.Value) * time.Hour), nil
	case models.ArchiveUnitDays:
		return now.AddDate(0, 0, -period.Value), nil
	case models.ArchiveUnitWeeks:
		return now.AddDate(0, 0, -7*period.Value), nil
	case models.ArchiveUnitMonths:
		return now.AddDate(0, -period.Value, 0), nil
	case models.ArchiveUnitYears:
		return now.AddDate(-period.Value, 0, 0), nil
	}
	return time.Time{}, apperr.ConfigInvalidf("unrecognized archive period unit %q", period.Unit)
}

func (r *Resolver) ConfigByID(ctx context.Context, tenantID, configID int) (models.NotificationConfig, error) {
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return models.NotificationConfig{}, err
	}
	cfg, ok := list.FindByID(configID)
	if !ok {
		return models.NotificationConfig{}, apperr.ConfigNotFound("notification config not found")
	}
	return cfg, nil
}

// ConfigForCode finds the enabled config matching a device type and code.
func (r *Resolver) ConfigForCode(ctx context.Context, tenantID int, deviceType, code string) (models.NotificationConfig, bool, error) {
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return models.NotificationConfig{}, false, err
	}
	for _, cfg := range list.Configs {
		if strings.EqualFold(cfg.DeviceType, deviceType) && strings.EqualFold(cfg.Code, code) {
			return cfg, true, nil
		}
	}
	return models.NotificationConfig{}, false, nil
}

// ConfigFilter narrows the configuration list. String filters are
// case-insensitive; Name and Code match substrings, Type and DeviceType match
// exactly.
type ConfigFilter struct {
	Name       string
	Type       string
	Code       string
	DeviceType string
	Offset     int
	Limit      int
}

// ConfigPage is one page of filtered configs plus the total filtered count.
type ConfigPage struct {
	Configs []models.NotificationConfig `json:"configs"`
	Total   int                         `json:"total"`
}

// FilteredConfigurations applies the filter in memory over the loaded list,
// then paginates with offset/limit clamped to the filtered result's bounds.
func (r *Resolver) FilteredConfigurations(ctx context.Context, tenantID int, filter ConfigFilter) (ConfigPage, error) {
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return ConfigPage{}, err
	}
	matched := make([]models.NotificationConfig, 0, len(list.Configs))
	for _, cfg := range list.Configs {
		if filter.Name != "" && !strings.Contains(strings.ToLower(cfg.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Type != "" && !strings.EqualFold(string(cfg.Type), filter.Type) {
			continue
		}
		if filter.Code != "" && !strings.Contains(strings.ToLower(cfg.Code), strings.ToLower(filter.Code)) {
			continue
		}
		if filter.DeviceType != "" && !strings.EqualFold(cfg.DeviceType, filter.DeviceType) {
			continue
		}
		matched = append(matched, cfg)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	limit := filter.Limit
	if limit <= 0 || offset+limit > len(matched) {
		limit = len(matched) - offset
	}
	return ConfigPage{Configs: matched[offset : offset+limit], Total: len(matched)}, nil
}

// AddConfig validates and appends a new config. The id is server-generated;
// a caller-supplied id is rejected.
func (r *Resolver) AddConfig(ctx context.Context, tenantID int, cfg models.NotificationConfig) (models.NotificationConfig, error) {
	if cfg.ID != 0 {
		return models.NotificationConfig{}, apperr.ConfigInvalidf("config id is server-generated and must not be supplied")
	}
	if err := r.validateConfig(ctx, cfg); err != nil {
		return models.NotificationConfig{}, err
	}
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return models.NotificationConfig{}, err
	}
	if duplicateCodePair(list.Configs, cfg, 0) {
		return models.NotificationConfig{}, apperr.ConfigConflict("a config with this device type and code already exists")
	}
	cfg.ID = list.NextConfigID()
	list.Configs = append(list.Configs, cfg)
	if err := r.save(ctx, tenantID, list); err != nil {
		return models.NotificationConfig{}, err
	}
	return cfg, nil
}

func (r *Resolver) UpdateConfig(ctx context.Context, tenantID int, cfg models.NotificationConfig) (models.NotificationConfig, error) {
	if cfg.ID <= 0 {
		return models.NotificationConfig{}, apperr.ConfigInvalidf("config id is required for update")
	}
	if err := r.validateConfig(ctx, cfg); err != nil {
		return models.NotificationConfig{}, err
	}
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return models.NotificationConfig{}, err
	}
	if _, ok := list.FindByID(cfg.ID); !ok {
		return models.NotificationConfig{}, apperr.ConfigNotFound("notification config not found")
	}
	if duplicateCodePair(list.Configs, cfg, cfg.ID) {
		return models.NotificationConfig{}, apperr.ConfigConflict("a config with this device type and code already exists")
	}
	for i := range list.Configs {
		if list.Configs[i].ID == cfg.ID {
			list.Configs[i] = cfg
			break
		}
	}
	if err := r.save(ctx, tenantID, list); err != nil {
		return models.NotificationConfig{}, err
	}
	return cfg, nil
}

func (r *Resolver) DeleteConfig(ctx context.Context, tenantID, configID int) error {
	list, err := r.Configurations(ctx, tenantID)
	if err != nil {
		return err
	}
	kept := list.Configs[:0]
	found := false
	for _, cfg := range list.Configs {
		if cfg.ID == configID {
			found = true
			continue
		}
		kept = append(kept, cfg)
	}
	if !found {
		return apperr.ConfigNotFound("notification config not found")
	}
	list.Configs = kept
	return r.save(ctx, tenantID, list)
}

// ConfigExists reports whether a (deviceType, code) pair is already taken.
func (r *Resolver) ConfigExists(ctx context.Context, tenantID int, deviceType, code string) (bool, error) {
	_, found, err := r.ConfigForCode(ctx, tenantID, deviceType, code)
	return found, err
}

func (r *Resolver) validateConfig(ctx context.Context, cfg models.NotificationConfig) error {
	if strings.TrimSpace(cfg.Code) == "" {
		return apperr.ConfigInvalidf("config code is required")
	}
	if strings.TrimSpace(cfg.ConfiguredBy) == "" {
		return apperr.ConfigInvalidf("configuredBy is required")
	}
	if cfg.Recipients.Empty() {
		return apperr.ConfigInvalidf("at least one recipient role, user or group is required")
	}
	if cfg.Settings.ArchiveAfter != nil && !cfg.Settings.ArchiveAfter.Valid() {
		return apperr.ConfigInvalidf("archive period must be positive with a known unit")
	}
	if cfg.Type == models.NotificationTypeOperation {
		valid, err := r.opCodes.ValidOperationCodes(ctx, cfg.DeviceType, []string{cfg.Code})
		if err != nil {
			return err
		}
		if !valid[cfg.Code] {
			return apperr.ConfigInvalidf("unknown operation code %q for device type %q", cfg.Code, cfg.DeviceType)
		}
	}
	return nil
}

func duplicateCodePair(configs []models.NotificationConfig, cfg models.NotificationConfig, selfID int) bool {
	for _, existing := range configs {
		if existing.ID == selfID {
			continue
		}
		if strings.EqualFold(existing.DeviceType, cfg.DeviceType) && strings.EqualFold(existing.Code, cfg.Code) {
			return true
		}
	}
	return false
}

func (r *Resolver) save(ctx context.Context, tenantID int, list models.NotificationConfigList) error {
	version := list.Version
	list.Version = 0 // row version is authoritative, not the serialized copy
	raw, err := json.Marshal(list)
	if err != nil {
		return apperr.ConfigInvalid("serialize configuration document", err)
	}
	_, found, err := r.meta.Retrieve(ctx, r.dbctx.DB(), tenantID, MetadataKey)
	if err != nil {
		return err
	}
	if !found {
		return r.meta.Create(ctx, r.dbctx.DB(), tenantID, MetadataKey, string(raw))
	}
	return r.meta.Update(ctx, r.dbctx.DB(), tenantID, MetadataKey, string(raw), version)
}
