package models

// ArchiveType selects the archival behavior for a notification config. The
// "DEFAULT" marker opts a config (or the tenant as a whole) into scheduled
// archival; "NONE" opts a config out of the explicit pass only — its aged
// rows are still swept by the tenant-default pass when that is enabled.
type ArchiveType string

const (
	ArchiveTypeDefault ArchiveType = "DEFAULT"
	ArchiveTypeNone    ArchiveType = "NONE"
)

// ArchiveUnit is the time unit of an ArchivePeriod.
type ArchiveUnit string

const (
	ArchiveUnitHours  ArchiveUnit = "HOURS"
	ArchiveUnitDays   ArchiveUnit = "DAYS"
	ArchiveUnitWeeks  ArchiveUnit = "WEEKS"
	ArchiveUnitMonths ArchiveUnit = "MONTHS"
	ArchiveUnitYears  ArchiveUnit = "YEARS"
)

// ArchivePeriod is a relative retention period. It is resolved to an absolute
// cutoff timestamp at evaluation time, never persisted as one.
type ArchivePeriod struct {
	Value int         `json:"value"`
	Unit  ArchiveUnit `json:"unit"`
}

// Valid reports whether the period has a positive value and a known unit.
func (p ArchivePeriod) Valid() bool {
	if p.Value <= 0 {
		return false
	}
	switch p.Unit {
	case ArchiveUnitHours, ArchiveUnitDays, ArchiveUnitWeeks, ArchiveUnitMonths, ArchiveUnitYears:
		return true
	}
	return false
}

// Recipients describes who a notification config addresses.
type Recipients struct {
	Roles  []string `json:"roles,omitempty"`
	Users  []string `json:"users,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Empty reports whether no recipient of any kind is configured.
func (r Recipients) Empty() bool {
	return len(r.Roles) == 0 && len(r.Users) == 0 && len(r.Groups) == 0
}

// CriticalCriteria optionally restricts firing to specific status values.
type CriticalCriteria struct {
	Enabled  bool     `json:"enabled"`
	Statuses []string `json:"statuses,omitempty"`
}

// BatchSettings controls whether one notification covers many devices or one
// notification is raised per device.
type BatchSettings struct {
	Enabled          bool `json:"enabled"`
	IncludeDeviceIDs bool `json:"include_device_ids"`
}

// NotificationSettings is the behavioral block of a NotificationConfig.
type NotificationSettings struct {
	TriggerPoints    []string         `json:"trigger_points,omitempty"`
	CriticalCriteria CriticalCriteria `json:"critical_criteria"`
	Batch            BatchSettings    `json:"batch"`
	ArchiveType      ArchiveType      `json:"archive_type,omitempty"`
	ArchiveAfter     *ArchivePeriod   `json:"archive_after,omitempty"`
}

// NotificationConfig is a tenant-defined rule describing when a notification
// type is raised and how it is archived. Ids are server-generated and never
// reused; (DeviceType, Code) is unique within a tenant's list.
type NotificationConfig struct {
	ID           int                  `json:"id"`
	Name         string               `json:"name"`
	Type         NotificationType     `json:"type"`
	Code         string               `json:"code"`
	DeviceType   string               `json:"device_type"`
	Recipients   Recipients           `json:"recipients"`
	Enabled      bool                 `json:"enabled"`
	ConfiguredBy string               `json:"configured_by"`
	Settings     NotificationSettings `json:"settings"`
}

// NotificationConfigList is the single JSON document stored per tenant in the
// metadata store. Version guards read-modify-write cycles against concurrent
// overwrites.
type NotificationConfigList struct {
	Configs             []NotificationConfig `json:"notificationConfigurations"`
	DefaultArchiveType  ArchiveType          `json:"defaultArchiveType,omitempty"`
	DefaultArchiveAfter *ArchivePeriod       `json:"defaultArchiveAfter,omitempty"`
	Version             int                  `json:"version"`
}

// NextConfigID returns max existing id + 1.
func (l NotificationConfigList) NextConfigID() int {
	next := 1
	for _, cfg := range l.Configs {
		if cfg.ID >= next {
			next = cfg.ID + 1
		}
	}
	return next
}

// FindByID returns the config with the given id, if present.
func (l NotificationConfigList) FindByID(id int) (NotificationConfig, bool) {
	for _, cfg := range l.Configs {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return NotificationConfig{}, false
}
