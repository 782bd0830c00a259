package temporal

import "time"

// TaskQueueName is the name of the Temporal task queue used for archival workflows.
const TaskQueueName = "NOTIFICATION_ARCHIVAL"

// ArchivalWorkflowIDPrefix is the prefix used for tenant archival workflow IDs.
const ArchivalWorkflowIDPrefix = "notification-archival-"

// PurgeWorkflowIDPrefix is the prefix used for archive purge workflow IDs.
const PurgeWorkflowIDPrefix = "archive-purge-"

// ArchivalScheduleID identifies the recurring archival schedule.
const ArchivalScheduleID = "notification-archival-schedule"

// PurgeScheduleID identifies the recurring archive purge schedule.
const PurgeScheduleID = "archive-purge-schedule"

// DefaultActivityTimeout is the default timeout duration for archival activities.
const DefaultActivityTimeout = 10 * time.Minute
