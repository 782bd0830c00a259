package models

import "time"

// NotificationType distinguishes how a notification was raised.
type NotificationType string

const (
	NotificationTypeOperation NotificationType = "operation"
	NotificationTypeTask      NotificationType = "task"
)

// Notification is a row in the live notifications table. Rows are immutable
// after creation; they leave the table either by direct deletion or by
// migration into the archive store.
type Notification struct {
	ID          int64            `json:"id" db:"id"`
	ConfigID    int              `json:"config_id" db:"config_id"`
	TenantID    int              `json:"tenant_id" db:"tenant_id"`
	Description string           `json:"description" db:"description"`
	Type        NotificationType `json:"type" db:"type"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// UserNotificationAction tracks per-recipient read state. One row is created
// per addressed username when the notification is inserted.
type UserNotificationAction struct {
	ActionID        int64     `json:"action_id" db:"action_id"`
	NotificationID  int64     `json:"notification_id" db:"notification_id"`
	Username        string    `json:"username" db:"username"`
	IsRead          bool      `json:"is_read" db:"is_read"`
	ActionTimestamp time.Time `json:"action_timestamp" db:"action_timestamp"`
}

const (
	StatusRead   = "READ"
	StatusUnread = "UNREAD"
)

// UserNotificationPayload denormalizes notification and action fields for
// direct client consumption.
type UserNotificationPayload struct {
	ID          int64            `json:"id" db:"id"`
	Description string           `json:"description" db:"description"`
	Type        NotificationType `json:"type" db:"type"`
	Status      string           `json:"status" db:"status"`
	Username    string           `json:"username" db:"username"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// PaginatedUserNotifications is one page of a per-user query plus the total
// match count under the same filter.
type PaginatedUserNotifications struct {
	Notifications []UserNotificationPayload `json:"notifications"`
	Total         int                       `json:"total"`
}

// DeleteResult partitions a requested id list into ids that existed for the
// user and were removed vs. ids that did not.
type DeleteResult struct {
	Deleted []int64 `json:"deleted"`
	Invalid []int64 `json:"invalid"`
}

// ArchiveResult is the per-user archival counterpart of DeleteResult.
type ArchiveResult struct {
	Archived []int64 `json:"archived"`
	Invalid  []int64 `json:"invalid"`
}
