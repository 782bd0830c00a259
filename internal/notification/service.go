// Package notification implements the management service: the write/read API
// over the live store, with explicit transaction boundaries and delivery
// fan-out after every mutation.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/broker"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/policy"
	"github.com/notifar/notifar/internal/repository"
)

// ErrUnknownUser is returned when a mutation addresses a username the user
// directory does not know.
var ErrUnknownUser = errors.New("unknown user")

type Service interface {
	CreateNotification(ctx context.Context, tenantID, configID int, typ models.NotificationType, description string, usernames []string) (models.Notification, error)
	LatestNotifications(ctx context.Context, tenantID, offset, limit int) ([]models.Notification, error)
	NotificationsByIDs(ctx context.Context, ids []int64) ([]models.Notification, error)
	UserNotifications(ctx context.Context, username string, limit, offset int, isRead *bool) (models.PaginatedUserNotifications, error)
	MarkActions(ctx context.Context, ids []int64, username string, isRead bool) error
	UnreadCount(ctx context.Context, username string) (int, error)
	DeleteUserNotifications(ctx context.Context, ids []int64, username string) (models.DeleteResult, error)
	DeleteAllUserNotifications(ctx context.Context, username string) error
	ArchiveUserNotifications(ctx context.Context, ids []int64, username string) (models.ArchiveResult, error)
	ArchiveAllUserNotifications(ctx context.Context, username string) error
	HandleOperationNotification(ctx context.Context, evt OperationEvent) error
}

// OperationEvent is the domain-event entry point: a device operation reached
// a lifecycle trigger point.
type OperationEvent struct {
	TenantID            int
	Code                string
	Status              string
	DeviceType          string
	TriggerPoint        string
	DeviceEnrollmentIDs []string
}

type service struct {
	live     *repository.DBContext
	archive  repository.ArchiveContexts
	store    repository.NotificationRepository
	archiver repository.ArchiveRepository
	users    repository.UserRepository
	resolver *policy.Resolver
	broker   *broker.Broker
	logger   zerolog.Logger
}

func NewService(
	live *repository.DBContext,
	archive repository.ArchiveContexts,
	store repository.NotificationRepository,
	archiver repository.ArchiveRepository,
	users repository.UserRepository,
	resolver *policy.Resolver,
	deliveryBroker *broker.Broker,
	logger zerolog.Logger,
) Service {
	return &service{
		live:     live,
		archive:  archive,
		store:    store,
		archiver: archiver,
		users:    users,
		resolver: resolver,
		broker:   deliveryBroker,
		logger:   logger.With().Str("component", "notification_service").Logger(),
	}
}

// CreateNotification inserts the notification and fans out one unread action
// row per recipient inside one transaction, then publishes delivery events.
func (s *service) CreateNotification(ctx context.Context, tenantID, configID int, typ models.NotificationType, description string, usernames []string) (models.Notification, error) {
	recipients, err := s.knownUsers(ctx, usernames)
	if err != nil {
		return models.Notification{}, err
	}
	if len(recipients) == 0 {
		return models.Notification{}, ErrUnknownUser
	}

	tx, err := s.live.Begin(ctx)
	if err != nil {
		return models.Notification{}, err
	}
	defer tx.Rollback()

	id, err := s.store.InsertNotification(ctx, tx, tenantID, configID, typ, description)
	if err != nil {
		return models.Notification{}, err
	}
	if err := s.store.InsertUserActions(ctx, tx, id, recipients); err != nil {
		return models.Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Notification{}, apperr.Transaction("commit create notification", err)
	}

	notifications, err := s.store.GetNotificationsByIDs(ctx, s.live.DB(), []int64{id})
	if err != nil || len(notifications) == 0 {
		// The row committed; fall back to the inputs for the return value.
		notifications = []models.Notification{{ID: id, ConfigID: configID, TenantID: tenantID, Description: description, Type: typ}}
	}
	s.publishTo(ctx, recipients, description)
	return notifications[0], nil
}

func (s *service) LatestNotifications(ctx context.Context, tenantID, offset, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return s.store.GetLatestNotifications(ctx, s.live.DB(), tenantID, offset, limit)
}

func (s *service) NotificationsByIDs(ctx context.Context, ids []int64) ([]models.Notification, error) {
	return s.store.GetNotificationsByIDs(ctx, s.live.DB(), ids)
}

func (s *service) UserNotifications(ctx context.Context, username string, limit, offset int, isRead *bool) (models.PaginatedUserNotifications, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	return s.store.GetUserNotificationsWithStatus(ctx, s.live.DB(), username, limit, offset, isRead)
}

func (s *service) MarkActions(ctx context.Context, ids []int64, username string, isRead bool) error {
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	tx, err := s.live.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.UpdateNotificationAction(ctx, tx, ids, username, isRead); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Transaction("commit mark actions", err)
	}
	s.publishTo(ctx, []string{username}, "")
	return nil
}

func (s *service) UnreadCount(ctx context.Context, username string) (int, error) {
	return s.store.UnreadCountForUser(ctx, s.live.DB(), username)
}

func (s *service) DeleteUserNotifications(ctx context.Context, ids []int64, username string) (models.DeleteResult, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return models.DeleteResult{}, err
	}
	tx, err := s.live.Begin(ctx)
	if err != nil {
		return models.DeleteResult{}, err
	}
	defer tx.Rollback()
	result, err := s.store.DeleteUserNotifications(ctx, tx, ids, username)
	if err != nil {
		return models.DeleteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.DeleteResult{}, apperr.Transaction("commit delete notifications", err)
	}
	s.publishTo(ctx, []string{username}, "")
	return result, nil
}

func (s *service) DeleteAllUserNotifications(ctx context.Context, username string) error {
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	tx, err := s.live.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.DeleteAllUserNotifications(ctx, tx, username); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Transaction("commit delete all notifications", err)
	}
	s.publishTo(ctx, []string{username}, "")
	return nil
}

// ArchiveUserNotifications copies the user's rows to the archive side and
// deletes them from the live side. The destination commits before the source:
// a crash in between leaves rows in both stores, never in neither.
func (s *service) ArchiveUserNotifications(ctx context.Context, ids []int64, username string) (models.ArchiveResult, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return models.ArchiveResult{}, err
	}
	var result models.ArchiveResult
	err := s.withArchiveTxs(ctx, func(src, dst *sqlx.Tx) error {
		var err error
		result, err = s.archiver.ArchiveUserNotifications(ctx, src, dst, ids, username)
		return err
	})
	if err != nil {
		return models.ArchiveResult{}, err
	}
	s.publishTo(ctx, []string{username}, "")
	return result, nil
}

func (s *service) ArchiveAllUserNotifications(ctx context.Context, username string) error {
	if err := s.requireUser(ctx, username); err != nil {
		return err
	}
	err := s.withArchiveTxs(ctx, func(src, dst *sqlx.Tx) error {
		return s.archiver.ArchiveAllUserNotifications(ctx, src, dst, username)
	})
	if err != nil {
		return err
	}
	s.publishTo(ctx, []string{username}, "")
	return nil
}

// HandleOperationNotification resolves the matching config and raises either
// one batched notification or one per device, per the config's settings.
func (s *service) HandleOperationNotification(ctx context.Context, evt OperationEvent) error {
	cfg, found, err := s.resolver.ConfigForCode(ctx, evt.TenantID, evt.DeviceType, evt.Code)
	if err != nil {
		return err
	}
	if !found || !cfg.Enabled {
		return nil
	}
	if !containsFold(cfg.Settings.TriggerPoints, evt.TriggerPoint) {
		return nil
	}
	if cfg.Settings.CriticalCriteria.Enabled && !containsFold(cfg.Settings.CriticalCriteria.Statuses, evt.Status) {
		return nil
	}

	recipients, err := s.resolveRecipients(ctx, evt.TenantID, cfg.Recipients)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		s.logger.Debug().Int("tenant_id", evt.TenantID).Str("code", evt.Code).Msg("no recipients resolved, skipping notification")
		return nil
	}

	if cfg.Settings.Batch.Enabled {
		description := fmt.Sprintf("Operation %s is %s for %d device(s)", evt.Code, strings.ToLower(evt.Status), len(evt.DeviceEnrollmentIDs))
		if cfg.Settings.Batch.IncludeDeviceIDs && len(evt.DeviceEnrollmentIDs) > 0 {
			description += ": " + strings.Join(evt.DeviceEnrollmentIDs, ", ")
		}
		_, err := s.CreateNotification(ctx, evt.TenantID, cfg.ID, cfg.Type, description, recipients)
		return err
	}

	for _, deviceID := range evt.DeviceEnrollmentIDs {
		description := fmt.Sprintf("Operation %s is %s for device %s", evt.Code, strings.ToLower(evt.Status), deviceID)
		if _, err := s.CreateNotification(ctx, evt.TenantID, cfg.ID, cfg.Type, description, recipients); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) resolveRecipients(ctx context.Context, tenantID int, recipients models.Recipients) ([]string, error) {
	seen := make(map[string]bool)
	var usernames []string
	add := func(username string) {
		if username != "" && !seen[username] {
			seen[username] = true
			usernames = append(usernames, username)
		}
	}
	for _, username := range recipients.Users {
		add(strings.TrimSpace(username))
	}
	for _, role := range recipients.Roles {
		members, err := s.users.UsernamesByRole(ctx, s.live.DB(), tenantID, role)
		if err != nil {
			return nil, err
		}
		for _, username := range members {
			add(username)
		}
	}
	return usernames, nil
}

// knownUsers filters a recipient list down to usernames the directory knows;
// unknown names are logged and skipped rather than failing the fan-out.
func (s *service) knownUsers(ctx context.Context, usernames []string) ([]string, error) {
	var known []string
	for _, username := range usernames {
		exists, err := s.users.ExistsByUsername(ctx, s.live.DB(), username)
		if err != nil {
			return nil, err
		}
		if !exists {
			s.logger.Warn().Str("username", username).Msg("skipping unknown notification recipient")
			continue
		}
		known = append(known, username)
	}
	return known, nil
}

func (s *service) requireUser(ctx context.Context, username string) error {
	exists, err := s.users.ExistsByUsername(ctx, s.live.DB(), username)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownUser
	}
	return nil
}

// publishTo recomputes each user's unread count and emits a delivery event.
// Delivery failures are logged, never surfaced: the mutation has committed.
func (s *service) publishTo(ctx context.Context, usernames []string, message string) {
	for _, username := range usernames {
		count, err := s.store.UnreadCountForUser(ctx, s.live.DB(), username)
		if err != nil {
			s.logger.Warn().Err(err).Str("username", username).Msg("failed to recompute unread count")
			continue
		}
		if err := s.broker.Publish([]string{username}, broker.Event{Message: message, UnreadCount: count}); err != nil {
			s.logger.Warn().Err(err).Str("username", username).Msg("failed to publish delivery event")
		}
	}
}

// withArchiveTxs opens a transaction on both archive sides, runs fn, then
// commits destination before source. Any failure rolls back whatever is still
// open on both sides.
func (s *service) withArchiveTxs(ctx context.Context, fn func(src, dst *sqlx.Tx) error) error {
	srcTx, err := s.archive.Source.Begin(ctx)
	if err != nil {
		return err
	}
	defer srcTx.Rollback()
	dstTx, err := s.archive.Destination.Begin(ctx)
	if err != nil {
		return err
	}
	defer dstTx.Rollback()

	if err := fn(srcTx, dstTx); err != nil {
		return err
	}
	if err := dstTx.Commit(); err != nil {
		return apperr.Transaction("commit archive destination", err)
	}
	if err := srcTx.Commit(); err != nil {
		return apperr.Transaction("commit archive source", err)
	}
	return nil
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
