// Package archival orchestrates the scheduled migration of aged notifications
// from the live store to the archive store, and the eventual pruning of the
// archive itself.
package archival

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/models"
	"github.com/notifar/notifar/internal/policy"
	"github.com/notifar/notifar/internal/repository"
)

// DefaultPurgeHorizon is how long archived rows are kept before hard deletion
// when no horizon is configured.
var DefaultPurgeHorizon = models.ArchivePeriod{Value: 1, Unit: models.ArchiveUnitYears}

type Engine struct {
	contexts     repository.ArchiveContexts
	archiver     repository.ArchiveRepository
	resolver     *policy.Resolver
	purgeHorizon models.ArchivePeriod
	logger       zerolog.Logger
}

func NewEngine(contexts repository.ArchiveContexts, archiver repository.ArchiveRepository, resolver *policy.Resolver, purgeHorizon models.ArchivePeriod, logger zerolog.Logger) *Engine {
	if !purgeHorizon.Valid() {
		purgeHorizon = DefaultPurgeHorizon
	}
	return &Engine{
		contexts:     contexts,
		archiver:     archiver,
		resolver:     resolver,
		purgeHorizon: purgeHorizon,
		logger:       logger.With().Str("component", "archival_engine").Logger(),
	}
}

// ArchiveTenant runs one archival pass for a tenant: configs with an explicit
// archive policy first, then everything else under the tenant-wide default,
// excluding the configs already handled. The source and destination commit
// independently; destination commits first so a crash between the two leaves
// rows present in both stores rather than lost.
func (e *Engine) ArchiveTenant(ctx context.Context, tenantID int) error {
	list, err := e.resolver.Configurations(ctx, tenantID)
	if err != nil {
		return apperr.Archival(tenantID, "load configuration", err)
	}
	if list.Version == 0 && len(list.Configs) == 0 {
		e.logger.Info().Int("tenant_id", tenantID).Msg("no notification configuration stored, skipping archival run")
		return nil
	}

	srcTx, err := e.contexts.Source.Begin(ctx)
	if err != nil {
		return apperr.Archival(tenantID, "begin source transaction", err)
	}
	defer srcTx.Rollback()
	dstTx, err := e.contexts.Destination.Begin(ctx)
	if err != nil {
		return apperr.Archival(tenantID, "begin destination transaction", err)
	}
	defer dstTx.Rollback()

	defaultCutoff, err := e.resolver.CutoffTimestamp(*list.DefaultArchiveAfter)
	if err != nil {
		return apperr.Archival(tenantID, "resolve default cutoff", err)
	}

	var handledConfigIDs []int
	for _, cfg := range list.Configs {
		if cfg.Settings.ArchiveType != models.ArchiveTypeDefault {
			continue
		}
		cutoff := defaultCutoff
		if cfg.Settings.ArchiveAfter != nil {
			if own, err := e.resolver.CutoffTimestamp(*cfg.Settings.ArchiveAfter); err == nil {
				cutoff = own
			} else {
				e.logger.Warn().Err(err).Int("tenant_id", tenantID).Int("config_id", cfg.ID).
					Msg("invalid archive period on config, falling back to tenant default")
			}
		}

		step := fmt.Sprintf("archive config %d", cfg.ID)
		ids, err := e.archiver.MoveNotificationsToArchiveByConfig(ctx, srcTx, dstTx, cutoff, tenantID, cfg.ID)
		if err != nil {
			return apperr.Archival(tenantID, step, err)
		}
		if err := e.archiver.MoveUserActionsToArchive(ctx, srcTx, dstTx, ids); err != nil {
			return apperr.Archival(tenantID, step, err)
		}
		if _, err := e.archiver.DeleteOldNotificationsByConfig(ctx, srcTx, cutoff, tenantID, cfg.ID); err != nil {
			return apperr.Archival(tenantID, step, err)
		}
		handledConfigIDs = append(handledConfigIDs, cfg.ID)
		e.logger.Debug().Int("tenant_id", tenantID).Int("config_id", cfg.ID).Int("moved", len(ids)).Msg("archived notifications for config")
	}

	if list.DefaultArchiveType == models.ArchiveTypeDefault {
		const step = "archive default configs"
		ids, err := e.archiver.MoveNotificationsToArchiveExcludingConfigs(ctx, srcTx, dstTx, defaultCutoff, tenantID, handledConfigIDs)
		if err != nil {
			return apperr.Archival(tenantID, step, err)
		}
		if err := e.archiver.MoveUserActionsToArchive(ctx, srcTx, dstTx, ids); err != nil {
			return apperr.Archival(tenantID, step, err)
		}
		if _, err := e.archiver.DeleteOldNotificationsExcludingConfigs(ctx, srcTx, defaultCutoff, tenantID, handledConfigIDs); err != nil {
			return apperr.Archival(tenantID, step, err)
		}
		e.logger.Debug().Int("tenant_id", tenantID).Int("moved", len(ids)).Msg("archived notifications under default policy")
	}

	if err := dstTx.Commit(); err != nil {
		return apperr.Archival(tenantID, "commit destination", err)
	}
	if err := srcTx.Commit(); err != nil {
		return apperr.Archival(tenantID, "commit source", err)
	}
	e.logger.Info().Int("tenant_id", tenantID).Int("explicit_configs", len(handledConfigIDs)).Msg("archival run complete")
	return nil
}

// PurgeExpiredArchive deletes archived rows past the hard deletion horizon.
// It touches only the destination context.
func (e *Engine) PurgeExpiredArchive(ctx context.Context, tenantID int) error {
	cutoff, err := e.resolver.CutoffTimestamp(e.purgeHorizon)
	if err != nil {
		return apperr.Archival(tenantID, "resolve purge cutoff", err)
	}
	dstTx, err := e.contexts.Destination.Begin(ctx)
	if err != nil {
		return apperr.Archival(tenantID, "begin purge transaction", err)
	}
	defer dstTx.Rollback()
	if err := e.archiver.DeleteExpiredArchivedNotifications(ctx, dstTx, cutoff, tenantID); err != nil {
		return apperr.Archival(tenantID, "purge expired archive", err)
	}
	if err := dstTx.Commit(); err != nil {
		return apperr.Archival(tenantID, "commit purge", err)
	}
	e.logger.Info().Int("tenant_id", tenantID).Time("cutoff", cutoff).Msg("archive purge complete")
	return nil
}
