package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/notifar/notifar/internal/archival"
	"github.com/notifar/notifar/internal/repository"
)

type Activities struct {
	Engine     *archival.Engine
	TenantRepo repository.TenantRepository
	Live       *repository.DBContext
}

// ListTenantsActivity returns the ids of every tenant in the live store.
func (a *Activities) ListTenantsActivity(ctx context.Context) ([]int, error) {
	logger := activity.GetLogger(ctx)

	ids, err := a.TenantRepo.ListTenantIDs(ctx, a.Live.DB())
	if err != nil {
		logger.Error("Failed to list tenants", "error", err)
		return nil, err
	}
	logger.Info("Listed tenants for archival", "count", len(ids))
	return ids, nil
}

// ArchiveTenantActivity runs a full archival pass for one tenant.
func (a *Activities) ArchiveTenantActivity(ctx context.Context, tenantID int) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Archiving tenant notifications", "tenantID", tenantID)

	if err := a.Engine.ArchiveTenant(ctx, tenantID); err != nil {
		logger.Error("Tenant archival failed", "tenantID", tenantID, "error", err)
		return err
	}
	return nil
}

// PurgeTenantArchiveActivity deletes archived notifications past the purge horizon.
func (a *Activities) PurgeTenantArchiveActivity(ctx context.Context, tenantID int) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Purging expired archive rows", "tenantID", tenantID)

	if err := a.Engine.PurgeExpiredArchive(ctx, tenantID); err != nil {
		logger.Error("Archive purge failed", "tenantID", tenantID, "error", err)
		return err
	}
	return nil
}
