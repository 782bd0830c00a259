package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/notifar/notifar/internal/temporal"
	"github.com/notifar/notifar/internal/temporal/activities"
)

// ArchivalWorkflow archives aged notifications for every tenant. Failing
// tenants are logged and skipped so one bad tenant cannot stall the rest.
func ArchivalWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting notification archival workflow")

	// The actual implementation is on the worker; this is just a proxy.
	var a *activities.Activities

	var tenantIDs []int
	if err := workflow.ExecuteActivity(ctx, a.ListTenantsActivity).Get(ctx, &tenantIDs); err != nil {
		logger.Error("Failed to list tenants.", "error", err)
		return err
	}

	failed := 0
	for _, tenantID := range tenantIDs {
		if err := workflow.ExecuteActivity(ctx, a.ArchiveTenantActivity, tenantID).Get(ctx, nil); err != nil {
			logger.Error("Tenant archival failed, continuing with remaining tenants.", "tenantID", tenantID, "error", err)
			failed++
		}
	}

	logger.Info("Notification archival workflow completed.", "tenants", len(tenantIDs), "failed", failed)
	return nil
}

// PurgeArchiveWorkflow deletes archived notifications older than the purge
// horizon for every tenant.
func PurgeArchiveWorkflow(ctx workflow.Context) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting archive purge workflow")

	var a *activities.Activities

	var tenantIDs []int
	if err := workflow.ExecuteActivity(ctx, a.ListTenantsActivity).Get(ctx, &tenantIDs); err != nil {
		logger.Error("Failed to list tenants.", "error", err)
		return err
	}

	failed := 0
	for _, tenantID := range tenantIDs {
		if err := workflow.ExecuteActivity(ctx, a.PurgeTenantArchiveActivity, tenantID).Get(ctx, nil); err != nil {
			logger.Error("Tenant purge failed, continuing with remaining tenants.", "tenantID", tenantID, "error", err)
			failed++
		}
	}

	logger.Info("Archive purge workflow completed.", "tenants", len(tenantIDs), "failed", failed)
	return nil
}
