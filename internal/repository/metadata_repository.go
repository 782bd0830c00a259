package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
)

// Metadata is one tenant-scoped key/value document. Version increments on
// every update and guards read-modify-write cycles.
type Metadata struct {
	TenantID int    `db:"tenant_id"`
	Key      string `db:"meta_key"`
	Value    string `db:"meta_value"`
	Version  int    `db:"version"`
}

// MetadataRepository is the generic tenant metadata store backing the policy
// resolver.
type MetadataRepository interface {
	Retrieve(ctx context.Context, ext sqlx.ExtContext, tenantID int, key string) (Metadata, bool, error)
	Create(ctx context.Context, ext sqlx.ExtContext, tenantID int, key, value string) error
	// Update persists a new value only if the stored version still matches
	// expectedVersion; a mismatch surfaces a config-conflict error.
	Update(ctx context.Context, ext sqlx.ExtContext, tenantID int, key, value string, expectedVersion int) error
	ClearValue(ctx context.Context, ext sqlx.ExtContext, tenantID int, key string) error
}

type metadataRepository struct {
	dialect dialect.Dialect
}

func NewMetadataRepository(d dialect.Dialect) MetadataRepository {
	return &metadataRepository{dialect: d}
}

func (r *metadataRepository) Retrieve(ctx context.Context, ext sqlx.ExtContext, tenantID int, key string) (Metadata, bool, error) {
	const query = "SELECT tenant_id, meta_key, meta_value, version FROM tenant_metadata WHERE tenant_id = ? AND meta_key = ?"
	var meta Metadata
	err := sqlx.GetContext(ctx, ext, &meta, r.dialect.Rebind(query), tenantID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, apperr.Store("retrieve metadata", err)
	}
	return meta, true, nil
}

func (r *metadataRepository) Create(ctx context.Context, ext sqlx.ExtContext, tenantID int, key, value string) error {
	const query = "INSERT INTO tenant_metadata (tenant_id, meta_key, meta_value, version) VALUES (?, ?, ?, 1)"
	if _, err := ext.ExecContext(ctx, r.dialect.Rebind(query), tenantID, key, value); err != nil {
		return apperr.Store("create metadata", err)
	}
	return nil
}

func (r *metadataRepository) Update(ctx context.Context, ext sqlx.ExtContext, tenantID int, key, value string, expectedVersion int) error {
	const query = `
		UPDATE tenant_metadata SET meta_value = ?, version = version + 1
		WHERE tenant_id = ? AND meta_key = ? AND version = ?`
	res, err := ext.ExecContext(ctx, r.dialect.Rebind(query), value, tenantID, key, expectedVersion)
	if err != nil {
		return apperr.Store("update metadata", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperr.Store("update metadata", err)
	}
	if affected == 0 {
		return apperr.ConfigConflict("metadata document was modified concurrently")
	}
	return nil
}

func (r *metadataRepository) ClearValue(ctx context.Context, ext sqlx.ExtContext, tenantID int, key string) error {
	const query = "UPDATE tenant_metadata SET meta_value = '', version = version + 1 WHERE tenant_id = ? AND meta_key = ?"
	if _, err := ext.ExecContext(ctx, r.dialect.Rebind(query), tenantID, key); err != nil {
		return apperr.Store("clear metadata value", err)
	}
	return nil
}
