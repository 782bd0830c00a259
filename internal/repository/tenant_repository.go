package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
)

type TenantRepository interface {
	CreateTenant(ctx context.Context, ext sqlx.ExtContext, name string) (models.Tenant, error)
	GetTenantByID(ctx context.Context, ext sqlx.ExtContext, id int) (models.Tenant, error)
	// ListTenantIDs feeds the scheduled archival run.
	ListTenantIDs(ctx context.Context, ext sqlx.ExtContext) ([]int, error)
}

type tenantRepository struct {
	dialect dialect.Dialect
}

func NewTenantRepository(d dialect.Dialect) TenantRepository {
	return &tenantRepository{dialect: d}
}

func (r *tenantRepository) CreateTenant(ctx context.Context, ext sqlx.ExtContext, name string) (models.Tenant, error) {
	const query = "INSERT INTO tenants (name) VALUES (?)"
	id, err := r.dialect.InsertWithID(ctx, ext, query, "id", name)
	if err != nil {
		return models.Tenant{}, apperr.Store("create tenant", err)
	}
	return models.Tenant{ID: int(id), Name: name}, nil
}

func (r *tenantRepository) GetTenantByID(ctx context.Context, ext sqlx.ExtContext, id int) (models.Tenant, error) {
	const query = "SELECT id, name FROM tenants WHERE id = ?"
	var tenant models.Tenant
	if err := sqlx.GetContext(ctx, ext, &tenant, r.dialect.Rebind(query), id); err != nil {
		return models.Tenant{}, apperr.Store("get tenant", err)
	}
	return tenant, nil
}

func (r *tenantRepository) ListTenantIDs(ctx context.Context, ext sqlx.ExtContext) ([]int, error) {
	const query = "SELECT id FROM tenants ORDER BY id"
	var ids []int
	if err := sqlx.SelectContext(ctx, ext, &ids, r.dialect.Rebind(query)); err != nil {
		return nil, apperr.Store("list tenants", err)
	}
	return ids, nil
}
