package authz

import (
	"context"
	"net/http"

	"github.com/notifar/notifar/internal/models"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	usernameKey  contextKey = "username"
	userRolesKey contextKey = "user_roles"
)

// WithIdentity stores tenant, username and role information on the context.
func WithIdentity(ctx context.Context, tenantID int, username string, roles []models.UserRole) context.Context {
	if tenantID > 0 {
		ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	}
	if username != "" {
		ctx = context.WithValue(ctx, usernameKey, username)
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	return context.WithValue(ctx, userRolesKey, normalized)
}

func TenantIDFromRequest(r *http.Request) (int, bool) {
	tid, ok := r.Context().Value(tenantIDKey).(int)
	if !ok || tid <= 0 {
		return 0, false
	}
	return tid, true
}

func UsernameFromRequest(r *http.Request) (string, bool) {
	username, ok := r.Context().Value(usernameKey).(string)
	if !ok || username == "" {
		return "", false
	}
	return username, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || !models.IsValidRoleList(roles) {
		return nil, false
	}
	return roles, true
}
