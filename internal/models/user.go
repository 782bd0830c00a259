package models

// UserRole is a coarse permission tier.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleOperator UserRole = "operator"
	RoleViewer   UserRole = "viewer"
)

var roleRank = map[UserRole]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// User is an account in the tenant's user directory. Usernames are unique per
// tenant and are the addressing key for notification actions and push topics.
type User struct {
	ID           int64      `json:"id" db:"id"`
	TenantID     int        `json:"tenant_id" db:"tenant_id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	Roles        []UserRole `json:"roles" db:"-"`
}

// NormalizeRoles drops unknown roles and duplicates.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]bool, len(roles))
	var out []UserRole
	for _, role := range roles {
		if _, known := roleRank[role]; !known || seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}

// EnsureDefaultRole guarantees at least the viewer role.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	if len(roles) == 0 {
		return []UserRole{RoleViewer}
	}
	return roles
}

// IsValidRoleList reports whether every role is known and the list is non-empty.
func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if _, ok := roleRank[role]; !ok {
			return false
		}
	}
	return true
}

// HighestRole returns the most privileged role in the list.
func HighestRole(roles []UserRole) UserRole {
	highest := RoleViewer
	for _, role := range roles {
		if roleRank[role] > roleRank[highest] {
			highest = role
		}
	}
	return highest
}

// HasAtLeast reports whether any role meets the required tier.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	for _, role := range roles {
		if roleRank[role] >= roleRank[required] {
			return true
		}
	}
	return false
}

// Tenant is a minimal tenant record; the archival workflow iterates tenants.
type Tenant struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
