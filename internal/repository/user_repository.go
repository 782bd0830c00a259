package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/notifar/notifar/internal/apperr"
	"github.com/notifar/notifar/internal/dialect"
	"github.com/notifar/notifar/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository is the tenant user directory. Besides account CRUD it serves
// the two collaborator roles the notification core depends on: existence
// checks for addressed usernames and role-to-username resolution for
// task-notification recipients.
type UserRepository interface {
	CreateUser(ctx context.Context, ext sqlx.ExtContext, tenantID int, username, email, password string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(ctx context.Context, ext sqlx.ExtContext, username, password string) (models.User, error)
	GetUserByUsername(ctx context.Context, ext sqlx.ExtContext, username string) (models.User, error)
	ExistsByUsername(ctx context.Context, ext sqlx.ExtContext, username string) (bool, error)
	UsernamesByRole(ctx context.Context, ext sqlx.ExtContext, tenantID int, role string) ([]string, error)
}

type userRepository struct {
	dialect dialect.Dialect
}

func NewUserRepository(d dialect.Dialect) UserRepository {
	return &userRepository{dialect: d}
}

type userRow struct {
	ID           int64  `db:"id"`
	TenantID     int    `db:"tenant_id"`
	Username     string `db:"username"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	IsActive     bool   `db:"is_active"`
	Roles        string `db:"roles"`
}

func (row userRow) toUser() models.User {
	var roles []models.UserRole
	for _, raw := range strings.Split(row.Roles, ",") {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			roles = append(roles, models.UserRole(trimmed))
		}
	}
	return models.User{
		ID:           row.ID,
		TenantID:     row.TenantID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		IsActive:     row.IsActive,
		Roles:        models.EnsureDefaultRole(models.NormalizeRoles(roles)),
	}
}

func rolesColumn(roles []models.UserRole) string {
	parts := make([]string, 0, len(roles))
	for _, role := range roles {
		parts = append(parts, string(role))
	}
	return strings.Join(parts, ",")
}

func (u *userRepository) CreateUser(ctx context.Context, ext sqlx.ExtContext, tenantID int, username, email, password string, roles []models.UserRole) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return models.User{}, apperr.ConfigInvalidf("username is required")
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return models.User{}, apperr.ConfigInvalidf("invalid roles")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, apperr.Store("hash password", err)
	}

	user := models.User{
		TenantID:     tenantID,
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		Roles:        normalized,
	}
	const query = `
		INSERT INTO users (tenant_id, username, email, password_hash, is_active, roles)
		VALUES (?, ?, ?, ?, ?, ?)`
	id, err := u.dialect.InsertWithID(ctx, ext, query, "id",
		tenantID, username, email, user.PasswordHash, u.dialect.Bool(true), rolesColumn(normalized))
	if err != nil {
		return models.User{}, apperr.Store("create user", err)
	}
	user.ID = id
	return user, nil
}

func (u *userRepository) AuthenticateUser(ctx context.Context, ext sqlx.ExtContext, username, password string) (models.User, error) {
	user, err := u.GetUserByUsername(ctx, ext, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (u *userRepository) GetUserByUsername(ctx context.Context, ext sqlx.ExtContext, username string) (models.User, error) {
	const query = `
		SELECT id, tenant_id, username, email, password_hash, is_active, roles
		FROM users
		WHERE username = ?`
	var row userRow
	if err := sqlx.GetContext(ctx, ext, &row, u.dialect.Rebind(query), strings.TrimSpace(username)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, err
		}
		return models.User{}, apperr.Store("get user by username", err)
	}
	return row.toUser(), nil
}

func (u *userRepository) ExistsByUsername(ctx context.Context, ext sqlx.ExtContext, username string) (bool, error) {
	const query = "SELECT COUNT(*) FROM users WHERE username = ? AND is_active = ?"
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, u.dialect.Rebind(query), strings.TrimSpace(username), u.dialect.Bool(true)); err != nil {
		return false, apperr.Store("user exists", err)
	}
	return count > 0, nil
}

// UsernamesByRole loads the tenant's active users and filters by role in
// memory; role membership is stored denormalized and directories are small.
func (u *userRepository) UsernamesByRole(ctx context.Context, ext sqlx.ExtContext, tenantID int, role string) ([]string, error) {
	const query = `
		SELECT id, tenant_id, username, email, password_hash, is_active, roles
		FROM users
		WHERE tenant_id = ? AND is_active = ?
		ORDER BY username`
	var rows []userRow
	if err := sqlx.SelectContext(ctx, ext, &rows, u.dialect.Rebind(query), tenantID, u.dialect.Bool(true)); err != nil {
		return nil, apperr.Store("usernames by role", err)
	}
	var usernames []string
	want := models.UserRole(strings.TrimSpace(role))
	for _, row := range rows {
		for _, r := range row.toUser().Roles {
			if r == want {
				usernames = append(usernames, row.Username)
				break
			}
		}
	}
	return usernames, nil
}
