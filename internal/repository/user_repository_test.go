package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifar/notifar/internal/models"
)

func TestCreateAndAuthenticateUser(t *testing.T) {
	db := newLiveDB(t)
	repo := NewUserRepository(db.Dialect())
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, db.DB(), 1, "alice", "alice@example.com", "s3cret", []models.UserRole{models.RoleAdmin})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, []models.UserRole{models.RoleAdmin}, created.Roles)

	user, err := repo.AuthenticateUser(ctx, db.DB(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = repo.AuthenticateUser(ctx, db.DB(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.AuthenticateUser(ctx, db.DB(), "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateUserDefaultsRole(t *testing.T) {
	db := newLiveDB(t)
	repo := NewUserRepository(db.Dialect())

	created, err := repo.CreateUser(context.Background(), db.DB(), 1, "bob", "", "pw", nil)
	require.NoError(t, err)
	assert.Equal(t, []models.UserRole{models.RoleViewer}, created.Roles)
}

func TestExistsByUsername(t *testing.T) {
	db := newLiveDB(t)
	repo := NewUserRepository(db.Dialect())
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, db.DB(), 1, "alice", "", "pw", nil)
	require.NoError(t, err)

	exists, err := repo.ExistsByUsername(ctx, db.DB(), "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, db.DB(), "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsernamesByRole(t *testing.T) {
	db := newLiveDB(t)
	repo := NewUserRepository(db.Dialect())
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, db.DB(), 1, "alice", "", "pw", []models.UserRole{models.RoleAdmin, models.RoleOperator})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, db.DB(), 1, "bob", "", "pw", []models.UserRole{models.RoleOperator})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, db.DB(), 1, "carol", "", "pw", []models.UserRole{models.RoleViewer})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, db.DB(), 2, "dave", "", "pw", []models.UserRole{models.RoleOperator})
	require.NoError(t, err)

	operators, err := repo.UsernamesByRole(ctx, db.DB(), 1, "operator")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, operators)

	admins, err := repo.UsernamesByRole(ctx, db.DB(), 1, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, admins)
}
