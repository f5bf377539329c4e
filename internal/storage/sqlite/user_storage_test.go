package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/interfaces"
)

func TestUserStorage_CreateAndVerify(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserStorage(db, arbor.NewLogger())
	ctx := context.Background()

	created, err := users.CreateUser(ctx, "operator", "s3cret")
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))
	assert.Equal(t, "operator", created.Username)

	ok, err := users.VerifyPassword(ctx, "operator", "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong password is a clean false, not an error
	ok, err = users.VerifyPassword(ctx, "operator", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown user likewise
	ok, err = users.VerifyPassword(ctx, "nobody", "s3cret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserStorage_CreateRequiresCredentials(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "", "pass")
	assert.Error(t, err)

	_, err = users.CreateUser(ctx, "user", "")
	assert.Error(t, err)
}

func TestUserStorage_DisabledAccountNeverVerifies(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "leaver", "s3cret")
	require.NoError(t, err)

	require.NoError(t, users.DisableUser(ctx, "leaver"))

	ok, err := users.VerifyPassword(ctx, "leaver", "s3cret")
	require.NoError(t, err)
	assert.False(t, ok, "disabled accounts must not authenticate")

	fetched, err := users.GetUser(ctx, "leaver")
	require.NoError(t, err)
	assert.True(t, fetched.Disabled)

	err = users.DisableUser(ctx, "ghost")
	assert.ErrorIs(t, err, interfaces.ErrUserNotFound)
}

func TestUserStorage_TouchLogin(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "operator", "s3cret")
	require.NoError(t, err)

	before, err := users.GetUser(ctx, "operator")
	require.NoError(t, err)
	assert.Nil(t, before.LastLogin)

	require.NoError(t, users.TouchLogin(ctx, "operator"))

	after, err := users.GetUser(ctx, "operator")
	require.NoError(t, err)
	require.NotNil(t, after.LastLogin)
}

func TestUserStorage_ListUsers(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	users := NewUserStorage(db, arbor.NewLogger())
	ctx := context.Background()

	_, err := users.CreateUser(ctx, "first", "pass1")
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, "second", "pass2")
	require.NoError(t, err)

	all, err := users.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Username)
	assert.Equal(t, "second", all[1].Username)
}
