package fixtures

import (
	"context"
	"testing"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSeedUsers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()

	ids, err := seedUsers(ctx, store, "demo-password", bcrypt.MinCost)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for _, demo := range GetDemoUsers() {
		u, err := store.GetByEmail(ctx, demo.Email)
		require.NoError(t, err)
		assert.Equal(t, ids[demo.Email], u.ID)
		assert.Equal(t, demo.Role, u.Role)
		assert.True(t, u.Validated)
		require.NotNil(t, u.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte("demo-password")))
	}

	admins, err := store.ListByRole(ctx, user.Admin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}

func TestSeedUsers_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()

	first, err := seedUsers(ctx, store, "demo-password", bcrypt.MinCost)
	require.NoError(t, err)
	second, err := seedUsers(ctx, store, "other-password", bcrypt.MinCost)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	u, err := store.GetByEmail(ctx, "admin@training-center.local")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte("demo-password")))
}

func TestSeedUsers_EmptyPassword(t *testing.T) {
	_, err := SeedUsers(context.Background(), memory.NewUserStore(), "")
	assert.Error(t, err)
}
