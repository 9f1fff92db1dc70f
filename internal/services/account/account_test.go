package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/premium-service/internal/cache"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage/storagetest"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateUser(ctx context.Context, user models.UserAccount) (bool, error) {
	args := m.Called(ctx, user)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	return &cache.Cache{Db: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, mr
}

func TestEnsure_CreatesFreeAccount(t *testing.T) {
	store := storagetest.NewMemory()
	c, _ := newTestCache(t)
	svc := NewService(store, c, newNoopLogger(), time.Hour)

	require.NoError(t, svc.Ensure(context.Background(), "user_1", "user_1@example.com"))

	user := store.User("user_1")
	require.NotNil(t, user)
	assert.Equal(t, models.TierFree, user.Tier)
	assert.False(t, user.TrialUsed)
	assert.False(t, user.IsTrial)
	assert.Equal(t, "user_1@example.com", user.Email)
}

func TestEnsure_KeepsExistingAccount(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutUser(models.UserAccount{UserID: "user_1", Tier: models.TierPremium, TrialUsed: true})
	c, _ := newTestCache(t)

	require.NoError(t, NewService(store, c, newNoopLogger(), time.Hour).Ensure(context.Background(), "user_1", "new@example.com"))

	user := store.User("user_1")
	assert.Equal(t, models.TierPremium, user.Tier)
	assert.True(t, user.TrialUsed)
}

func TestEnsure_MemoSkipsStore(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CreateUser", mock.Anything, mock.AnythingOfType("models.UserAccount")).Return(true, nil).Once()
	c, mr := newTestCache(t)
	svc := NewService(repo, c, newNoopLogger(), time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Ensure(ctx, "user_1", "a@example.com"))
	require.NoError(t, svc.Ensure(ctx, "user_1", "a@example.com"))
	repo.AssertNumberOfCalls(t, "CreateUser", 1)

	mr.FastForward(2 * time.Hour)
	repo.On("CreateUser", mock.Anything, mock.AnythingOfType("models.UserAccount")).Return(false, nil).Once()
	require.NoError(t, svc.Ensure(ctx, "user_1", "a@example.com"))
	repo.AssertNumberOfCalls(t, "CreateUser", 2)
}

func TestEnsure_StoreError(t *testing.T) {
	repo := new(MockRepository)
	repo.On("CreateUser", mock.Anything, mock.Anything).Return(false, errors.New("db down"))
	c, mr := newTestCache(t)

	err := NewService(repo, c, newNoopLogger(), time.Hour).Ensure(context.Background(), "user_1", "a@example.com")

	require.Error(t, err)
	assert.False(t, mr.Exists(memoKey("user_1")))
}

func TestEnsure_CacheDown(t *testing.T) {
	store := storagetest.NewMemory()
	c, mr := newTestCache(t)
	mr.SetError("server down")

	require.NoError(t, NewService(store, c, newNoopLogger(), time.Hour).Ensure(context.Background(), "user_1", "a@example.com"))
	assert.NotNil(t, store.User("user_1"))
}
