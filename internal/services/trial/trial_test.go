package trial

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/storage"
	"github.com/magabrotheeeer/premium-service/internal/storage/storagetest"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetUser(ctx context.Context, userID string) (*models.UserAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserAccount), args.Error(1)
}

func (m *MockRepository) UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error {
	return m.Called(ctx, userID, patch).Error(0)
}

func (m *MockRepository) StartTrial(ctx context.Context, userID string, window models.TrialWindow) (bool, error) {
	args := m.Called(ctx, userID, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) InsertTrialLog(ctx context.Context, e models.TrialLogEntry) error {
	return m.Called(ctx, e).Error(0)
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository, now time.Time) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, log, nil, 7).WithClock(func() time.Time { return now })
}

func freeUser(id string) models.UserAccount {
	return models.UserAccount{UserID: id, Email: id + "@example.com", Tier: models.TierFree, CreatedAt: fixedNow}
}

func TestStartTrial(t *testing.T) {
	tests := []struct {
		name      string
		user      models.UserAccount
		requester string
		wantErr   error
	}{
		{
			name:      "новый пользователь",
			user:      freeUser("user_1"),
			requester: "user_1",
		},
		{
			name:      "чужой идентификатор",
			user:      freeUser("user_1"),
			requester: "user_2",
			wantErr:   services.ErrForbidden,
		},
		{
			name: "пробный период уже использован",
			user: models.UserAccount{
				UserID: "user_1", Tier: models.TierFree, TrialUsed: true,
			},
			requester: "user_1",
			wantErr:   ErrTrialAlreadyUsed,
		},
		{
			name: "активная оплаченная подписка",
			user: models.UserAccount{
				UserID: "user_1",
				Tier:   models.TierPremium,
				Paid:   &models.PaidPlan{ProductID: "premium_monthly", ExpiresAt: fixedNow.AddDate(0, 0, 10)},
			},
			requester: "user_1",
			wantErr:   ErrAlreadyPremium,
		},
		{
			name: "истёкшая оплаченная подписка",
			user: models.UserAccount{
				UserID: "user_1",
				Tier:   models.TierPremium,
				Paid:   &models.PaidPlan{ProductID: "premium_monthly", ExpiresAt: fixedNow.AddDate(0, 0, -1)},
			},
			requester: "user_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storagetest.NewMemory()
			store.PutUser(tt.user)
			svc := newTestService(store, fixedNow)

			grant, err := svc.StartTrial(context.Background(), tt.user.UserID, tt.requester)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, grant)
				assert.Empty(t, store.TrialLogs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fixedNow, grant.StartedAt)
			assert.Equal(t, fixedNow.AddDate(0, 0, 7), grant.EndsAt)
			assert.Equal(t, 7, grant.DaysRemaining)

			saved := store.User(tt.user.UserID)
			require.NotNil(t, saved)
			assert.True(t, saved.IsTrial)
			assert.True(t, saved.TrialUsed)
			assert.Equal(t, models.TierPremium, saved.Tier)
			require.Len(t, store.TrialLogs, 1)
			assert.Equal(t, 7, store.TrialLogs[0].DurationDays)
			assert.NotEmpty(t, store.TrialLogs[0].ID)
		})
	}
}

func TestStartTrial_UnknownUser(t *testing.T) {
	svc := newTestService(storagetest.NewMemory(), fixedNow)

	_, err := svc.StartTrial(context.Background(), "ghost", "ghost")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStartTrial_OnlyOnce(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutUser(freeUser("user_1"))
	ctx := context.Background()

	_, err := newTestService(store, fixedNow).StartTrial(ctx, "user_1", "user_1")
	require.NoError(t, err)

	// пробный период истёк, пользователь снова бесплатный
	later := fixedNow.AddDate(0, 0, 8)
	status, err := newTestService(store, later).GetStatus(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, status.IsTrial)
	assert.True(t, status.TrialUsed)
	assert.False(t, status.CanStartTrial)

	_, err = newTestService(store, later).StartTrial(ctx, "user_1", "user_1")
	require.ErrorIs(t, err, ErrTrialAlreadyUsed)
	assert.True(t, store.User("user_1").TrialUsed)
	assert.Len(t, store.TrialLogs, 1)
}

func TestStartTrial_Concurrent(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutUser(freeUser("user_1"))
	svc := newTestService(store, fixedNow)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartTrial(context.Background(), "user_1", "user_1")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrTrialAlreadyUsed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, store.TrialLogs, 1)
}

func TestStartTrial_LostRace(t *testing.T) {
	repo := new(MockRepository)
	user := freeUser("user_1")
	repo.On("GetUser", mock.Anything, "user_1").Return(&user, nil)
	repo.On("StartTrial", mock.Anything, "user_1", mock.AnythingOfType("models.TrialWindow")).Return(false, nil)

	_, err := newTestService(repo, fixedNow).StartTrial(context.Background(), "user_1", "user_1")

	require.ErrorIs(t, err, ErrTrialAlreadyUsed)
	repo.AssertNotCalled(t, "InsertTrialLog", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestStartTrial_TrialLogFailureIgnored(t *testing.T) {
	repo := new(MockRepository)
	user := freeUser("user_1")
	repo.On("GetUser", mock.Anything, "user_1").Return(&user, nil)
	repo.On("StartTrial", mock.Anything, "user_1", mock.AnythingOfType("models.TrialWindow")).Return(true, nil)
	repo.On("InsertTrialLog", mock.Anything, mock.AnythingOfType("models.TrialLogEntry")).Return(errors.New("db down"))

	grant, err := newTestService(repo, fixedNow).StartTrial(context.Background(), "user_1", "user_1")

	require.NoError(t, err)
	assert.Equal(t, 7, grant.DaysRemaining)
	repo.AssertExpectations(t)
}

func TestGetStatus_AfterStart(t *testing.T) {
	store := storagetest.NewMemory()
	store.PutUser(freeUser("user_1"))
	svc := newTestService(store, fixedNow)
	ctx := context.Background()

	_, err := svc.StartTrial(ctx, "user_1", "user_1")
	require.NoError(t, err)

	status, err := svc.GetStatus(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, status.IsTrial)
	assert.True(t, status.TrialUsed)
	assert.Equal(t, 7, status.DaysRemaining)
	assert.False(t, status.CanStartTrial)
	require.NotNil(t, status.TrialEndsAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7), *status.TrialEndsAt)
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name          string
		user          models.UserAccount
		wantTrial     bool
		wantDays      int
		wantCanStart  bool
		wantWriteback bool
	}{
		{
			name:         "бесплатный пользователь",
			user:         freeUser("user_1"),
			wantCanStart: true,
		},
		{
			name: "идёт пробный период",
			user: models.UserAccount{
				UserID: "user_1", Tier: models.TierPremium, IsTrial: true, TrialUsed: true,
				Trial: &models.TrialWindow{StartedAt: fixedNow.AddDate(0, 0, -4), EndsAt: fixedNow.Add(50 * time.Hour)},
			},
			wantTrial: true,
			wantDays:  2,
		},
		{
			name: "пробный период истёк",
			user: models.UserAccount{
				UserID: "user_1", Tier: models.TierPremium, IsTrial: true, TrialUsed: true,
				Trial: &models.TrialWindow{StartedAt: fixedNow.AddDate(0, 0, -8), EndsAt: fixedNow.Add(-time.Hour)},
			},
			wantWriteback: true,
		},
		{
			name: "оплаченная подписка",
			user: models.UserAccount{
				UserID: "user_1", Tier: models.TierPremium,
				Paid: &models.PaidPlan{ExpiresAt: fixedNow.AddDate(0, 1, 0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storagetest.NewMemory()
			store.PutUser(tt.user)

			status, err := newTestService(store, fixedNow).GetStatus(context.Background(), "user_1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTrial, status.IsTrial)
			assert.Equal(t, tt.wantDays, status.DaysRemaining)
			assert.Equal(t, tt.wantCanStart, status.CanStartTrial)
			if !tt.wantTrial {
				assert.Nil(t, status.TrialEndsAt)
			}

			saved := store.User("user_1")
			if tt.wantWriteback {
				assert.Equal(t, models.TierFree, saved.Tier)
				assert.False(t, saved.IsTrial)
				assert.Nil(t, saved.Trial)
				assert.True(t, saved.TrialUsed)
			}
		})
	}
}

func TestGetStatus_WritebackError(t *testing.T) {
	repo := new(MockRepository)
	user := models.UserAccount{
		UserID: "user_1", Tier: models.TierPremium, IsTrial: true, TrialUsed: true,
		Trial: &models.TrialWindow{EndsAt: fixedNow.Add(-time.Minute)},
	}
	repo.On("GetUser", mock.Anything, "user_1").Return(&user, nil)
	repo.On("UpdateUser", mock.Anything, "user_1", mock.AnythingOfType("models.AccountPatch")).Return(errors.New("db down"))

	_, err := newTestService(repo, fixedNow).GetStatus(context.Background(), "user_1")

	require.Error(t, err)
	repo.AssertExpectations(t)
}
