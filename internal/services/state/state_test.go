package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	trialUser := func(endsAt time.Time) *models.UserAccount {
		return &models.UserAccount{
			UserID:    "user_1",
			Tier:      models.TierPremium,
			IsTrial:   true,
			TrialUsed: true,
			Trial:     &models.TrialWindow{StartedAt: endsAt.Add(-7 * day), EndsAt: endsAt},
		}
	}
	paidUser := func(expiresAt time.Time) *models.UserAccount {
		return &models.UserAccount{
			UserID: "user_2",
			Tier:   models.TierPremium,
			Paid: &models.PaidPlan{
				ProductID: "premium_monthly",
				Platform:  models.PlatformIOS,
				ExpiresAt: expiresAt,
			},
		}
	}

	tests := []struct {
		name           string
		user           *models.UserAccount
		wantActive     bool
		wantTier       models.Tier
		wantTrial      bool
		wantDays       int
		wantTransition Transition
	}{
		{
			name:       "активный пробный период, 7 дней",
			user:       trialUser(now.Add(7 * day)),
			wantActive: true,
			wantTier:   models.TierPremium,
			wantTrial:  true,
			wantDays:   7,
		},
		{
			name:       "23 часа до конца дают 0 дней",
			user:       trialUser(now.Add(23 * time.Hour)),
			wantActive: true,
			wantTier:   models.TierPremium,
			wantTrial:  true,
			wantDays:   0,
		},
		{
			name:           "пробный период закончился час назад",
			user:           trialUser(now.Add(-time.Hour)),
			wantActive:     false,
			wantTier:       models.TierFree,
			wantTransition: TransitionTrialExpired,
		},
		{
			name:           "пробный период заканчивается ровно сейчас",
			user:           trialUser(now),
			wantActive:     false,
			wantTier:       models.TierFree,
			wantTransition: TransitionTrialExpired,
		},
		{
			name:       "оплаченная подписка активна",
			user:       paidUser(now.Add(30 * day)),
			wantActive: true,
			wantTier:   models.TierPremium,
			wantDays:   30,
		},
		{
			name:       "оплаченная подписка истекает ровно сейчас",
			user:       paidUser(now),
			wantActive: true,
			wantTier:   models.TierPremium,
		},
		{
			name:           "оплаченная подписка истекла",
			user:           paidUser(now.Add(-time.Minute)),
			wantActive:     false,
			wantTier:       models.TierFree,
			wantTransition: TransitionSubscriptionExpired,
		},
		{
			name:     "бесплатный пользователь",
			user:     &models.UserAccount{UserID: "user_3", Tier: models.TierFree},
			wantTier: models.TierFree,
		},
		{
			name:     "пустой уровень считается бесплатным",
			user:     &models.UserAccount{UserID: "user_4"},
			wantTier: models.TierFree,
		},
		{
			name:     "флаг пробного периода без окна",
			user:     &models.UserAccount{UserID: "user_5", Tier: models.TierPremium, IsTrial: true},
			wantTier: models.TierPremium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.user, now)

			assert.Equal(t, tt.wantActive, got.IsActive)
			assert.Equal(t, tt.wantTier, got.Tier)
			assert.Equal(t, tt.wantTrial, got.IsTrial)
			assert.Equal(t, tt.wantDays, got.DaysRemaining)
			assert.Equal(t, tt.wantTransition, got.Transition)
			assert.Equal(t, tt.wantTransition != TransitionNone, got.NeedsWriteback())
		})
	}
}

func TestEvaluate_TrialExpiredWriteback(t *testing.T) {
	now := time.Now()
	user := &models.UserAccount{
		UserID:    "user_1",
		Tier:      models.TierPremium,
		IsTrial:   true,
		TrialUsed: true,
		Trial:     &models.TrialWindow{StartedAt: now.Add(-7 * day), EndsAt: now.Add(-time.Hour)},
	}

	got := Evaluate(user, now)

	require.NotNil(t, got.Writeback)
	require.NotNil(t, got.Writeback.Tier)
	require.NotNil(t, got.Writeback.IsTrial)
	assert.Equal(t, models.TierFree, *got.Writeback.Tier)
	assert.False(t, *got.Writeback.IsTrial)
	assert.True(t, got.Writeback.ClearTrial)

	// Evaluate не меняет запись.
	assert.True(t, user.IsTrial)
	assert.Equal(t, models.TierPremium, user.Tier)
}

func TestEvaluate_Deterministic(t *testing.T) {
	now := time.Now()
	user := &models.UserAccount{
		UserID:  "user_1",
		Tier:    models.TierPremium,
		IsTrial: true,
		Trial:   &models.TrialWindow{StartedAt: now, EndsAt: now.Add(3*day + time.Hour)},
	}

	first := Evaluate(user, now)
	second := Evaluate(user, now)

	assert.Equal(t, first, second)
	assert.Equal(t, 3, first.DaysRemaining)
}

func TestFloorDays(t *testing.T) {
	assert.Equal(t, 3, FloorDays(3*day+time.Minute))
	assert.Equal(t, 0, FloorDays(23*time.Hour))
	assert.Equal(t, -1, FloorDays(-2*time.Hour))
	assert.Equal(t, -2, FloorDays(-48*time.Hour))
	assert.Equal(t, 0, WholeDays(-2*time.Hour))
}
