package postgresql

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/premium-service/internal/migrations"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// setupTestStorage поднимает PostgreSQL в контейнере и накатывает миграции.
func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(s.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, s))

	return s
}

func newUser(t *testing.T, s *Storage, userID string) {
	t.Helper()
	created, err := s.CreateUser(context.Background(), models.UserAccount{
		UserID:    userID,
		Email:     userID + "@example.com",
		Tier:      models.TierFree,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestStorage_Users(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	newUser(t, s, "u1")

	created, err := s.CreateUser(ctx, models.UserAccount{UserID: "u1", Tier: models.TierFree, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, created, "повторное создание не должно перезаписывать запись")

	_, err = s.GetUser(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	window := models.TrialWindow{StartedAt: start, EndsAt: start.Add(7 * 24 * time.Hour)}

	ok, err := s.StartTrial(ctx, "u1", window)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.StartTrial(ctx, "u1", window)
	require.NoError(t, err)
	assert.False(t, ok, "пробный период запускается только один раз")

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, u.Tier)
	assert.True(t, u.IsTrial)
	assert.True(t, u.TrialUsed)
	require.NotNil(t, u.Trial)
	assert.True(t, window.EndsAt.Equal(u.Trial.EndsAt))

	trialUsers, err := s.ListTrialUsers(ctx)
	require.NoError(t, err)
	require.Len(t, trialUsers, 1)

	err = s.UpdateUser(ctx, "u1", models.AccountPatch{
		Tier:       models.Ptr(models.TierFree),
		IsTrial:    models.Ptr(false),
		ClearTrial: true,
	})
	require.NoError(t, err)

	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, u.Tier)
	assert.False(t, u.IsTrial)
	assert.True(t, u.TrialUsed)
	assert.Nil(t, u.Trial)

	err = s.UpdateUser(ctx, "missing", models.AccountPatch{IsTrial: models.Ptr(false)})
	require.ErrorIs(t, err, storage.ErrUserNotFound)

	total, premium, trial, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(0), premium)
	assert.Equal(t, int64(0), trial)
}

func TestStorage_Purchases(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	newUser(t, s, "u1")

	p := models.PurchaseRecord{
		UserID:             "u1",
		Platform:           models.PlatformIOS,
		ProductID:          "premium_monthly",
		TransactionID:      "tx-1",
		ReceiptData:        "receipt",
		Verified:           true,
		VerificationStatus: models.VerificationPending,
		CreatedAt:          now,
		VerifiedAt:         now,
	}
	expires := now.Add(30 * 24 * time.Hour)
	patch := models.AccountPatch{
		Tier:    models.Ptr(models.TierPremium),
		IsTrial: models.Ptr(false),
		Paid: &models.PaidPlan{
			ProductID: "premium_monthly", Platform: models.PlatformIOS, ExpiresAt: expires, AutoRenewing: true,
		},
	}
	sub := models.SubscriptionSummary{
		UserID:        "u1",
		ProductID:     "premium_monthly",
		Platform:      models.PlatformIOS,
		TransactionID: "tx-1",
		IsActive:      true,
		ExpiresAt:     expires,
		AutoRenewing:  true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	inserted, err := s.RecordPurchase(ctx, p, patch, sub)
	require.NoError(t, err)
	require.True(t, inserted)

	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, user.Tier)
	require.NotNil(t, user.Paid)
	assert.True(t, user.Paid.ExpiresAt.Equal(expires))

	inserted, err = s.RecordPurchase(ctx, p, patch, sub)
	require.NoError(t, err)
	assert.False(t, inserted, "пара (transaction_id, platform) уникальна")

	p.Platform = models.PlatformAndroid
	inserted, err = s.RecordPurchase(ctx, p, patch, sub)
	require.NoError(t, err)
	assert.True(t, inserted, "тот же transaction_id на другой платформе допустим")

	found, err := s.FindPurchaseByTransaction(ctx, "tx-1", models.PlatformIOS)
	require.NoError(t, err)
	assert.Equal(t, "receipt", found.ReceiptData)

	_, err = s.FindPurchaseByTransaction(ctx, "tx-404", models.PlatformIOS)
	require.ErrorIs(t, err, storage.ErrPurchaseNotFound)

	count, err := s.CountVerifiedPurchases(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := s.ListPurchases(ctx, "u1", 50)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Empty(t, list[0].ReceiptData)

	total, err := s.CountPurchases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	var active bool
	require.NoError(t, s.DB.QueryRowContext(ctx,
		`SELECT is_active FROM subscriptions WHERE user_id = $1`, "u1").Scan(&active))
	assert.True(t, active)
	require.NoError(t, s.CancelSubscription(ctx, "u1", now))
	require.ErrorIs(t, s.CancelSubscription(ctx, "missing", now), storage.ErrUserNotFound)

	require.NoError(t, s.InsertRestoreAttempt(ctx, models.RestoreAttempt{
		ID: uuid.NewString(), UserID: "u1", Platform: models.PlatformIOS, ReceiptData: "r", RestoredAt: now,
	}))
	require.NoError(t, s.InsertWebhookLog(ctx, models.WebhookLog{
		ID: uuid.NewString(), Platform: models.PlatformIOS, NotificationType: "DID_RENEW",
		Payload: []byte(`{"notificationType":"DID_RENEW"}`), ReceivedAt: now,
	}))
}

func TestStorage_RecordPurchaseRollsBack(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	newUser(t, s, "u1")
	p := models.PurchaseRecord{
		UserID: "u1", Platform: models.PlatformIOS, ProductID: "premium_monthly",
		TransactionID: "tx-1", ReceiptData: "receipt", Verified: true,
		VerificationStatus: models.VerificationPending, CreatedAt: now, VerifiedAt: now,
	}
	patch := models.AccountPatch{Tier: models.Ptr(models.TierPremium)}
	sub := models.SubscriptionSummary{
		UserID: "u1", ProductID: "premium_monthly", Platform: models.PlatformIOS,
		TransactionID: "tx-1", IsActive: true, ExpiresAt: now, CreatedAt: now, UpdatedAt: now,
	}

	// сводная запись ссылается на несуществующего пользователя и не вставляется
	broken := sub
	broken.UserID = "missing"
	_, err := s.RecordPurchase(ctx, p, patch, broken)
	require.Error(t, err)

	_, err = s.FindPurchaseByTransaction(ctx, "tx-1", models.PlatformIOS)
	require.ErrorIs(t, err, storage.ErrPurchaseNotFound)
	user, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, user.Tier)

	inserted, err := s.RecordPurchase(ctx, p, patch, sub)
	require.NoError(t, err)
	assert.True(t, inserted, "повтор после отката проходит заново")
	user, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, user.Tier)
}

func ledgerHas(t *testing.T, s *Storage, userID string, milestone models.Milestone) bool {
	t.Helper()
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM sent_trial_notifications WHERE user_id = $1 AND days_remaining = $2)`
	require.NoError(t, s.DB.QueryRowContext(context.Background(), query, userID, int(milestone)).Scan(&exists))
	return exists
}

func TestStorage_Ledger(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	claimed, err := s.ClaimMilestone(ctx, "u1", models.MilestoneThreeDays, now)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = s.ClaimMilestone(ctx, "u1", models.MilestoneThreeDays, now)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.True(t, ledgerHas(t, s, "u1", models.MilestoneThreeDays))

	require.NoError(t, s.ReleaseMilestone(ctx, "u1", models.MilestoneThreeDays))

	assert.False(t, ledgerHas(t, s, "u1", models.MilestoneThreeDays))

	_, err = s.ClaimMilestone(ctx, "u1", models.MilestoneOneDay, now)
	require.NoError(t, err)
	entries, err := s.ListLedger(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.MilestoneOneDay, entries[0].DaysRemaining)
}

func TestStorage_TrialLogAndNotifications(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertTrialLog(ctx, models.TrialLogEntry{
		ID: uuid.NewString(), UserID: "u1", StartedAt: now, EndsAt: now.Add(7 * 24 * time.Hour), DurationDays: 7,
	}))

	require.NoError(t, s.InsertNotification(ctx, models.Notification{
		ID: "notif_0123456789ab", Title: "t", Message: "m", Type: "trial", Icon: "gift",
		TargetUserID: "u1", CreatedAt: now, CreatedBy: "system",
	}))
	list, err := s.ListNotifications(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "gift", list[0].Icon)
}
