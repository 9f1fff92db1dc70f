// Package purchase проверяет покупки в магазинах приложений и ведёт оплаченную подписку:
// идемпотентная регистрация покупки, восстановление, отмена автопродления,
// история покупок, статистика для администратора и журнал вебхуков.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/lib/metrics"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/state"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

const (
	statsCacheKey       = "stats:subscriptions"
	recentPurchasesSize = 10

	MessageVerified         = "Purchase verified successfully"
	MessageAlreadyProcessed = "Purchase already verified"
	MessageRestored         = "Purchases restored successfully"
	MessageNothingRestored  = "No previous purchases found"
	MessageCancelled        = "Subscription marked as cancelled. Access continues until expiry."
)

// ErrNoSubscription у пользователя нет оплаченной подписки.
var ErrNoSubscription = errors.New("no paid subscription")

// Repository хранилище учётных записей и покупок.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*models.UserAccount, error)
	UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error
	CountUsers(ctx context.Context) (total, premium, trial int64, err error)

	FindPurchaseByTransaction(ctx context.Context, transactionID string, platform models.Platform) (*models.PurchaseRecord, error)
	RecordPurchase(ctx context.Context, p models.PurchaseRecord, patch models.AccountPatch, sub models.SubscriptionSummary) (bool, error)
	CountVerifiedPurchases(ctx context.Context, userID string) (int, error)
	ListPurchases(ctx context.Context, userID string, limit int) ([]*models.PurchaseRecord, error)
	RecentPurchases(ctx context.Context, limit int) ([]*models.PurchaseRecord, error)
	CountPurchases(ctx context.Context) (int64, error)

	CancelSubscription(ctx context.Context, userID string, at time.Time) error
	InsertRestoreAttempt(ctx context.Context, a models.RestoreAttempt) error
	InsertWebhookLog(ctx context.Context, l models.WebhookLog) error
}

// Cache кэш агрегированной статистики.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service реализует операции с оплаченной подпиской.
type Service struct {
	repo     Repository
	cache    Cache
	log      *slog.Logger
	metrics  *metrics.Metrics
	cfg      config.Purchase
	statsTTL time.Duration
	now      func() time.Time
}

// NewService создаёт сервис покупок.
func NewService(repo Repository, cache Cache, log *slog.Logger, m *metrics.Metrics, cfg config.Purchase, statsTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		log:      log,
		metrics:  m,
		cfg:      cfg,
		statsTTL: statsTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// VerifyRequest данные покупки, присланные клиентом.
type VerifyRequest struct {
	UserID        string
	Platform      models.Platform
	ProductID     string
	TransactionID string
	ReceiptData   string
}

// SubscriptionInfo краткое описание подписки после успешной покупки.
type SubscriptionInfo struct {
	IsActive  bool        `json:"is_active"`
	Tier      models.Tier `json:"tier"`
	ProductID string      `json:"product_id"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// VerifyResult результат проверки покупки.
type VerifyResult struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message"`
	AlreadyProcessed bool              `json:"already_processed,omitempty"`
	Subscription     *SubscriptionInfo `json:"subscription,omitempty"`
}

// IsYearly сообщает, что продукт годовой.
func IsYearly(productID string) bool {
	id := strings.ToLower(productID)
	return strings.Contains(id, "yearly") || strings.Contains(id, "annual")
}

func (s *Service) periodDays(productID string) int {
	if IsYearly(productID) {
		return s.cfg.YearlyDays
	}
	return s.cfg.MonthlyDays
}

// VerifyPurchase регистрирует покупку и выдаёт премиум-доступ.
// Повторная покупка с той же парой (transaction_id, platform) ничего не меняет.
func (s *Service) VerifyPurchase(ctx context.Context, req VerifyRequest, requestingUserID string) (*VerifyResult, error) {
	const op = "services.purchase.VerifyPurchase"

	if err := services.Authorize(req.UserID, requestingUserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.repo.GetUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	alreadyProcessed := &VerifyResult{Success: true, Message: MessageAlreadyProcessed, AlreadyProcessed: true}

	_, err := s.repo.FindPurchaseByTransaction(ctx, req.TransactionID, req.Platform)
	switch {
	case err == nil:
		s.metrics.Purchase(string(req.Platform), "duplicate")
		return alreadyProcessed, nil
	case !errors.Is(err, storage.ErrPurchaseNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	expiresAt := now.AddDate(0, 0, s.periodDays(req.ProductID))
	paid := models.PaidPlan{
		ProductID:    req.ProductID,
		Platform:     req.Platform,
		ExpiresAt:    expiresAt,
		AutoRenewing: true,
	}
	patch := models.AccountPatch{
		Tier:       models.Ptr(models.TierPremium),
		IsTrial:    models.Ptr(false),
		ClearTrial: true,
		Paid:       &paid,
	}

	// покупка, учётная запись и сводная запись сохраняются вместе: после сбоя
	// повторный запрос не должен принять покупку за уже обработанную
	inserted, err := s.repo.RecordPurchase(ctx,
		models.PurchaseRecord{
			UserID:             req.UserID,
			Platform:           req.Platform,
			ProductID:          req.ProductID,
			TransactionID:      req.TransactionID,
			ReceiptData:        req.ReceiptData,
			Verified:           true,
			VerificationStatus: models.VerificationPending,
			CreatedAt:          now,
			VerifiedAt:         now,
		},
		patch,
		models.SubscriptionSummary{
			UserID:        req.UserID,
			ProductID:     req.ProductID,
			Platform:      req.Platform,
			TransactionID: req.TransactionID,
			IsActive:      true,
			ExpiresAt:     expiresAt,
			AutoRenewing:  true,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !inserted {
		// параллельный запрос с той же транзакцией успел первым
		s.metrics.Purchase(string(req.Platform), "duplicate")
		return alreadyProcessed, nil
	}

	s.metrics.Purchase(string(req.Platform), "verified")
	s.log.Info("purchase recorded",
		slog.String("user_id", req.UserID),
		slog.String("platform", string(req.Platform)),
		slog.String("product_id", req.ProductID),
		slog.Time("expires_at", expiresAt),
	)

	return &VerifyResult{
		Success: true,
		Message: MessageVerified,
		Subscription: &SubscriptionInfo{
			IsActive:  true,
			Tier:      models.TierPremium,
			ProductID: req.ProductID,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// RestoreResult результат восстановления покупок.
type RestoreResult struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	RestoredCount      int    `json:"restored_count"`
	SubscriptionActive bool   `json:"subscription_active"`
}

// RestorePurchases фиксирует попытку восстановления по каждому чеку и возвращает
// премиум-уровень, если у пользователя уже есть проверенные покупки и оплаченный
// период ещё не истёк.
func (s *Service) RestorePurchases(ctx context.Context, userID string, platform models.Platform, receipts []string, requestingUserID string) (*RestoreResult, error) {
	const op = "services.purchase.RestorePurchases"

	if err := services.Authorize(userID, requestingUserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	for _, receipt := range receipts {
		attempt := models.RestoreAttempt{
			ID:          uuid.NewString(),
			UserID:      userID,
			Platform:    platform,
			ReceiptData: receipt,
			RestoredAt:  now,
		}
		if err := s.repo.InsertRestoreAttempt(ctx, attempt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	verified, err := s.repo.CountVerifiedPurchases(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if verified == 0 {
		return &RestoreResult{Success: true, Message: MessageNothingRestored}, nil
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	restored := *user
	restored.Tier = models.TierPremium
	eff := state.Evaluate(&restored, now)
	if eff.IsActive && user.Tier != models.TierPremium {
		if err := s.repo.UpdateUser(ctx, userID, models.AccountPatch{Tier: models.Ptr(models.TierPremium)}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	s.log.Info("purchases restored",
		slog.String("user_id", userID),
		slog.Int("count", verified),
		slog.Bool("subscription_active", eff.IsActive),
	)

	return &RestoreResult{
		Success:            true,
		Message:            MessageRestored,
		RestoredCount:      verified,
		SubscriptionActive: eff.IsActive,
	}, nil
}

// Status фактический статус подписки. Во время пробного периода поля пробного периода
// имеют приоритет: ExpiresAt содержит дату его окончания.
type Status struct {
	IsActive      bool            `json:"is_active"`
	Tier          models.Tier     `json:"subscription_tier"`
	IsTrial       bool            `json:"is_trial"`
	DaysRemaining int             `json:"days_remaining"`
	ProductID     string          `json:"product_id,omitempty"`
	Platform      models.Platform `json:"platform,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	TrialEndsAt   *time.Time      `json:"trial_ends_at,omitempty"`
	AutoRenewing  bool            `json:"auto_renewing"`
}

// GetSubscriptionStatus возвращает фактический статус подписки, сохраняя понижение истёкшей подписки.
func (s *Service) GetSubscriptionStatus(ctx context.Context, userID string) (*Status, error) {
	const op = "services.purchase.GetSubscriptionStatus"

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	eff := state.Evaluate(user, s.now())
	if eff.NeedsWriteback() {
		if err := s.repo.UpdateUser(ctx, userID, *eff.Writeback); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.metrics.Transition(string(eff.Transition))
		s.log.Info("subscription state downgraded",
			slog.String("user_id", userID),
			slog.String("transition", string(eff.Transition)),
		)
	}

	status := &Status{
		IsActive:      eff.IsActive,
		Tier:          eff.Tier,
		IsTrial:       eff.IsTrial,
		DaysRemaining: eff.DaysRemaining,
	}
	if eff.IsTrial {
		status.TrialEndsAt = user.TrialEndsAt()
		status.ExpiresAt = user.TrialEndsAt()
		return status, nil
	}
	if user.Paid != nil {
		expiresAt := user.Paid.ExpiresAt
		status.ProductID = user.Paid.ProductID
		status.Platform = user.Paid.Platform
		status.ExpiresAt = &expiresAt
		status.AutoRenewing = user.Paid.AutoRenewing
	}
	return status, nil
}

// CancelSubscription отключает автопродление. Доступ сохраняется до окончания оплаченного периода.
func (s *Service) CancelSubscription(ctx context.Context, userID, requestingUserID string) error {
	const op = "services.purchase.CancelSubscription"

	if err := services.Authorize(userID, requestingUserID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.Paid == nil {
		return fmt.Errorf("%s: %w", op, ErrNoSubscription)
	}
	if err := s.repo.CancelSubscription(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription cancelled", slog.String("user_id", userID))
	return nil
}

// History история покупок пользователя.
type History struct {
	Purchases []*models.PurchaseRecord `json:"purchases"`
	Total     int                      `json:"total"`
}

// GetPurchaseHistory возвращает покупки пользователя, новые первыми, без данных чеков.
func (s *Service) GetPurchaseHistory(ctx context.Context, userID, requestingUserID string) (*History, error) {
	const op = "services.purchase.GetPurchaseHistory"

	if err := services.Authorize(userID, requestingUserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	purchases, err := s.repo.ListPurchases(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if purchases == nil {
		purchases = []*models.PurchaseRecord{}
	}
	return &History{Purchases: purchases, Total: len(purchases)}, nil
}

// GetStats возвращает статистику подписок. Результат кэшируется на statsTTL.
func (s *Service) GetStats(ctx context.Context) (*models.SubscriptionStats, error) {
	const op = "services.purchase.GetStats"

	var cached models.SubscriptionStats
	found, err := s.cache.Get(ctx, statsCacheKey, &cached)
	if err != nil {
		s.log.Error("failed to read stats from cache", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	total, premium, trial, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	purchases, err := s.repo.CountPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	recent, err := s.repo.RecentPurchases(ctx, recentPurchasesSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if recent == nil {
		recent = []*models.PurchaseRecord{}
	}

	stats := &models.SubscriptionStats{
		TotalUsers:      total,
		PremiumUsers:    premium,
		FreeUsers:       total - premium,
		TrialUsers:      trial,
		ConversionRate:  ConversionRate(premium, total),
		TotalPurchases:  purchases,
		RecentPurchases: recent,
	}
	if err := s.cache.Set(ctx, statsCacheKey, stats, s.statsTTL); err != nil {
		s.log.Error("failed to cache stats", sl.Err(err))
	}
	return stats, nil
}

// ConversionRate доля премиум-пользователей в процентах с двумя знаками после запятой.
func ConversionRate(premium, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(premium)/float64(total)*100*100) / 100
}
