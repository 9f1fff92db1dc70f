// Package trial управляет пробным периодом премиум-подписки: однократный запуск
// и запрос статуса с ленивым понижением истёкших учётных записей.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/premium-service/internal/lib/metrics"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/state"
)

var (
	// ErrTrialAlreadyUsed пробный период уже использовался.
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrAlreadyPremium у пользователя активная оплаченная подписка.
	ErrAlreadyPremium = errors.New("user already has an active subscription")
)

// Repository хранилище учётных записей и журнала пробных периодов.
type Repository interface {
	GetUser(ctx context.Context, userID string) (*models.UserAccount, error)
	UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error
	StartTrial(ctx context.Context, userID string, window models.TrialWindow) (bool, error)
	InsertTrialLog(ctx context.Context, e models.TrialLogEntry) error
}

// Grant результат запуска пробного периода.
type Grant struct {
	StartedAt     time.Time `json:"trial_started_at"`
	EndsAt        time.Time `json:"trial_ends_at"`
	DaysRemaining int       `json:"days_remaining"`
}

// Status статус пробного периода пользователя.
type Status struct {
	IsTrial       bool       `json:"is_trial"`
	TrialUsed     bool       `json:"trial_used"`
	TrialEndsAt   *time.Time `json:"trial_ends_at"`
	DaysRemaining int        `json:"days_remaining"`
	CanStartTrial bool       `json:"can_start_trial"`
}

// Service реализует запуск пробного периода и запрос его статуса.
type Service struct {
	repo     Repository
	log      *slog.Logger
	metrics  *metrics.Metrics
	duration int
	now      func() time.Time
}

// NewService создаёт сервис пробного периода длительностью durationDays суток.
func NewService(repo Repository, log *slog.Logger, m *metrics.Metrics, durationDays int) *Service {
	return &Service{
		repo:     repo,
		log:      log,
		metrics:  m,
		duration: durationDays,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StartTrial запускает пробный период. Запустить его можно только для себя и только один раз.
func (s *Service) StartTrial(ctx context.Context, userID, requestingUserID string) (*Grant, error) {
	const op = "services.trial.StartTrial"

	if err := services.Authorize(userID, requestingUserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.TrialUsed {
		return nil, fmt.Errorf("%s: %w", op, ErrTrialAlreadyUsed)
	}
	now := s.now()
	if user.Tier == models.TierPremium && !user.IsTrial {
		if status := state.Evaluate(user, now); status.Tier == models.TierPremium {
			return nil, fmt.Errorf("%s: %w", op, ErrAlreadyPremium)
		}
	}

	window := models.TrialWindow{
		StartedAt: now,
		EndsAt:    now.AddDate(0, 0, s.duration),
	}
	started, err := s.repo.StartTrial(ctx, userID, window)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !started {
		// параллельный запрос успел первым
		return nil, fmt.Errorf("%s: %w", op, ErrTrialAlreadyUsed)
	}

	entry := models.TrialLogEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		StartedAt:    window.StartedAt,
		EndsAt:       window.EndsAt,
		DurationDays: s.duration,
	}
	if err := s.repo.InsertTrialLog(ctx, entry); err != nil {
		s.log.Error("failed to write trial log", slog.String("user_id", userID), sl.Err(err))
	}

	s.metrics.TrialStarted()
	s.log.Info("trial started",
		slog.String("user_id", userID),
		slog.Time("ends_at", window.EndsAt),
	)

	return &Grant{
		StartedAt:     window.StartedAt,
		EndsAt:        window.EndsAt,
		DaysRemaining: s.duration,
	}, nil
}

// GetStatus возвращает статус пробного периода, сохраняя понижение истёкшего периода.
func (s *Service) GetStatus(ctx context.Context, userID string) (*Status, error) {
	const op = "services.trial.GetStatus"

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status := state.Evaluate(user, s.now())
	if status.NeedsWriteback() {
		if err := s.repo.UpdateUser(ctx, userID, *status.Writeback); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.metrics.Transition(string(status.Transition))
		s.log.Info("subscription state downgraded",
			slog.String("user_id", userID),
			slog.String("transition", string(status.Transition)),
		)
	}

	result := &Status{
		IsTrial:       status.IsTrial,
		TrialUsed:     user.TrialUsed,
		CanStartTrial: !user.TrialUsed && status.Tier != models.TierPremium,
	}
	if status.IsTrial {
		result.TrialEndsAt = user.TrialEndsAt()
		result.DaysRemaining = status.DaysRemaining
	}
	return result, nil
}
