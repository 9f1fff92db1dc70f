// Package scheduler рассылает уведомления об окончании пробного периода.
//
// Обход выполняется по таймеру и по запросу администратора одним и тем же кодом.
// Каждая контрольная точка (3 дня, 1 день, период истёк) отправляется пользователю
// не более одного раза: перед публикацией точка занимается в реестре вставкой
// с уникальным ключом, при ошибке публикации запись удаляется и следующий обход повторит попытку.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/lib/metrics"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services/state"
)

const (
	historyLimit = 100

	// запас времени на запись после отмены контекста обхода
	writebackTimeout = 5 * time.Second
)

// Repository хранилище учётных записей и реестра уведомлений.
type Repository interface {
	ListTrialUsers(ctx context.Context) ([]*models.UserAccount, error)
	UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error
	ClaimMilestone(ctx context.Context, userID string, milestone models.Milestone, at time.Time) (bool, error)
	ReleaseMilestone(ctx context.Context, userID string, milestone models.Milestone) error
	ListLedger(ctx context.Context, limit int) ([]*models.LedgerEntry, error)
}

// Publisher доставляет уведомление во входящие пользователя.
type Publisher interface {
	Publish(ctx context.Context, payload models.NotificationPayload) error
}

// SentNotification отправленная контрольная точка.
type SentNotification struct {
	UserID        string           `json:"user_id"`
	DaysRemaining models.Milestone `json:"days_remaining"`
}

// SweepResult итог одного обхода.
type SweepResult struct {
	NotificationsSent []SentNotification `json:"notifications_sent"`
	UsersChecked      int                `json:"users_checked"`
}

// Service планировщик уведомлений.
type Service struct {
	repo      Repository
	publisher Publisher
	log       *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	now       func() time.Time

	// обходы не пересекаются: таймер и ручной запуск ждут друг друга
	mu sync.Mutex
}

// New создаёт планировщик с интервалом обхода interval.
func New(repo Repository, publisher Publisher, log *slog.Logger, m *metrics.Metrics, interval time.Duration) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log,
		metrics:   m,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run выполняет обход сразу и затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context) {
	const op = "services.scheduler.Run"
	log := s.log.With(slog.String("op", op))
	log.Info("trial expiry scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("trial expiry scheduler stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Service) runSweep(ctx context.Context) {
	res, err := s.Sweep(ctx, s.now())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Error("trial sweep failed", sl.Err(err))
		}
		return
	}
	s.log.Info("trial check complete",
		slog.Int("users_checked", res.UsersChecked),
		slog.Int("notifications_sent", len(res.NotificationsSent)),
	)
}

// TriggerNow выполняет обход немедленно. Используется администратором.
func (s *Service) TriggerNow(ctx context.Context) (*SweepResult, error) {
	return s.Sweep(ctx, s.now())
}

// Sweep выполняет один обход на момент now. Ошибки по отдельному пользователю
// записываются в журнал и не прерывают обход.
func (s *Service) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	const op = "services.scheduler.Sweep"

	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	users, err := s.repo.ListTrialUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &SweepResult{NotificationsSent: []SentNotification{}}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			// прерванный обход повторит следующий тик
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.UsersChecked++

		sent, err := s.checkUser(ctx, u, now)
		if err != nil {
			s.log.Error("failed to process trial user",
				slog.String("op", op),
				slog.String("user_id", u.UserID),
				sl.Err(err),
			)
			continue
		}
		if sent != nil {
			res.NotificationsSent = append(res.NotificationsSent, *sent)
		}
	}

	s.metrics.ObserveSweep(started, res.UsersChecked)
	return res, nil
}

// Milestone выбирает контрольную точку для пробного периода с остатком remaining.
// stale сообщает, что период истёк более суток назад и уведомление уже не отправляется.
// Точка 0 наступает только когда остаток не больше нуля. При остатке от нуля до суток
// целое число дней уже 0, но точки нет: уведомление об окончании ждёт фактического истечения.
func Milestone(remaining time.Duration) (m models.Milestone, ok, stale bool) {
	hours := remaining.Hours()
	switch {
	case hours <= -24:
		return 0, false, true
	case hours <= 0:
		return models.MilestoneExpired, true, false
	}
	switch state.FloorDays(remaining) {
	case 3:
		return models.MilestoneThreeDays, true, false
	case 1:
		return models.MilestoneOneDay, true, false
	}
	return 0, false, false
}

func (s *Service) checkUser(ctx context.Context, u *models.UserAccount, now time.Time) (*SentNotification, error) {
	if u.Trial == nil {
		return nil, nil
	}

	milestone, ok, stale := Milestone(u.Trial.EndsAt.Sub(now))
	if stale {
		// уведомление пропущено, но учётную запись всё равно нужно понизить
		if err := s.repo.UpdateUser(ctx, u.UserID, *state.TrialExpiredPatch()); err != nil {
			return nil, err
		}
		s.metrics.Transition(string(state.TransitionTrialExpired))
		s.log.Info("stale trial downgraded without notification", slog.String("user_id", u.UserID))
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	claimed, err := s.repo.ClaimMilestone(ctx, u.UserID, milestone, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if milestone == models.MilestoneExpired {
			// уведомление уже отправлено, но понижение могло не сохраниться
			return nil, s.expire(ctx, u.UserID)
		}
		return nil, nil
	}

	if err := s.publisher.Publish(ctx, Payload(u.UserID, milestone)); err != nil {
		s.metrics.PublishFailed(int(milestone))
		relCtx, cancel := detached(ctx)
		defer cancel()
		if relErr := s.repo.ReleaseMilestone(relCtx, u.UserID, milestone); relErr != nil {
			s.log.Error("failed to release milestone",
				slog.String("user_id", u.UserID),
				slog.Int("milestone", int(milestone)),
				sl.Err(relErr),
			)
		}
		return nil, fmt.Errorf("publish milestone %d: %w", milestone, err)
	}
	s.metrics.NotificationSent(int(milestone))
	s.log.Info("trial notification sent",
		slog.String("user_id", u.UserID),
		slog.Int("milestone", int(milestone)),
	)

	if milestone == models.MilestoneExpired {
		// уведомление уже ушло, понижение должно сохраниться даже при остановке обхода
		expCtx, cancel := detached(ctx)
		defer cancel()
		if err := s.expire(expCtx, u.UserID); err != nil {
			return nil, err
		}
	}
	return &SentNotification{UserID: u.UserID, DaysRemaining: milestone}, nil
}

// detached отвязывает запись от отмены ctx, сохраняя его значения.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writebackTimeout)
}

func (s *Service) expire(ctx context.Context, userID string) error {
	if err := s.repo.UpdateUser(ctx, userID, *state.TrialExpiredPatch()); err != nil {
		return err
	}
	s.metrics.Transition(string(state.TransitionTrialExpired))
	return nil
}

// ActiveTrial пробный период, по которому ещё идёт рассылка.
type ActiveTrial struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	TrialEndsAt    time.Time `json:"trial_ends_at"`
	DaysRemaining  int       `json:"days_remaining"`
	HoursRemaining float64   `json:"hours_remaining"`
}

// History отправленные уведомления и текущие пробные периоды.
type History struct {
	SentNotifications []*models.LedgerEntry `json:"sent_notifications"`
	ActiveTrials      []ActiveTrial         `json:"active_trials"`
}

// History возвращает реестр отправленных уведомлений и пробные периоды с вычисленным остатком.
func (s *Service) History(ctx context.Context) (*History, error) {
	const op = "services.scheduler.History"

	ledger, err := s.repo.ListLedger(ctx, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users, err := s.repo.ListTrialUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	h := &History{
		SentNotifications: ledger,
		ActiveTrials:      make([]ActiveTrial, 0, len(users)),
	}
	if h.SentNotifications == nil {
		h.SentNotifications = []*models.LedgerEntry{}
	}
	for _, u := range users {
		if u.Trial == nil {
			continue
		}
		remaining := u.Trial.EndsAt.Sub(now)
		h.ActiveTrials = append(h.ActiveTrials, ActiveTrial{
			UserID:         u.UserID,
			Email:          u.Email,
			TrialEndsAt:    u.Trial.EndsAt,
			DaysRemaining:  state.FloorDays(remaining),
			HoursRemaining: math.Round(remaining.Hours()*10) / 10,
		})
	}
	return h, nil
}
