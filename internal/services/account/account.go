// Package account создаёт учётную запись при первом аутентифицированном запросе.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
)

// Repository хранилище учётных записей.
type Repository interface {
	CreateUser(ctx context.Context, user models.UserAccount) (bool, error)
}

// Cache отметки об уже созданных учётных записях.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service создаёт бесплатные учётные записи.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
	ttl   time.Duration
	now   func() time.Time
}

// NewService создаёт сервис. ttl время жизни отметки в кэше.
func NewService(repo Repository, cache Cache, log *slog.Logger, ttl time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func memoKey(userID string) string {
	return "account:provisioned:" + userID
}

// Ensure создаёт бесплатную учётную запись userID, если её ещё нет.
func (s *Service) Ensure(ctx context.Context, userID, email string) error {
	const op = "services.account.Ensure"

	key := memoKey(userID)
	known, err := s.cache.Exists(ctx, key)
	if err != nil {
		s.log.Error("failed to check account memo", slog.String("user_id", userID), sl.Err(err))
	}
	if known {
		return nil
	}

	created, err := s.repo.CreateUser(ctx, models.UserAccount{
		UserID:    userID,
		Email:     email,
		Tier:      models.TierFree,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if created {
		s.log.Info("account created", slog.String("user_id", userID))
	}

	if err := s.cache.Set(ctx, key, true, s.ttl); err != nil {
		s.log.Error("failed to save account memo", slog.String("user_id", userID), sl.Err(err))
	}
	return nil
}
