package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

// InsertTrialLog записывает аудит запуска пробного периода.
func (s *Storage) InsertTrialLog(ctx context.Context, e models.TrialLogEntry) error {
	const op = "storage.mongodb.InsertTrialLog"

	if _, err := s.db.Collection(collTrialLogs).InsertOne(ctx, e); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClaimMilestone атомарно резервирует уведомление (userID, milestone).
// Возвращает false, если запись уже существует.
func (s *Storage) ClaimMilestone(ctx context.Context, userID string, milestone models.Milestone, at time.Time) (bool, error) {
	const op = "storage.mongodb.ClaimMilestone"

	_, err := s.db.Collection(collSentTrialNotifs).InsertOne(ctx, models.LedgerEntry{
		UserID:        userID,
		DaysRemaining: milestone,
		SentAt:        at,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ReleaseMilestone снимает резерв, если уведомление так и не было отправлено.
// Единственный случай удаления из реестра: запись о доставленном уведомлении не удаляется никогда.
func (s *Storage) ReleaseMilestone(ctx context.Context, userID string, milestone models.Milestone) error {
	const op = "storage.mongodb.ReleaseMilestone"

	_, err := s.db.Collection(collSentTrialNotifs).DeleteOne(ctx,
		bson.M{"user_id": userID, "days_remaining": milestone})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListLedger возвращает последние записи реестра уведомлений.
func (s *Storage) ListLedger(ctx context.Context, limit int) ([]*models.LedgerEntry, error) {
	const op = "storage.mongodb.ListLedger"

	cur, err := s.db.Collection(collSentTrialNotifs).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var result []*models.LedgerEntry
	if err = cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// InsertNotification кладёт уведомление во входящие пользователя.
func (s *Storage) InsertNotification(ctx context.Context, n models.Notification) error {
	const op = "storage.mongodb.InsertNotification"

	if _, err := s.db.Collection(collNotifications).InsertOne(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListNotifications возвращает входящие пользователя от новых к старым.
func (s *Storage) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	const op = "storage.mongodb.ListNotifications"

	cur, err := s.db.Collection(collNotifications).Find(ctx, bson.M{"target_user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var result []*models.Notification
	if err = cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
