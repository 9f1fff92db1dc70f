package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

const undoTimeout = 5 * time.Second

// FindPurchaseByTransaction ищет покупку по идентификатору транзакции и платформе.
func (s *Storage) FindPurchaseByTransaction(ctx context.Context, transactionID string, platform models.Platform) (*models.PurchaseRecord, error) {
	const op = "storage.mongodb.FindPurchaseByTransaction"

	var p models.PurchaseRecord
	err := s.db.Collection(collPurchases).
		FindOne(ctx, bson.M{"transaction_id": transactionID, "platform": platform}).
		Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrPurchaseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// RecordPurchase сохраняет покупку, применяет patch к учётной записи и обновляет
// сводную запись о подписке. Возвращает false без изменений, если покупка с той же
// парой (transaction_id, platform) уже записана.
//
// Отдельный сервер MongoDB не поддерживает транзакции, поэтому при ошибке после
// вставки покупка удаляется, и повторный запрос клиента проходит весь путь заново.
func (s *Storage) RecordPurchase(ctx context.Context, p models.PurchaseRecord, patch models.AccountPatch, sub models.SubscriptionSummary) (bool, error) {
	const op = "storage.mongodb.RecordPurchase"

	_, err := s.db.Collection(collPurchases).InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err = s.UpdateUser(ctx, p.UserID, patch); err == nil {
		err = s.upsertSubscription(ctx, sub)
	}
	if err != nil {
		undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
		defer cancel()
		if _, delErr := s.db.Collection(collPurchases).DeleteOne(undoCtx,
			bson.M{"transaction_id": p.TransactionID, "platform": p.Platform}); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// CountVerifiedPurchases возвращает число подтверждённых покупок пользователя.
func (s *Storage) CountVerifiedPurchases(ctx context.Context, userID string) (int, error) {
	const op = "storage.mongodb.CountVerifiedPurchases"

	n, err := s.db.Collection(collPurchases).CountDocuments(ctx, bson.M{"user_id": userID, "verified": true})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

// ListPurchases возвращает покупки пользователя от новых к старым. Данные чека не загружаются.
func (s *Storage) ListPurchases(ctx context.Context, userID string, limit int) ([]*models.PurchaseRecord, error) {
	const op = "storage.mongodb.ListPurchases"
	return s.findPurchases(ctx, op, bson.M{"user_id": userID}, limit)
}

// RecentPurchases возвращает последние покупки всех пользователей.
func (s *Storage) RecentPurchases(ctx context.Context, limit int) ([]*models.PurchaseRecord, error) {
	const op = "storage.mongodb.RecentPurchases"
	return s.findPurchases(ctx, op, bson.M{}, limit)
}

func (s *Storage) findPurchases(ctx context.Context, op string, filter bson.M, limit int) ([]*models.PurchaseRecord, error) {
	cur, err := s.db.Collection(collPurchases).Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(int64(limit)).
			SetProjection(bson.M{"receipt_data": 0}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var result []*models.PurchaseRecord
	if err = cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountPurchases возвращает общее число покупок.
func (s *Storage) CountPurchases(ctx context.Context) (int64, error) {
	const op = "storage.mongodb.CountPurchases"

	n, err := s.db.Collection(collPurchases).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// upsertSubscription создаёт или заменяет сводную запись о подписке пользователя.
func (s *Storage) upsertSubscription(ctx context.Context, sub models.SubscriptionSummary) error {
	_, err := s.db.Collection(collSubscriptions).UpdateOne(ctx,
		bson.M{"user_id": sub.UserID},
		bson.M{
			"$set": bson.M{
				"product_id":     sub.ProductID,
				"platform":       sub.Platform,
				"transaction_id": sub.TransactionID,
				"is_active":      sub.IsActive,
				"expires_at":     sub.ExpiresAt,
				"auto_renewing":  sub.AutoRenewing,
				"updated_at":     sub.UpdatedAt,
			},
			"$unset":       bson.M{"cancelled_at": ""},
			"$setOnInsert": bson.M{"created_at": sub.CreatedAt},
		},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// CancelSubscription отключает автопродление у пользователя и в сводной записи.
func (s *Storage) CancelSubscription(ctx context.Context, userID string, at time.Time) error {
	const op = "storage.mongodb.CancelSubscription"

	res, err := s.db.Collection(collUsers).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"paid.auto_renewing": false, "paid.cancelled_at": at}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	_, err = s.db.Collection(collSubscriptions).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"auto_renewing": false, "cancelled_at": at, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InsertRestoreAttempt записывает попытку восстановления покупок.
func (s *Storage) InsertRestoreAttempt(ctx context.Context, a models.RestoreAttempt) error {
	const op = "storage.mongodb.InsertRestoreAttempt"

	if _, err := s.db.Collection(collRestoreAttempts).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InsertWebhookLog сохраняет уведомление магазина приложений.
func (s *Storage) InsertWebhookLog(ctx context.Context, l models.WebhookLog) error {
	const op = "storage.mongodb.InsertWebhookLog"

	if _, err := s.db.Collection(collWebhookLogs).InsertOne(ctx, l); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
