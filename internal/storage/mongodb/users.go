package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// CreateUser создаёт учётную запись, если её ещё нет. Возвращает true, если запись создана.
func (s *Storage) CreateUser(ctx context.Context, user models.UserAccount) (bool, error) {
	const op = "storage.mongodb.CreateUser"

	res, err := s.db.Collection(collUsers).UpdateOne(ctx,
		bson.M{"user_id": user.UserID},
		bson.M{"$setOnInsert": user},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res.UpsertedCount > 0, nil
}

// GetUser возвращает учётную запись по идентификатору.
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.UserAccount, error) {
	const op = "storage.mongodb.GetUser"

	var u models.UserAccount
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"user_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	normalizeUser(&u)
	return &u, nil
}

// UpdateUser применяет частичное обновление к учётной записи.
func (s *Storage) UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error {
	const op = "storage.mongodb.UpdateUser"
	if patch.Empty() {
		return nil
	}

	set := bson.M{}
	unset := bson.M{}
	if patch.Tier != nil {
		set["subscription_tier"] = *patch.Tier
	}
	if patch.IsTrial != nil {
		set["is_trial"] = *patch.IsTrial
	}
	switch {
	case patch.Trial != nil:
		set["trial"] = patch.Trial
	case patch.ClearTrial:
		unset["trial"] = ""
	}
	if patch.Paid != nil {
		set["paid"] = patch.Paid
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.db.Collection(collUsers).UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}

// StartTrial атомарно открывает пробный период, только если он ещё не использовался.
func (s *Storage) StartTrial(ctx context.Context, userID string, window models.TrialWindow) (bool, error) {
	const op = "storage.mongodb.StartTrial"

	res, err := s.db.Collection(collUsers).UpdateOne(ctx,
		bson.M{"user_id": userID, "trial_used": false},
		bson.M{"$set": bson.M{
			"is_trial":          true,
			"trial_used":        true,
			"subscription_tier": models.TierPremium,
			"trial":             window,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res.ModifiedCount > 0, nil
}

// ListTrialUsers возвращает пользователей с активным флагом пробного периода и известной датой окончания.
func (s *Storage) ListTrialUsers(ctx context.Context) ([]*models.UserAccount, error) {
	const op = "storage.mongodb.ListTrialUsers"

	cur, err := s.db.Collection(collUsers).Find(ctx,
		bson.M{"is_trial": true, "trial.ends_at": bson.M{"$exists": true}},
		options.Find().SetSort(bson.D{{Key: "trial.ends_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var result []*models.UserAccount
	if err = cur.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, u := range result {
		normalizeUser(u)
	}
	return result, nil
}

// CountUsers возвращает общее число пользователей, число премиум-пользователей и число пользователей на пробном периоде.
func (s *Storage) CountUsers(ctx context.Context) (total, premium, trial int64, err error) {
	const op = "storage.mongodb.CountUsers"

	coll := s.db.Collection(collUsers)
	if total, err = coll.CountDocuments(ctx, bson.M{}); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if premium, err = coll.CountDocuments(ctx, bson.M{"subscription_tier": models.TierPremium}); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if trial, err = coll.CountDocuments(ctx, bson.M{"is_trial": true}); err != nil {
		return 0, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, premium, trial, nil
}

// normalizeUser приводит времена, прочитанные из BSON, к UTC.
func normalizeUser(u *models.UserAccount) {
	u.CreatedAt = u.CreatedAt.UTC()
	if u.Trial != nil {
		u.Trial.StartedAt = u.Trial.StartedAt.UTC()
		u.Trial.EndsAt = u.Trial.EndsAt.UTC()
	}
	if u.Paid != nil {
		u.Paid.ExpiresAt = u.Paid.ExpiresAt.UTC()
	}
}
