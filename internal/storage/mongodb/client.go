// Package mongodb реализует то же хранилище, что и пакет postgresql, поверх MongoDB.
// Выбирается настройкой storage.driver: mongo.
//
// Уникальность ключей (покупка по транзакции, реестр уведомлений) обеспечивается
// уникальными индексами, которые создаёт EnsureIndexes.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrFailedToConnect возвращается, если все попытки подключения исчерпаны.
var ErrFailedToConnect = errors.New("failed to connect to mongo")

const (
	collUsers           = "users"
	collPurchases       = "purchases"
	collSubscriptions   = "subscriptions"
	collRestoreAttempts = "restore_attempts"
	collTrialLogs       = "trial_logs"
	collSentTrialNotifs = "sent_trial_notifications"
	collNotifications   = "notifications"
	collWebhookLogs     = "webhook_logs"
)

// Config параметры подключения к MongoDB.
type Config struct {
	ConnectionURL   string
	Database        string
	ConnectTimeout  time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	RetryAttempts   int
	RetryInterval   time.Duration
}

// Storage хранилище на MongoDB.
type Storage struct {
	client *mongo.Client
	db     *mongo.Database
}

// New подключается к MongoDB с повторными попытками и проверяет соединение.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	const op = "storage.mongodb.New"

	attempts := max(cfg.RetryAttempts, 1)
	for i := range attempts {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return &Storage{client: client, db: client.Database(cfg.Database)}, nil
			}
			_ = client.Disconnect(ctx)
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrFailedToConnect)
}

// EnsureIndexes создаёт индексы, на которых держатся ограничения уникальности.
func (s *Storage) EnsureIndexes(ctx context.Context) error {
	const op = "storage.mongodb.EnsureIndexes"

	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "is_trial", Value: 1}}},
		},
		collPurchases: {
			{Keys: bson.D{{Key: "transaction_id", Value: 1}, {Key: "platform", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique},
		},
		collSentTrialNotifs: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "days_remaining", Value: 1}}, Options: unique},
		},
		collNotifications: {
			{Keys: bson.D{{Key: "target_user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("%s: %s: %w", op, coll, err)
		}
	}
	return nil
}

// Ping проверяет доступность сервера.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close закрывает соединение.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
