// Package driver открывает хранилище, выбранное настройкой storage.driver.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/migrations"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/storage/mongodb"
	"github.com/magabrotheeeer/premium-service/internal/storage/postgresql"
)

// Store полный набор операций хранилища. Ему удовлетворяют postgresql.Storage и mongodb.Storage.
type Store interface {
	CreateUser(ctx context.Context, user models.UserAccount) (bool, error)
	GetUser(ctx context.Context, userID string) (*models.UserAccount, error)
	UpdateUser(ctx context.Context, userID string, patch models.AccountPatch) error
	StartTrial(ctx context.Context, userID string, window models.TrialWindow) (bool, error)
	ListTrialUsers(ctx context.Context) ([]*models.UserAccount, error)
	CountUsers(ctx context.Context) (total, premium, trial int64, err error)

	InsertTrialLog(ctx context.Context, e models.TrialLogEntry) error

	FindPurchaseByTransaction(ctx context.Context, transactionID string, platform models.Platform) (*models.PurchaseRecord, error)
	RecordPurchase(ctx context.Context, p models.PurchaseRecord, patch models.AccountPatch, sub models.SubscriptionSummary) (bool, error)
	CountVerifiedPurchases(ctx context.Context, userID string) (int, error)
	ListPurchases(ctx context.Context, userID string, limit int) ([]*models.PurchaseRecord, error)
	RecentPurchases(ctx context.Context, limit int) ([]*models.PurchaseRecord, error)
	CountPurchases(ctx context.Context) (int64, error)
	CancelSubscription(ctx context.Context, userID string, at time.Time) error
	InsertRestoreAttempt(ctx context.Context, a models.RestoreAttempt) error
	InsertWebhookLog(ctx context.Context, l models.WebhookLog) error

	ClaimMilestone(ctx context.Context, userID string, milestone models.Milestone, at time.Time) (bool, error)
	ReleaseMilestone(ctx context.Context, userID string, milestone models.Milestone) error
	ListLedger(ctx context.Context, limit int) ([]*models.LedgerEntry, error)

	InsertNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*postgresql.Storage)(nil)
	_ Store = (*mongodb.Storage)(nil)
)

// Open подключается к хранилищу и готовит схему: миграции для PostgreSQL,
// уникальные индексы для MongoDB.
func Open(ctx context.Context, cfg config.Storage, log *slog.Logger) (Store, error) {
	const op = "storage.driver.Open"

	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgresql.New(ctx, cfg.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("postgres storage ready", slog.String("migrations", cfg.MigrationsPath))
		return db, nil
	case config.DriverMongo:
		db, err := mongodb.New(ctx, mongodb.Config{
			ConnectionURL:   cfg.Mongo.URL,
			Database:        cfg.Mongo.Database,
			ConnectTimeout:  cfg.Mongo.ConnectTimeout,
			MaxPoolSize:     cfg.Mongo.MaxPoolSize,
			MinPoolSize:     cfg.Mongo.MinPoolSize,
			MaxConnIdleTime: cfg.Mongo.MaxConnIdleTime,
			RetryAttempts:   cfg.Mongo.RetryAttempts,
			RetryInterval:   cfg.Mongo.RetryInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("mongo storage ready", slog.String("database", cfg.Mongo.Database))
		return db, nil
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
}
