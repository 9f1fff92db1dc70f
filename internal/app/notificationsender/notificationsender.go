// Package notificationsender собирает процесс, который читает уведомления о пробном
// периоде из RabbitMQ и записывает их во входящие пользователей.
package notificationsender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/services/notifier"
	"github.com/magabrotheeeer/premium-service/internal/storage/driver"
)

// App потребитель очереди уведомлений.
type App struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	store  driver.Store
	inbox  *notifier.InboxPublisher
	queue  string
	logger *slog.Logger
}

// New подключается к хранилищу и брокеру.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.notificationsender.New"

	store, err := driver.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.RetryAttempts, cfg.RabbitMQ.RetryInterval)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.TrialNotificationQueues(cfg.RabbitMQ))
	if err != nil {
		_ = conn.Close()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &App{
		conn:   conn,
		ch:     ch,
		store:  store,
		inbox:  notifier.NewInboxPublisher(store, logger, cfg.Notifications),
		queue:  cfg.RabbitMQ.Queue,
		logger: logger,
	}, nil
}

// Run потребляет очередь до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, a.queue, a.inbox.HandleMessage)
	if err != nil {
		a.logger.Error("failed to start consumer", slog.String("queue", a.queue), sl.Err(err))
		return err
	}
	a.logger.Info("consuming trial notifications", slog.String("queue", a.queue))

	<-ctx.Done()
	a.logger.Info("notification sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.store.Close(context.Background()); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
