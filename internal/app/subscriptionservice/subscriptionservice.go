package subscriptionservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/premium-service/internal/cache"
	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/lib/jwt"
	"github.com/magabrotheeeer/premium-service/internal/lib/metrics"
	"github.com/magabrotheeeer/premium-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/services/account"
	"github.com/magabrotheeeer/premium-service/internal/services/notifier"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
	"github.com/magabrotheeeer/premium-service/internal/services/scheduler"
	"github.com/magabrotheeeer/premium-service/internal/services/trial"
	"github.com/magabrotheeeer/premium-service/internal/storage/driver"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервер и планировщик уведомлений с их зависимостями.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	store     driver.Store
	cache     *cache.Cache
	scheduler *scheduler.Service
	conn      *amqp.Connection
	ch        *amqp.Channel
}

// New подключается к хранилищу, Redis и (при транспорте rabbitmq) к брокеру,
// создаёт сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.subscriptionservice.New"

	store, err := driver.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{
		logger: logger,
		store:  store,
		cache:  cacheRedis,
	}

	publisher, err := app.newPublisher(cfg, store)
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	svc := Services{
		Trial:     trial.NewService(store, logger, m, cfg.Trial.DurationDays),
		Purchase:  purchase.NewService(store, cacheRedis, logger, m, cfg.Purchase, cfg.StatsTTL),
		Scheduler: scheduler.New(store, publisher, logger, m, cfg.Trial.SweepInterval),
		Accounts:  account.NewService(store, cacheRedis, logger, cfg.AccountMemoTTL),
		Inbox:     notifier.NewInbox(store, cfg.Notifications.InboxLimit),
	}
	app.scheduler = svc.Scheduler

	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, svc, tokens, store, registry)

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

func (a *App) newPublisher(cfg *config.Config, store driver.Store) (scheduler.Publisher, error) {
	if cfg.Notifications.Transport != config.TransportRabbitMQ {
		a.logger.Info("trial notifications are written to the inbox directly")
		return notifier.NewInboxPublisher(store, a.logger, cfg.Notifications), nil
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.RetryAttempts, cfg.RabbitMQ.RetryInterval)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.TrialNotificationQueues(cfg.RabbitMQ))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.conn, a.ch = conn, ch
	a.logger.Info("trial notifications are published to rabbitmq",
		slog.String("exchange", cfg.RabbitMQ.Exchange),
		slog.String("routing_key", cfg.RabbitMQ.RoutingKey))
	return notifier.NewQueuePublisher(ch, cfg.RabbitMQ), nil
}

// Run запускает планировщик и HTTP-сервер и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	schedCtx, stopScheduler := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(schedCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}

	stopScheduler()
	wg.Wait()
	a.close(context.Background())
	return err
}

func (a *App) close(ctx context.Context) {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
