// Package notifier доставляет уведомления планировщика во входящие пользователя:
// напрямую в хранилище или через очередь RabbitMQ, которую читает notification-sender.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
)

// InboxStore хранилище входящих уведомлений.
type InboxStore interface {
	InsertNotification(ctx context.Context, n models.Notification) error
}

// InboxPublisher записывает уведомления прямо во входящие.
type InboxPublisher struct {
	store InboxStore
	log   *slog.Logger
	cfg   config.Notifications
	now   func() time.Time
}

// NewInboxPublisher создаёт издателя во входящие.
func NewInboxPublisher(store InboxStore, log *slog.Logger, cfg config.Notifications) *InboxPublisher {
	return &InboxPublisher{
		store: store,
		log:   log,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NotificationID возвращает идентификатор вида notif_<12 hex>.
func NotificationID() string {
	return "notif_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Publish сохраняет уведомление во входящих адресата.
func (p *InboxPublisher) Publish(ctx context.Context, payload models.NotificationPayload) error {
	const op = "services.notifier.InboxPublisher.Publish"

	n := models.Notification{
		ID:           NotificationID(),
		Title:        payload.Title,
		Message:      payload.Message,
		Type:         payload.Type,
		Icon:         p.cfg.Icon,
		TargetUserID: payload.TargetUserID,
		CreatedAt:    p.now(),
		CreatedBy:    p.cfg.CreatedBy,
	}
	if err := p.store.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleMessage обрабатывает сообщение из очереди уведомлений.
func (p *InboxPublisher) HandleMessage(body []byte) error {
	var payload models.NotificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		p.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	if payload.TargetUserID == "" {
		p.log.Error("notification without target user dropped", slog.String("title", payload.Title))
		return nil
	}
	if err := p.Publish(context.Background(), payload); err != nil {
		return err
	}
	p.log.Info("notification delivered", slog.String("user_id", payload.TargetUserID))
	return nil
}

// InboxLister читает входящие уведомления.
type InboxLister interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
}

// Inbox отдаёт входящие уведомления пользователя, новые первыми.
type Inbox struct {
	store InboxLister
	limit int
}

// NewInbox создаёт читателя входящих, возвращающего не больше limit уведомлений.
func NewInbox(store InboxLister, limit int) *Inbox {
	return &Inbox{store: store, limit: limit}
}

// List возвращает уведомления пользователя userID.
func (i *Inbox) List(ctx context.Context, userID string) ([]*models.Notification, error) {
	const op = "services.notifier.Inbox.List"
	res, err := i.store.ListNotifications(ctx, userID, i.limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res == nil {
		res = []*models.Notification{}
	}
	return res, nil
}
