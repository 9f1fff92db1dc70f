package notifier

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/premium-service/internal/models"
)

// QueuePublisher публикует уведомления в обменник RabbitMQ.
type QueuePublisher struct {
	ch         rabbitmq.Publisher
	exchange   string
	routingKey string
}

// NewQueuePublisher создаёт издателя в очередь.
func NewQueuePublisher(ch rabbitmq.Publisher, cfg config.RabbitMQ) *QueuePublisher {
	return &QueuePublisher{
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}
}

// Publish отправляет уведомление в очередь. Запись во входящие выполнит notification-sender.
func (p *QueuePublisher) Publish(_ context.Context, payload models.NotificationPayload) error {
	const op = "services.notifier.QueuePublisher.Publish"
	if err := rabbitmq.PublishMessage(p.ch, p.exchange, p.routingKey, payload); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
