package rabbitmq

import "github.com/magabrotheeeer/premium-service/internal/config"

// QueueConfig очередь и ключ маршрутизации, с которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// TrialNotificationQueues возвращает очереди для уведомлений о пробном периоде.
func TrialNotificationQueues(cfg config.RabbitMQ) []QueueConfig {
	return []QueueConfig{
		{QueueName: cfg.Queue, RoutingKey: cfg.RoutingKey},
	}
}
