package purchase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/premium-service/internal/models"
)

// ErrMalformedWebhook тело вебхука не удалось разобрать.
var ErrMalformedWebhook = errors.New("malformed webhook payload")

type appleNotification struct {
	NotificationType string `json:"notificationType"`
}

type googlePush struct {
	Message struct {
		Data string `json:"data"`
	} `json:"message"`
}

type googleNotification struct {
	SubscriptionNotification struct {
		NotificationType int `json:"notificationType"`
	} `json:"subscriptionNotification"`
}

// HandleWebhook сохраняет уведомление магазина в журнал и возвращает его тип.
// Подпись уведомления не проверяется, состояние подписки не меняется.
func (s *Service) HandleWebhook(ctx context.Context, platform models.Platform, payload []byte) (string, error) {
	const op = "services.purchase.HandleWebhook"

	if !json.Valid(payload) {
		return "", fmt.Errorf("%s: %w", op, ErrMalformedWebhook)
	}

	entry := models.WebhookLog{
		ID:         uuid.NewString(),
		Platform:   platform,
		Payload:    payload,
		ReceivedAt: s.now(),
	}
	notificationType, parseErr := parseNotificationType(platform, payload)
	entry.NotificationType = notificationType

	if err := s.repo.InsertWebhookLog(ctx, entry); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if parseErr != nil {
		return "", fmt.Errorf("%s: %w", op, parseErr)
	}

	s.log.Info("store notification received",
		slog.String("platform", string(platform)),
		slog.String("notification_type", notificationType),
	)
	return notificationType, nil
}

func parseNotificationType(platform models.Platform, payload []byte) (string, error) {
	switch platform {
	case models.PlatformIOS:
		var n appleNotification
		if err := json.Unmarshal(payload, &n); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
		return n.NotificationType, nil
	case models.PlatformAndroid:
		var push googlePush
		if err := json.Unmarshal(payload, &push); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
		if push.Message.Data == "" {
			return "", nil
		}
		decoded, err := base64.StdEncoding.DecodeString(push.Message.Data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
		var n googleNotification
		if err := json.Unmarshal(decoded, &n); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
		if n.SubscriptionNotification.NotificationType == 0 {
			return "", nil
		}
		return strconv.Itoa(n.SubscriptionNotification.NotificationType), nil
	}
	return "", nil
}
