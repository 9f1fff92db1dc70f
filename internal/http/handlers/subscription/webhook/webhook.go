// Package webhook реализует приём уведомлений магазинов приложений (App Store, Google Play).
// Уведомления только журналируются, подпись не проверяется.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
)

const maxPayloadSize = 1 << 20

// Handler принимает уведомления одной платформы.
type Handler struct {
	log      *slog.Logger
	service  Service
	platform models.Platform
}

// Service описывает интерфейс журналирования уведомлений.
type Service interface {
	HandleWebhook(ctx context.Context, platform models.Platform, payload []byte) (string, error)
}

// New создает новый Handler для уведомлений платформы platform.
func New(log *slog.Logger, service Service, platform models.Platform) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		platform: platform,
	}
}

// ServeHTTP godoc
// @Summary Уведомление магазина приложений
// @Description Сохраняет уведомление App Store (/webhook/apple) или Google Play (/webhook/google) в журнал.
// @Tags Webhooks
// @Accept  json
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректное тело уведомления"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/webhook/apple [post]
// @Router /subscriptions/webhook/google [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("platform", string(h.platform)),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		log.Error("failed to read request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	notificationType, err := h.service.HandleWebhook(r.Context(), h.platform, payload)
	switch {
	case errors.Is(err, purchase.ErrMalformedWebhook):
		log.Error("malformed store notification", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	case err != nil:
		log.Error("failed to log store notification", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process notification"))
		return
	}

	log.Debug("store notification logged", slog.String("notification_type", notificationType))
	render.JSON(w, r, response.Received())
}
