// Package stats реализует административный обработчик статистики подписок.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
)

// Handler отдаёт агрегированную статистику подписок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс расчёта статистики.
type Service interface {
	GetStats(ctx context.Context) (*models.SubscriptionStats, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Статистика подписок
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} models.SubscriptionStats
// @Failure 403 {object} response.ErrorResponse "Требуются права администратора"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/admin/stats [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.admin.stats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res, err := h.service.GetStats(r.Context())
	if err != nil {
		log.Error("failed to get stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get stats"))
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
