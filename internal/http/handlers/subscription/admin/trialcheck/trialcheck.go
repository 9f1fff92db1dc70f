// Package trialcheck реализует ручной запуск прохода планировщика уведомлений.
package trialcheck

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/services/scheduler"
)

// Handler запускает проход планировщика вне расписания.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс планировщика.
type Service interface {
	TriggerNow(ctx context.Context) (*scheduler.SweepResult, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Проверить пробные периоды сейчас
// @Description Выполняет внеочередной проход планировщика уведомлений.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} scheduler.SweepResult
// @Failure 403 {object} response.ErrorResponse "Требуются права администратора"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/admin/trigger-trial-check [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.admin.trialcheck"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res, err := h.service.TriggerNow(r.Context())
	if err != nil {
		log.Error("trial sweep failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check trials"))
		return
	}

	log.Info("manual trial sweep finished",
		slog.Int("users_checked", res.UsersChecked),
		slog.Int("notifications_sent", len(res.NotificationsSent)))
	render.JSON(w, r, response.OKWithData(res))
}
