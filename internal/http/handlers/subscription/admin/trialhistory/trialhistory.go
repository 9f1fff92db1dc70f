// Package trialhistory реализует административный обработчик истории уведомлений о пробном периоде.
package trialhistory

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

// Handler отдаёт реестр отправленных уведомлений и активные пробные периоды.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс планировщика.
type Service interface {
	History(ctx context.Context) (*scheduler.History, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История уведомлений о пробном периоде
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} scheduler.History
// @Failure 403 {object} response.ErrorResponse "Требуются права администратора"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/admin/trial-notifications [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.admin.trialhistory"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res, err := h.service.History(r.Context())
	if err != nil {
		log.Error("failed to get notification history", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get notification history"))
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
