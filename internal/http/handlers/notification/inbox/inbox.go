// Package inbox реализует HTTP-обработчик входящих уведомлений текущего пользователя.
package inbox

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
)

// Handler отдаёт входящие уведомления.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс чтения входящих.
type Service interface {
	List(ctx context.Context, userID string) ([]*models.Notification, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Входящие уведомления
// @Description Возвращает уведомления текущего пользователя, новые первыми.
// @Tags Notifications
// @Produce  json
// @Security BearerAuth
// @Success 200 {array} models.Notification
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /notifications [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notification.inbox"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	res, err := h.service.List(r.Context(), middlewarectx.UserIDFromContext(r.Context()))
	if err != nil {
		log.Error("failed to list notifications", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list notifications"))
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
