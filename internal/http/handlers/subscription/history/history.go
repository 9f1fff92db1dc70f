// Package history реализует HTTP-обработчик истории покупок пользователя.
package history

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
)

// Handler обрабатывает запросы истории покупок.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики истории покупок.
type Service interface {
	GetPurchaseHistory(ctx context.Context, userID, requestingUserID string) (*purchase.History, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История покупок
// @Description Возвращает до 50 последних покупок пользователя без данных чеков.
// @Tags Subscriptions
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "Идентификатор пользователя"
// @Success 200 {object} purchase.History
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/history/{user_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.history"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "user_id")
	res, err := h.service.GetPurchaseHistory(r.Context(), userID, middlewarectx.UserIDFromContext(r.Context()))
	switch {
	case errors.Is(err, services.ErrForbidden):
		log.Error("user id mismatch", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("user id mismatch"))
		return
	case err != nil:
		log.Error("failed to list purchases", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list purchases"))
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
