// Package cancel реализует HTTP-обработчик отмены автопродления подписки.
// Сама подписка в магазине отменяется на устройстве, сервис только отмечает отмену.
package cancel

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
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// Handler обрабатывает запросы на отмену подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	CancelSubscription(ctx context.Context, userID, requestingUserID string) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отменить автопродление
// @Description Отключает автопродление. Доступ сохраняется до окончания оплаченного периода.
// @Tags Subscriptions
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "Идентификатор пользователя"
// @Success 200 {object} map[string]any
// @Failure 400 {object} response.ErrorResponse "Нет оплаченной подписки"
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/cancel/{user_id} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "user_id")
	err := h.service.CancelSubscription(r.Context(), userID, middlewarectx.UserIDFromContext(r.Context()))
	switch {
	case errors.Is(err, services.ErrForbidden):
		log.Error("user id mismatch", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("user id mismatch"))
		return
	case errors.Is(err, purchase.ErrNoSubscription):
		log.Error("no subscription to cancel", slog.String("user_id", userID))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("no paid subscription"))
		return
	case errors.Is(err, storage.ErrUserNotFound):
		log.Error("user not found", slog.String("user_id", userID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not cancel subscription"))
		return
	}

	log.Info("subscription cancelled", slog.String("user_id", userID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"success": true,
		"message": purchase.MessageCancelled,
	}))
}
