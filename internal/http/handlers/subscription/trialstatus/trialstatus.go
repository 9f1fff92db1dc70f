// Package trialstatus реализует HTTP-обработчик статуса пробного периода.
package trialstatus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/services/trial"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// Handler обрабатывает запросы статуса пробного периода.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики пробного периода.
type Service interface {
	GetStatus(ctx context.Context, userID string) (*trial.Status, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Статус пробного периода
// @Tags Trial
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "Идентификатор пользователя"
// @Success 200 {object} trial.Status
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/trial-status/{user_id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.trialstatus"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "user_id")
	res, err := h.service.GetStatus(r.Context(), userID)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		log.Error("user not found", slog.String("user_id", userID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to get trial status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get trial status"))
		return
	}

	render.JSON(w, r, response.OKWithData(res))
}
