// Package starttrial реализует HTTP-обработчик запуска пробного периода.
package starttrial

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
	"github.com/magabrotheeeer/premium-service/internal/services/trial"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// Handler обрабатывает запросы на запуск пробного периода.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики пробного периода.
type Service interface {
	StartTrial(ctx context.Context, userID, requestingUserID string) (*trial.Grant, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Запустить пробный период
// @Description Открывает 7-дневный премиум-доступ. Пробный период доступен один раз.
// @Tags Trial
// @Produce  json
// @Security BearerAuth
// @Param user_id path string true "Идентификатор пользователя"
// @Success 200 {object} trial.Grant
// @Failure 400 {object} response.ErrorResponse "Пробный период уже использован или есть подписка"
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/start-trial/{user_id} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.starttrial"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID := chi.URLParam(r, "user_id")
	grant, err := h.service.StartTrial(r.Context(), userID, middlewarectx.UserIDFromContext(r.Context()))
	switch {
	case errors.Is(err, services.ErrForbidden):
		log.Error("user id mismatch", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("user id mismatch"))
		return
	case errors.Is(err, trial.ErrTrialAlreadyUsed):
		log.Info("trial already used", slog.String("user_id", userID))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("trial already used"))
		return
	case errors.Is(err, trial.ErrAlreadyPremium):
		log.Info("user already premium", slog.String("user_id", userID))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("user already has an active subscription"))
		return
	case errors.Is(err, storage.ErrUserNotFound):
		log.Error("user not found", slog.String("user_id", userID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to start trial", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not start trial"))
		return
	}

	log.Info("trial started", slog.String("user_id", userID))
	render.JSON(w, r, response.OKWithData(grant))
}
