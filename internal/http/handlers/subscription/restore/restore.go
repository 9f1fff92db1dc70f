// Package restore реализует HTTP-обработчик восстановления покупок.
package restore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/premium-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-service/internal/http/response"
	"github.com/magabrotheeeer/premium-service/internal/lib/sl"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
)

// Handler обрабатывает запросы на восстановление покупок.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики восстановления покупок.
type Service interface {
	RestorePurchases(ctx context.Context, userID string, platform models.Platform, receipts []string, requestingUserID string) (*purchase.RestoreResult, error)
}

// Request тело запроса на восстановление.
type Request struct {
	UserID   string   `json:"user_id" validate:"required"`
	Platform string   `json:"platform" validate:"required,oneof=ios android"`
	Receipts []string `json:"receipts"`
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Восстановить покупки
// @Description Фиксирует попытку восстановления по каждому чеку и возвращает премиум-доступ, если у пользователя есть проверенные покупки.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Чеки для восстановления"
// @Success 200 {object} purchase.RestoreResult
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/restore [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.restore"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.RestorePurchases(r.Context(), req.UserID, models.Platform(req.Platform), req.Receipts,
		middlewarectx.UserIDFromContext(r.Context()))
	switch {
	case errors.Is(err, services.ErrForbidden):
		log.Error("user id mismatch", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("user id mismatch"))
		return
	case err != nil:
		log.Error("failed to restore purchases", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not restore purchases"))
		return
	}

	log.Info("restore processed", slog.Int("restored_count", res.RestoredCount))
	render.JSON(w, r, response.OKWithData(res))
}
