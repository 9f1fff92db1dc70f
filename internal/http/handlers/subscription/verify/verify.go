// Package verify реализует HTTP-обработчик проверки покупки в магазине приложений.
//
// Handler принимает данные покупки, проверяет, что пользователь регистрирует покупку для себя,
// и выдаёт премиум-доступ. Повторная отправка той же транзакции возвращает already_processed.
package verify

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
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

// Handler обрабатывает запросы на проверку покупки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики проверки покупки.
type Service interface {
	VerifyPurchase(ctx context.Context, req purchase.VerifyRequest, requestingUserID string) (*purchase.VerifyResult, error)
}

// Request тело запроса на проверку покупки.
type Request struct {
	UserID        string `json:"user_id" validate:"required"`
	Platform      string `json:"platform" validate:"required,oneof=ios android"`
	ProductID     string `json:"product_id" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required"`
	ReceiptData   string `json:"receipt_data" validate:"required"`
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
// @Summary Проверить покупку
// @Description Регистрирует покупку и выдаёт премиум-доступ. Повтор той же транзакции ничего не меняет.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Данные покупки"
// @Success 200 {object} purchase.VerifyResult
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужой идентификатор пользователя"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscriptions/verify-purchase [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.verify"
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

	res, err := h.service.VerifyPurchase(r.Context(), purchase.VerifyRequest{
		UserID:        req.UserID,
		Platform:      models.Platform(req.Platform),
		ProductID:     req.ProductID,
		TransactionID: req.TransactionID,
		ReceiptData:   req.ReceiptData,
	}, middlewarectx.UserIDFromContext(r.Context()))
	switch {
	case errors.Is(err, services.ErrForbidden):
		log.Error("user id mismatch", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("user id mismatch"))
		return
	case errors.Is(err, storage.ErrUserNotFound):
		log.Error("user not found", sl.Err(err))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to verify purchase", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not verify purchase"))
		return
	}

	log.Info("purchase processed",
		slog.String("transaction_id", req.TransactionID),
		slog.Bool("already_processed", res.AlreadyProcessed),
	)
	render.JSON(w, r, response.OKWithData(res))
}
