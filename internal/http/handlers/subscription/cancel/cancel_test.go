package cancel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/premium-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CancelSubscription(ctx context.Context, userID, requestingUserID string) error {
	return m.Called(ctx, userID, requestingUserID).Error(0)
}

func TestCancelHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		serviceErr     error
		expectedStatus int
		expectedBody   string
	}{
		{name: "успешно", expectedStatus: http.StatusOK, expectedBody: purchase.MessageCancelled},
		{name: "чужой пользователь", serviceErr: services.ErrForbidden, expectedStatus: http.StatusForbidden, expectedBody: "user id mismatch"},
		{name: "нет подписки", serviceErr: purchase.ErrNoSubscription, expectedStatus: http.StatusBadRequest, expectedBody: "no paid subscription"},
		{name: "пользователь не найден", serviceErr: storage.ErrUserNotFound, expectedStatus: http.StatusNotFound, expectedBody: "user not found"},
		{name: "ошибка сервиса", serviceErr: errors.New("db error"), expectedStatus: http.StatusInternalServerError, expectedBody: "could not cancel subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			mockService.On("CancelSubscription", mock.Anything, "user_1", "user_1").Return(tt.serviceErr)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/cancel/user_1", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("user_id", "user_1")
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			ctx = context.WithValue(ctx, middlewarectx.UserID, "user_1")
			w := httptest.NewRecorder()

			New(logger, mockService).ServeHTTP(w, req.WithContext(ctx))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
