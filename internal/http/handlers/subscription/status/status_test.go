package status

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

	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetSubscriptionStatus(ctx context.Context, userID string) (*purchase.Status, error) {
	args := m.Called(ctx, userID)
	if res := args.Get(0); res != nil {
		return res.(*purchase.Status), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStatusHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "премиум",
			setupMock: func(m *MockService) {
				m.On("GetSubscriptionStatus", mock.Anything, "user_1").
					Return(&purchase.Status{IsActive: true, Tier: models.TierPremium, DaysRemaining: 12}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"is_active":true,"subscription_tier":"premium"`,
		},
		{
			name: "пользователь не найден",
			setupMock: func(m *MockService) {
				m.On("GetSubscriptionStatus", mock.Anything, "user_1").Return(nil, storage.ErrUserNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `user not found`,
		},
		{
			name: "ошибка сервиса",
			setupMock: func(m *MockService) {
				m.On("GetSubscriptionStatus", mock.Anything, "user_1").Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not get subscription status`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			req := httptest.NewRequest(http.MethodGet, "/subscriptions/status/user_1", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("user_id", "user_1")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()

			New(logger, mockService).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
