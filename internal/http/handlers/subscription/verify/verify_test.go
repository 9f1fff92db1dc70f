package verify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/premium-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
	"github.com/magabrotheeeer/premium-service/internal/storage"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) VerifyPurchase(ctx context.Context, req purchase.VerifyRequest, requestingUserID string) (*purchase.VerifyResult, error) {
	args := m.Called(ctx, req, requestingUserID)
	if res := args.Get(0); res != nil {
		return res.(*purchase.VerifyResult), args.Error(1)
	}
	return nil, args.Error(1)
}

const validBody = `{"user_id":"user_1","platform":"ios","product_id":"premium_monthly","transaction_id":"tx_1","receipt_data":"r"}`

var expectedRequest = purchase.VerifyRequest{
	UserID:        "user_1",
	Platform:      models.PlatformIOS,
	ProductID:     "premium_monthly",
	TransactionID: "tx_1",
	ReceiptData:   "r",
}

func TestVerifyHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная проверка",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("VerifyPurchase", mock.Anything, expectedRequest, "user_1").Return(&purchase.VerifyResult{
					Success: true,
					Message: purchase.MessageVerified,
					Subscription: &purchase.SubscriptionInfo{
						IsActive: true, Tier: models.TierPremium, ProductID: "premium_monthly",
						ExpiresAt: time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC),
					},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"expires_at":"2025-04-09T12:00:00Z"`,
		},
		{
			name: "повторная транзакция",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("VerifyPurchase", mock.Anything, expectedRequest, "user_1").Return(&purchase.VerifyResult{
					Success: true, Message: purchase.MessageAlreadyProcessed, AlreadyProcessed: true,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"already_processed":true`,
		},
		{
			name:           "некорректный JSON",
			body:           `{`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:           "неизвестная платформа",
			body:           `{"user_id":"user_1","platform":"web","product_id":"p","transaction_id":"t","receipt_data":"r"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Platform must be one of: ios android`,
		},
		{
			name: "чужой пользователь",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("VerifyPurchase", mock.Anything, expectedRequest, "user_1").Return(nil, services.ErrForbidden)
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"status":"Error","error":"user id mismatch"}`,
		},
		{
			name: "пользователь не найден",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("VerifyPurchase", mock.Anything, expectedRequest, "user_1").Return(nil, storage.ErrUserNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"user not found"}`,
		},
		{
			name: "ошибка сервиса",
			body: validBody,
			setupMock: func(m *MockService) {
				m.On("VerifyPurchase", mock.Anything, expectedRequest, "user_1").Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not verify purchase"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions/verify-purchase", strings.NewReader(tt.body))
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserID, "user_1"))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
