package history

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
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetPurchaseHistory(ctx context.Context, userID, requestingUserID string) (*purchase.History, error) {
	args := m.Called(ctx, userID, requestingUserID)
	if res := args.Get(0); res != nil {
		return res.(*purchase.History), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestHistoryHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	history := &purchase.History{
		Purchases: []*models.PurchaseRecord{{UserID: "user_1", TransactionID: "tx_1", ReceiptData: "secret"}},
		Total:     1,
	}

	tests := []struct {
		name           string
		result         *purchase.History
		serviceErr     error
		expectedStatus int
		expectedBody   string
	}{
		{name: "успешно", result: history, expectedStatus: http.StatusOK, expectedBody: `"total":1`},
		{name: "чужой пользователь", serviceErr: services.ErrForbidden, expectedStatus: http.StatusForbidden, expectedBody: "user id mismatch"},
		{name: "ошибка сервиса", serviceErr: errors.New("db error"), expectedStatus: http.StatusInternalServerError, expectedBody: "could not list purchases"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			if tt.result != nil {
				mockService.On("GetPurchaseHistory", mock.Anything, "user_1", "user_1").Return(tt.result, nil)
			} else {
				mockService.On("GetPurchaseHistory", mock.Anything, "user_1", "user_1").Return(nil, tt.serviceErr)
			}

			req := httptest.NewRequest(http.MethodGet, "/subscriptions/history/user_1", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("user_id", "user_1")
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			ctx = context.WithValue(ctx, middlewarectx.UserID, "user_1")
			w := httptest.NewRecorder()

			New(logger, mockService).ServeHTTP(w, req.WithContext(ctx))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			assert.NotContains(t, w.Body.String(), "secret")
			mockService.AssertExpectations(t)
		})
	}
}
