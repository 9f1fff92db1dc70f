// Package subscriptionservice собирает HTTP API премиум-подписки и планировщик уведомлений.
package subscriptionservice

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/premium-service/internal/config"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/notification/inbox"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/admin/stats"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/admin/trialcheck"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/admin/trialhistory"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/history"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/restore"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/starttrial"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/trialstatus"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/verify"
	"github.com/magabrotheeeer/premium-service/internal/http/handlers/subscription/webhook"
	"github.com/magabrotheeeer/premium-service/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-service/internal/models"
	"github.com/magabrotheeeer/premium-service/internal/services/account"
	"github.com/magabrotheeeer/premium-service/internal/services/notifier"
	"github.com/magabrotheeeer/premium-service/internal/services/purchase"
	"github.com/magabrotheeeer/premium-service/internal/services/scheduler"
	"github.com/magabrotheeeer/premium-service/internal/services/trial"
	"github.com/magabrotheeeer/premium-service/internal/storage/driver"
)

// Services сервисы, которые обслуживает HTTP API.
type Services struct {
	Trial     *trial.Service
	Purchase  *purchase.Service
	Scheduler *scheduler.Service
	Accounts  *account.Service
	Inbox     *notifier.Inbox
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, svc Services,
	tokens middlewarectx.TokenParser, store driver.Store, gatherer prometheus.Gatherer) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limiter := middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit, cfg.RateBurst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger, store).ServeHTTP)

		// Уведомления магазинов приложений (без аутентификации)
		r.With(limiter).Post("/subscriptions/webhook/apple", webhook.New(logger, svc.Purchase, models.PlatformIOS).ServeHTTP)
		r.With(limiter).Post("/subscriptions/webhook/google", webhook.New(logger, svc.Purchase, models.PlatformAndroid).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokens, svc.Accounts, logger))

			r.Get("/subscriptions/status/{user_id}", status.New(logger, svc.Purchase).ServeHTTP)
			r.Get("/subscriptions/history/{user_id}", history.New(logger, svc.Purchase).ServeHTTP)
			r.Get("/subscriptions/trial-status/{user_id}", trialstatus.New(logger, svc.Trial).ServeHTTP)
			r.Get("/notifications", inbox.New(logger, svc.Inbox).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(limiter)
				r.Post("/subscriptions/verify-purchase", verify.New(logger, svc.Purchase).ServeHTTP)
				r.Post("/subscriptions/restore", restore.New(logger, svc.Purchase).ServeHTTP)
				r.Post("/subscriptions/cancel/{user_id}", cancel.New(logger, svc.Purchase).ServeHTTP)
				r.Post("/subscriptions/start-trial/{user_id}", starttrial.New(logger, svc.Trial).ServeHTTP)
			})

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminOnly(logger))
				r.Get("/subscriptions/admin/stats", stats.New(logger, svc.Purchase).ServeHTTP)
				r.Post("/subscriptions/admin/trigger-trial-check", trialcheck.New(logger, svc.Scheduler).ServeHTTP)
				r.Get("/subscriptions/admin/trial-notifications", trialhistory.New(logger, svc.Scheduler).ServeHTTP)
			})
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
