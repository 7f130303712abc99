package citycom

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/citycom/internal/config"
	"github.com/magabrotheeeer/citycom/internal/http/handlers/auth/logout"
	bootstraphandler "github.com/magabrotheeeer/citycom/internal/http/handlers/bootstrap"
	"github.com/magabrotheeeer/citycom/internal/http/handlers/health"
	"github.com/magabrotheeeer/citycom/internal/http/handlers/history"
	"github.com/magabrotheeeer/citycom/internal/http/handlers/notices"
	"github.com/magabrotheeeer/citycom/internal/http/handlers/payment/paymentcreate"
	paymentreturnhandler "github.com/magabrotheeeer/citycom/internal/http/handlers/payment/paymentreturn"
	"github.com/magabrotheeeer/citycom/internal/http/handlers/plans"
	"github.com/magabrotheeeer/citycom/internal/http/middlewarectx"
	"github.com/magabrotheeeer/citycom/internal/lib/jwt"
	"github.com/magabrotheeeer/citycom/internal/paymentprovider"
	"github.com/magabrotheeeer/citycom/internal/paymentreturn"
	"github.com/magabrotheeeer/citycom/internal/services/bootstrap"
	"github.com/magabrotheeeer/citycom/internal/services/notify"
	"github.com/magabrotheeeer/citycom/internal/services/reconcile"
	"github.com/magabrotheeeer/citycom/internal/session"
	"github.com/magabrotheeeer/citycom/internal/storage/repository"
)

// RouteDeps зависимости маршрутов приложения.
type RouteDeps struct {
	DB               *repository.Storage
	TokenMaker       jwt.Maker
	Provider         *paymentprovider.Client
	Sessions         *session.Store
	Machine          *reconcile.Machine
	Detector         *paymentreturn.Detector
	BootstrapService *bootstrap.Service
	Notices          *notify.Service
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, deps RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	returnURL := cfg.SiteURL + "/api/v1/payments/return"

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Get("/health", health.New(logger, deps.DB).ServeHTTP)
		r.Get("/bootstrap", bootstraphandler.New(
			logger, deps.BootstrapService, cfg.LoadingTolerance).ServeHTTP)
		r.Get("/plans", plans.New(logger, deps.DB).ServeHTTP)

		// Возврат из платёжного провайдера приходит браузерным редиректом,
		// без заголовка Authorization.
		r.Get("/payments/return", paymentreturnhandler.New(
			logger, deps.Detector, deps.Machine, deps.Sessions, cfg.VerifyingTolerance).ServeHTTP)

		// Группа с проверкой сессии
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.SessionMiddleware(deps.TokenMaker, deps.Sessions, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/payments", paymentcreate.New(logger, deps.Provider, deps.DB, returnURL).ServeHTTP)
			r.Get("/subscriptions/history", history.New(logger, deps.DB).ServeHTTP)
			r.Get("/notices", notices.New(logger, deps.Notices).List)
			r.Delete("/notices/{id}", notices.New(logger, deps.Notices).Dismiss)
			r.Post("/auth/logout", logout.New(logger, deps.Sessions).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
