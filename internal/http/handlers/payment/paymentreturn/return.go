// Package paymentreturn обрабатывает возврат пользователя из платёжного
// провайдера. Здесь запускается сверка платежа, а пользователь
// перенаправляется на итоговый маршрут без платёжных параметров в адресе.
package paymentreturn

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/paymentreturn"
	"github.com/magabrotheeeer/citycom/internal/services/bootstrap"
	"github.com/magabrotheeeer/citycom/internal/services/reconcile"
	"github.com/magabrotheeeer/citycom/internal/watchdog"
)

// Detector распознаёт возврат из платёжного провайдера в адресе запроса.
type Detector interface {
	Detect(ctx context.Context, u *url.URL) *models.PaymentReturnEvent
}

// Reconciler выполняет сверку платежа и возвращает итог.
type Reconciler interface {
	Reconcile(ctx context.Context, event models.PaymentReturnEvent) models.ReconciliationOutcome
}

// Sessions часть хранилища сессии для выбора итогового маршрута.
type Sessions interface {
	Current() (*models.AuthSession, *models.Profile)
}

// Handler обрабатывает редирект возврата из платёжного провайдера.
type Handler struct {
	log       *slog.Logger
	detector  Detector
	machine   Reconciler
	sessions  Sessions
	tolerance time.Duration
}

// New создает новый экземпляр Handler. tolerance — допуск ожидания сверки:
// по его истечении пользователь перенаправляется, а сверка завершается в фоне.
func New(log *slog.Logger, detector Detector, machine Reconciler, sessions Sessions, tolerance time.Duration) *Handler {
	return &Handler{
		log:       log,
		detector:  detector,
		machine:   machine,
		sessions:  sessions,
		tolerance: tolerance,
	}
}

// ServeHTTP godoc
// @Summary Возврат из платёжного провайдера
// @Description Принимает редирект MercadoPago, запускает сверку платежа и перенаправляет пользователя на итоговый маршрут
// @Tags Payments
// @Param status query string false "Статус платежа от провайдера"
// @Param payment_id query string false "Идентификатор транзакции"
// @Param external_reference query string false "Метаданные платежа"
// @Success 303 "Перенаправление на итоговый маршрут"
// @Router /payments/return [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.return"
	log := h.log.With(slog.String("op", op))

	event := h.detector.Detect(r.Context(), r.URL)
	if event == nil {
		// Либо в адресе нет платёжных параметров, либо этот возврат
		// уже обрабатывается. В обоих случаях сверка не запускается.
		http.Redirect(w, r, redirectTarget(h.fallbackRoute(), r.URL), http.StatusSeeOther)
		return
	}

	log = log.With(sl.Txn(event.TransactionID))

	// Сверка живёт дольше запроса: если допуск истечёт, обработчик
	// отпустит пользователя, а итог доедет через уведомление.
	resultCh := make(chan models.ReconciliationOutcome, 1)
	go func() {
		resultCh <- h.machine.Reconcile(context.WithoutCancel(r.Context()), *event)
	}()

	release := make(chan struct{})
	wd := watchdog.Arm(func() bool { return true }, h.tolerance, func() {
		reconcile.WatchdogReleases.Inc()
		close(release)
	})
	defer wd.Stop()

	select {
	case outcome := <-resultCh:
		http.Redirect(w, r, redirectTarget(h.routeFor(outcome), r.URL), http.StatusSeeOther)
	case <-release:
		log.Warn("verification exceeded tolerance, releasing redirect")
		http.Redirect(w, r, redirectTarget(h.fallbackRoute(), r.URL), http.StatusSeeOther)
	}
}

// routeFor выбирает итоговый маршрут. Подтверждённый и ожидающий платёж
// ведут в личный кабинет, отклонённый и ошибочный — на страницу тарифов,
// отсутствие сессии — на вход.
func (h *Handler) routeFor(outcome models.ReconciliationOutcome) bootstrap.Route {
	if session, _ := h.sessions.Current(); session == nil {
		return bootstrap.RouteAuth
	}
	switch outcome.Result {
	case models.OutcomeActivated, models.OutcomePending:
		return bootstrap.RouteDashboard
	default:
		return bootstrap.RoutePricing
	}
}

// redirectTarget строит адрес редиректа: целевой маршрут плюс уцелевшие
// после вычистки платёжных параметров части запроса. Ни один распознанный
// параметр провайдера не доживает до ответа.
func redirectTarget(route bootstrap.Route, u *url.URL) string {
	target := url.URL{Path: string(route), RawQuery: paymentreturn.CleanURL(u).RawQuery}
	return target.String()
}

func (h *Handler) fallbackRoute() bootstrap.Route {
	if session, _ := h.sessions.Current(); session == nil {
		return bootstrap.RouteAuth
	}
	return bootstrap.RouteDashboard
}
