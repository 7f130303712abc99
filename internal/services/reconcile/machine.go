// Package reconcile реализует машину сверки платежа — последовательность
// "обнаружение → классификация → сверка с бекендом → применение тарифа →
// уведомление" с защитой от повторного применения и восстановлением после сбоев.
//
// Состояния: Idle → Detected → Verifying → {Activated, Rejected, Pending,
// Error} → Idle. Терминальные состояния возвращают управление обычной
// навигации. Переходы выполняются только методами прогона: сверка может
// начаться только из состояния Detected.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/services/verification"
)

// State состояние прогона машины сверки.
type State int

// Состояния машины сверки.
const (
	StateIdle State = iota
	StateDetected
	StateVerifying
	StateActivated
	StateRejected
	StatePending
	StateError
)

// Verifier определяет процедуру сверки на бекенде.
type Verifier interface {
	VerifyPayment(ctx context.Context, transactionID string) error
}

// ProfileLoader загружает снимок профиля после подтверждённой оплаты.
type ProfileLoader interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Sessions часть хранилища сессии, используемая машиной.
type Sessions interface {
	Current() (*models.AuthSession, *models.Profile)
	SetProfile(profile *models.Profile)
}

// Notifier принимает итоговое сообщение для пользователя.
type Notifier interface {
	Push(ctx context.Context, userID, kind, message string) error
}

// Machine машина сверки платежа. Долгоживущий компонент; каждый прогон
// обрабатывает одно событие возврата. Не более одной сверки выполняется
// на транзакцию: повторное событие отсекается защёлкой детектора ещё до
// первого перехода, а не внутренней блокировкой машины.
type Machine struct {
	verifier Verifier
	profiles ProfileLoader
	sessions Sessions
	notices  Notifier
	log      *slog.Logger

	// Число сверок в состоянии Verifying. Потребляется сторожевым таймером
	// и слушателем событий сессии для подавления конкурирующих редиректов.
	verifying atomic.Int64
}

// New создает новую машину сверки.
func New(verifier Verifier, profiles ProfileLoader, sessions Sessions, notices Notifier, log *slog.Logger) *Machine {
	return &Machine{
		verifier: verifier,
		profiles: profiles,
		sessions: sessions,
		notices:  notices,
		log:      log,
	}
}

// InProgress сообщает, выполняется ли сейчас сверка платежа.
// Пока сверка идёт, навигационные побочные эффекты других машин
// (например, редирект после входа) подавляются.
func (m *Machine) InProgress() bool {
	return m.verifying.Load() > 0
}

// run хранит состояние одного прогона. Переходы только через методы.
type run struct {
	state State
}

func (r *run) to(next State) error {
	allowed := map[State][]State{
		StateIdle:     {StateDetected},
		StateDetected: {StateVerifying, StateActivated, StateRejected, StatePending, StateError},
		StateVerifying: {
			StateActivated, StateRejected, StatePending, StateError,
		},
	}
	for _, s := range allowed[r.state] {
		if s == next {
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("reconcile: illegal transition %d -> %d", r.state, next)
}

// Reconcile обрабатывает одно событие возврата из платёжного провайдера
// и возвращает ровно один итог. Все ошибки бекенда и сети перехватываются
// здесь и превращаются в итог error; наружу ничего не пробрасывается.
func (m *Machine) Reconcile(ctx context.Context, event models.PaymentReturnEvent) models.ReconciliationOutcome {
	const op = "reconcile.Reconcile"
	log := m.log.With(slog.String("op", op), sl.Txn(event.TransactionID))

	r := &run{state: StateIdle}
	if err := r.to(StateDetected); err != nil {
		log.Error("illegal transition", sl.Err(err))
		return m.finish(ctx, log, r, event, errorOutcome(event.TransactionID,
			"No pudimos procesar el pago. Contactá a soporte indicando el pago "+event.TransactionID+"."))
	}

	// Статус, который провайдер уже пометил отрицательным,
	// не сверяется с бекендом.
	switch event.Status {
	case models.StatusRejected:
		return m.finish(ctx, log, r, event, models.ReconciliationOutcome{
			Result:        models.OutcomeRejected,
			Message:       "El pago fue rechazado o cancelado. Podés intentarlo nuevamente.",
			TransactionID: event.TransactionID,
		})
	case models.StatusUnknown:
		return m.finish(ctx, log, r, event, errorOutcome(event.TransactionID,
			"El estado del pago es desconocido. Contactá a soporte indicando el pago "+event.TransactionID+"."))
	case models.StatusPending:
		// Изменений тарифа ещё не ожидается, сверка не выполняется.
		return m.finish(ctx, log, r, event, models.ReconciliationOutcome{
			Result:        models.OutcomePending,
			Message:       "Tu pago está en proceso. Te avisaremos cuando se acredite.",
			TransactionID: event.TransactionID,
		})
	case models.StatusApproved:
	}

	// Ошибка обнаружения: blob метаданных есть, но нечитаем.
	// Никогда не глотается молча — пользователь видит идентификатор
	// транзакции для ручного разбора в поддержке.
	if event.RawReference != "" && event.Reference == nil {
		log.Error("malformed reference blob, verification skipped")
		return m.finish(ctx, log, r, event, errorOutcome(event.TransactionID,
			"No pudimos leer los datos del pago. Contactá a soporte indicando el pago "+event.TransactionID+"."))
	}

	if event.TransactionID == "" {
		log.Error("approved return without transaction id")
		return m.finish(ctx, log, r, event, errorOutcome("",
			"El proveedor no informó el identificador del pago. Contactá a soporte."))
	}

	return m.verify(ctx, log, r, event)
}

func (m *Machine) verify(ctx context.Context, log *slog.Logger, r *run, event models.PaymentReturnEvent) models.ReconciliationOutcome {
	if err := r.to(StateVerifying); err != nil {
		log.Error("illegal transition", sl.Err(err))
		return m.finish(ctx, log, r, event, errorOutcome(event.TransactionID,
			"No pudimos procesar el pago. Contactá a soporte indicando el pago "+event.TransactionID+"."))
	}

	// Флаг "идёт оплата" обязан сброситься на любом пути выхода,
	// включая панику: интерфейс не должен застревать на экране сверки.
	m.verifying.Add(1)
	defer m.verifying.Add(-1)

	if err := m.verifier.VerifyPayment(ctx, event.TransactionID); err != nil {
		log.Error("verification failed", sl.Err(err))
		if errors.Is(err, verification.ErrNotApproved) {
			return m.finish(ctx, log, r, event, errorOutcome(event.TransactionID,
				"El proveedor no confirmó el pago "+event.TransactionID+". No se realizaron cambios en tu plan."))
		}
		return m.finish(ctx, log, r, event, errorOutcome(event.TransactionID,
			"No pudimos verificar el pago "+event.TransactionID+". Contactá a soporte para resolverlo manualmente."))
	}

	// Перезагрузка профиля строго до объявления итога activated,
	// чтобы пользователь не увидел устаревший тариф.
	m.refreshProfile(ctx, log, event)

	outcome := models.ReconciliationOutcome{
		Result:        models.OutcomeActivated,
		Message:       "¡Tu suscripción fue activada con éxito!",
		TransactionID: event.TransactionID,
	}
	if event.Reference != nil {
		outcome.TargetPlanID = event.Reference.PlanID
	}
	return m.finish(ctx, log, r, event, outcome)
}

// refreshProfile перечитывает профиль затронутого пользователя. Предпочитается
// пользователь текущей сессии; если сессии нет (редирект провайдера
// идентификации мог гоняться с платёжным редиректом), берётся пользователь
// из метаданных платежа. Неудача перечитывания не блокирует итог:
// показываются устаревшие, но существующие данные.
func (m *Machine) refreshProfile(ctx context.Context, log *slog.Logger, event models.PaymentReturnEvent) {
	session, _ := m.sessions.Current()

	userID := ""
	if session != nil {
		userID = session.UserID
	} else if event.Reference != nil {
		userID = event.Reference.UserID
	}
	if userID == "" {
		log.Warn("no user to refresh profile for")
		return
	}

	profile, err := m.profiles.GetProfile(ctx, userID)
	if err != nil {
		log.Warn("profile refresh failed, stale data kept", sl.Err(err))
		return
	}
	if profile == nil {
		log.Warn("profile missing after activation", slog.String("user_id", userID))
		return
	}

	// Поздний результат: если пользователь успел выйти или смениться,
	// снимок не трогаем — итог применять уже не к кому.
	session, _ = m.sessions.Current()
	if session != nil && session.UserID != profile.ID {
		log.Info("session changed during verification, profile snapshot not applied")
		return
	}
	m.sessions.SetProfile(profile)
}

// finish завершает прогон: фиксирует терминальное состояние, отправляет
// пользователю ровно одно сообщение об итоге и обновляет метрики.
func (m *Machine) finish(ctx context.Context, log *slog.Logger, r *run, event models.PaymentReturnEvent, outcome models.ReconciliationOutcome) models.ReconciliationOutcome {
	terminal := map[models.OutcomeResult]State{
		models.OutcomeActivated: StateActivated,
		models.OutcomePending:   StatePending,
		models.OutcomeRejected:  StateRejected,
		models.OutcomeError:     StateError,
	}
	if err := r.to(terminal[outcome.Result]); err != nil {
		log.Error("illegal transition", sl.Err(err))
	}

	outcomesTotal.WithLabelValues(string(outcome.Result)).Inc()
	log.Info("reconciliation finished", slog.String("result", string(outcome.Result)))

	m.pushNotice(ctx, log, event, outcome)
	return outcome
}

// pushNotice адресует итог пользователю из метаданных платежа: редирект
// провайдера приходит без авторизации, а хранилище сессии — общее на процесс,
// поэтому его текущий пользователь может не иметь отношения к этому платежу.
// Сессия используется только когда метаданных нет.
func (m *Machine) pushNotice(ctx context.Context, log *slog.Logger, event models.PaymentReturnEvent, outcome models.ReconciliationOutcome) {
	userID := ""
	if event.Reference != nil {
		userID = event.Reference.UserID
	}
	if userID == "" {
		if session, _ := m.sessions.Current(); session != nil {
			userID = session.UserID
		}
	}
	if userID == "" {
		// Итог показать некому; он остаётся в логе
		// с идентификатором транзакции для ручного разбора.
		log.Warn("no user to deliver outcome notice")
		return
	}

	kind := "error"
	switch outcome.Result {
	case models.OutcomeActivated:
		kind = "success"
	case models.OutcomePending:
		kind = "info"
	}
	if err := m.notices.Push(ctx, userID, kind, outcome.Message); err != nil {
		log.Warn("failed to push outcome notice", sl.Err(err))
	}
}

func errorOutcome(transactionID, message string) models.ReconciliationOutcome {
	return models.ReconciliationOutcome{
		Result:        models.OutcomeError,
		Message:       message,
		TransactionID: transactionID,
	}
}
