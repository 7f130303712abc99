// Package verification реализует серверную процедуру сверки платежа:
// перепроверку транзакции у провайдера и долговременное применение
// оплаченного тарифа. Процедура идемпотентна по идентификатору транзакции.
package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/paymentprovider"
)

// ErrNotApproved логическая неудача: провайдер при перепроверке не подтвердил платёж.
// Отличается от сетевой ошибки, чтобы пользователю показывалось иное сообщение.
var ErrNotApproved = errors.New("payment is not approved by provider")

// ErrInvalidMetadata метаданные транзакции не содержат пользователя или плана.
var ErrInvalidMetadata = errors.New("invalid payment metadata")

// defaultDurationDays применяется, когда у плана не задана длительность.
const defaultDurationDays = 30

// ProviderClient определяет интерфейс платёжного провайдера для сверки.
type ProviderClient interface {
	GetPayment(ctx context.Context, paymentID string) (*paymentprovider.Payment, error)
}

// Repository определяет методы хранилища, нужные сверке.
type Repository interface {
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
	UpdateProfilePlan(ctx context.Context, userID, planID string, expiresAt sql.NullTime) error
	RecordPaymentOnce(ctx context.Context, entry models.SubscriptionHistoryEntry) (bool, error)
}

// Service реализует процедуру сверки платежа.
type Service struct {
	provider ProviderClient
	repo     Repository
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(provider ProviderClient, repo Repository, log *slog.Logger) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
		log:      log,
	}
}

// VerifyPayment перепроверяет транзакцию у провайдера и применяет оплаченный
// тариф: обновляет профиль и добавляет запись истории подписок.
//
// Вызов безопасен более одного раза для одной транзакции: запись истории
// уникальна по payment_id, повторный вызов ничего не изменяет и не продлевает
// срок действия плана второй раз.
func (s *Service) VerifyPayment(ctx context.Context, transactionID string) error {
	const op = "verification.VerifyPayment"
	log := s.log.With(slog.String("op", op), sl.Txn(transactionID))

	payment, err := s.provider.GetPayment(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if models.ClassifyProviderStatus(payment.Status) != models.StatusApproved {
		return fmt.Errorf("%s: status %q: %w", op, payment.Status, ErrNotApproved)
	}

	ref, err := models.DecodeReference(payment.ExternalReference)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidMetadata, err)
	}
	if ref == nil || ref.UserID == "" || ref.PlanID == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidMetadata)
	}

	durationDays := defaultDurationDays
	plan, err := s.repo.GetPlan(ctx, ref.PlanID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if plan != nil && plan.DurationDays > 0 {
		durationDays = plan.DurationDays
	}

	startDate := time.Now()
	endDate := startDate.AddDate(0, 0, durationDays)

	recorded, err := s.repo.RecordPaymentOnce(ctx, models.SubscriptionHistoryEntry{
		UserID:    ref.UserID,
		PlanID:    ref.PlanID,
		Amount:    payment.TransactionAmount,
		PaymentID: transactionID,
		Status:    "active",
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !recorded {
		// Транзакция уже учтена ранее: срок действия не продлевается повторно.
		log.Info("payment already reconciled, skipping grant")
		return nil
	}

	if err = s.repo.UpdateProfilePlan(ctx, ref.UserID, ref.PlanID,
		sql.NullTime{Time: endDate, Valid: true}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("entitlement granted",
		slog.String("user_id", ref.UserID),
		slog.String("plan_id", ref.PlanID),
		slog.Time("expires_at", endDate))
	return nil
}
