package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/citycom/internal/models"
)

// RecordPaymentOnce добавляет запись истории подписки для транзакции.
// Идентификатор транзакции уникален в таблице, поэтому повторный вызов
// с тем же payment_id не вставляет вторую запись. Возвращает true, если
// запись была добавлена этим вызовом, и false, если транзакция уже учтена.
func (s *Storage) RecordPaymentOnce(ctx context.Context, entry models.SubscriptionHistoryEntry) (bool, error) {
	const op = "storage.RecordPaymentOnce"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscription_history
			      (user_id, plan_id, amount, payment_id, status, start_date, end_date)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (payment_id) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query,
		entry.UserID, entry.PlanID, entry.Amount, entry.PaymentID,
		entry.Status, entry.StartDate, entry.EndDate)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

// ListSubscriptionHistory возвращает записи истории подписок пользователя,
// новые первыми.
func (s *Storage) ListSubscriptionHistory(ctx context.Context, userID string) ([]*models.SubscriptionHistoryEntry, error) {
	const op = "storage.ListSubscriptionHistory"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, plan_id, amount, payment_id, status, start_date, end_date
			  FROM subscription_history
			  WHERE user_id = $1
			  ORDER BY start_date DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.SubscriptionHistoryEntry
	for rows.Next() {
		var e models.SubscriptionHistoryEntry
		if err = rows.Scan(&e.UserID, &e.PlanID, &e.Amount, &e.PaymentID,
			&e.Status, &e.StartDate, &e.EndDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
