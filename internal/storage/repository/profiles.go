package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/citycom/internal/models"
)

// GetProfile возвращает профиль пользователя по его идентификатору.
// Возвращает (nil, nil), если профиль отсутствует: отсутствие профиля
// при живой сессии трактуется вызывающим кодом как осиротевшая сессия.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	const op = "storage.GetProfile"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, username, email, plan_id, plan_expires_at, is_admin
			  FROM profiles
			  WHERE id = $1`
	p := &models.Profile{}
	row := s.DB.QueryRowContext(ctx, query, userID)

	var planExpiresAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Username, &p.Email, &p.PlanID,
		&planExpiresAt, &p.IsAdmin); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if planExpiresAt.Valid {
		p.PlanExpiresAt = &planExpiresAt.Time
	}
	return p, nil
}

// CreateProfile сохраняет новый профиль пользователя.
func (s *Storage) CreateProfile(ctx context.Context, p models.Profile) error {
	const op = "storage.CreateProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO profiles (id, username, email, plan_id, plan_expires_at, is_admin)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.DB.ExecContext(ctx, query,
		p.ID, p.Username, p.Email, p.PlanID, p.PlanExpiresAt, p.IsAdmin); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateProfilePlan обновляет тарифный план и срок его действия у профиля.
func (s *Storage) UpdateProfilePlan(ctx context.Context, userID, planID string, expiresAt sql.NullTime) error {
	const op = "storage.UpdateProfilePlan"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE profiles
			  SET plan_id = $2, plan_expires_at = $3
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, userID, planID, expiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: profile %s not found", op, userID)
	}
	return nil
}
