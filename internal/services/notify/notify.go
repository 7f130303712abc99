// Package notify хранит краткоживущие сообщения для пользователя и
// передаёт итоги оплаты в очередь почтовых уведомлений.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
)

// Store часть кеша, используемая сервисом уведомлений.
type Store interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string, result any) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Invalidate(ctx context.Context, key string) error
}

// Publisher отправляет сообщение в очередь почтовых уведомлений.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// EmailMessage сообщение для воркера почтовых уведомлений.
type EmailMessage struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Service сервис уведомлений. Сообщения живут в Redis ограниченное время:
// истечение TTL заменяет автоматическое скрытие — непрочитанное
// уведомление исчезает само.
type Service struct {
	store     Store
	publisher Publisher
	log       *slog.Logger
	ttl       time.Duration
}

// New создает новый сервис уведомлений. publisher может быть nil,
// тогда почтовые уведомления не отправляются.
func New(store Store, publisher Publisher, log *slog.Logger, ttl time.Duration) *Service {
	return &Service{store: store, publisher: publisher, log: log, ttl: ttl}
}

func noticeKey(userID, noticeID string) string {
	return fmt.Sprintf("notices:%s:%s", userID, noticeID)
}

// Push сохраняет сообщение для пользователя и ставит его в почтовую
// очередь. Сбой очереди не считается ошибкой: письмо — дополнение,
// а не основной канал.
func (s *Service) Push(ctx context.Context, userID, kind, message string) error {
	const op = "notify.Push"

	notice := models.Notice{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Set(ctx, noticeKey(userID, notice.ID), notice, s.ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish("payment", EmailMessage{
			UserID:  userID,
			Kind:    kind,
			Message: message,
		}); err != nil {
			s.log.Warn("failed to enqueue email notification", sl.Err(err))
		}
	}
	return nil
}

// List возвращает живые сообщения пользователя, новые первыми.
// Сообщения с истекшим TTL к этому моменту уже удалены Redis.
func (s *Service) List(ctx context.Context, userID string) ([]models.Notice, error) {
	const op = "notify.List"

	keys, err := s.store.Keys(ctx, noticeKey(userID, "*"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	notices := make([]models.Notice, 0, len(keys))
	for _, key := range keys {
		var n models.Notice
		found, err := s.store.Get(ctx, key, &n)
		if err != nil {
			s.log.Warn("failed to read notice", sl.Err(err))
			continue
		}
		if found {
			notices = append(notices, n)
		}
	}

	for i := 1; i < len(notices); i++ {
		for j := i; j > 0 && notices[j].CreatedAt.After(notices[j-1].CreatedAt); j-- {
			notices[j], notices[j-1] = notices[j-1], notices[j]
		}
	}
	return notices, nil
}

// Dismiss удаляет сообщение до истечения TTL.
func (s *Service) Dismiss(ctx context.Context, userID, noticeID string) error {
	const op = "notify.Dismiss"
	if err := s.store.Invalidate(ctx, noticeKey(userID, noticeID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
