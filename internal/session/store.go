// Package session реализует локальное хранилище текущей сессии и профиля.
//
// Снимок {сессия, профиль} имеет одного писателя (загрузчик, слушатель
// событий провайдера и машина сверки) и много читателей (обработчики HTTP).
// Транзакционной гарантии между двумя полями нет: от расхождения их
// удерживает проверка осиротевшей сессии в загрузчике.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
)

// ChangeKind тип события изменения сессии.
type ChangeKind string

const (
	// SignedIn сессия появилась
	SignedIn ChangeKind = "SIGNED_IN"
	// SignedOut сессия завершена
	SignedOut ChangeKind = "SIGNED_OUT"
)

// ChangeEvent событие изменения сессии, доставляемое подписчикам.
type ChangeEvent struct {
	Kind    ChangeKind
	Session *models.AuthSession // nil при SignedOut
}

// Provider часть API провайдера идентификации, нужная хранилищу: выход.
type Provider interface {
	SignOut(ctx context.Context, token string) error
}

// Notifier принимает сообщения для пользователя.
type Notifier interface {
	Push(ctx context.Context, userID, kind, message string) error
}

// Store хранит локальную копию сессии и снимок профиля.
type Store struct {
	provider   Provider
	notices    Notifier
	log        *slog.Logger
	inactivity time.Duration

	mu              sync.RWMutex
	session         *models.AuthSession
	profile         *models.Profile
	inactivityTimer *time.Timer
	subs            map[int]func(ChangeEvent)
	nextSub         int
}

// NewStore создаёт хранилище сессии.
// inactivity задаёт допуск таймера неактивности; 0 отключает автовыход.
func NewStore(provider Provider, notices Notifier, log *slog.Logger, inactivity time.Duration) *Store {
	return &Store{
		provider:   provider,
		notices:    notices,
		log:        log,
		inactivity: inactivity,
		subs:       make(map[int]func(ChangeEvent)),
	}
}

// Current возвращает текущие сессию и профиль. Оба могут быть nil.
func (s *Store) Current() (*models.AuthSession, *models.Profile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.profile
}

// Subscribe регистрирует обработчик событий изменения сессии
// и возвращает функцию отписки.
func (s *Store) Subscribe(fn func(ChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(ev ChangeEvent) {
	s.mu.RLock()
	handlers := make([]func(ChangeEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Set устанавливает новую сессию и запускает таймер неактивности.
func (s *Store) Set(session *models.AuthSession) {
	s.mu.Lock()
	s.session = session
	s.resetInactivityLocked()
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: SignedIn, Session: session})
}

// SetProfile обновляет снимок профиля.
func (s *Store) SetProfile(profile *models.Profile) {
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
}

// Clear сбрасывает сессию и профиль без похода к провайдеру.
func (s *Store) Clear() {
	s.mu.Lock()
	s.session = nil
	s.profile = nil
	s.stopInactivityLocked()
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: SignedOut})
}

// Touch отмечает активность пользователя и перезапускает таймер неактивности.
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return
	}
	s.resetInactivityLocked()
}

func (s *Store) resetInactivityLocked() {
	s.stopInactivityLocked()
	if s.inactivity <= 0 || s.session == nil {
		return
	}
	s.inactivityTimer = time.AfterFunc(s.inactivity, func() {
		s.Logout(context.Background(), true)
	})
}

func (s *Store) stopInactivityLocked() {
	if s.inactivityTimer != nil {
		s.inactivityTimer.Stop()
		s.inactivityTimer = nil
	}
}

// Logout выполняет оптимистичный выход: локальное состояние очищается
// синхронно, до какого-либо сетевого вызова. Выход у провайдера выполняется
// после, по возможности; его ошибка логируется, но не показывается,
// так как локальное состояние уже авторитетно для интерфейса.
//
// При isForced (автовыход по неактивности, осиротевшая сессия)
// пользователю отправляется поясняющее сообщение.
func (s *Store) Logout(ctx context.Context, isForced bool) {
	const op = "session.Logout"
	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	session := s.session
	s.session = nil
	s.profile = nil
	s.stopInactivityLocked()
	s.mu.Unlock()

	s.notify(ChangeEvent{Kind: SignedOut})

	if session == nil {
		return
	}

	if isForced {
		if err := s.notices.Push(ctx, session.UserID, "info",
			"Por seguridad, tu sesión se ha cerrado automáticamente."); err != nil {
			log.Warn("failed to push forced-logout notice", sl.Err(err))
		}
	}

	if err := s.provider.SignOut(ctx, session.Token); err != nil {
		log.Error("provider sign out failed", sl.Err(err))
	}
}
