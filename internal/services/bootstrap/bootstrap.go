// Package bootstrap восстанавливает сессию при старте обращения и
// следит за событиями входа и выхода. Здесь же происходит самолечение
// осиротевшей сессии: токен действителен, а профиля в базе уже нет.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/citycom/internal/identity"
	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/session"
)

// IdentityClient часть API провайдера идентификации для восстановления сессии.
type IdentityClient interface {
	GetSession(ctx context.Context, token string) (*models.AuthSession, error)
}

// ProfileLoader загружает профиль пользователя из базы.
type ProfileLoader interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Machine признак выполняющейся сверки платежа. Пока она идёт,
// навигационные эффекты входа подавляются, чтобы редирект после входа
// не увёл пользователя с экрана оплаты.
type Machine interface {
	InProgress() bool
}

// Route целевой маршрут после обработки события сессии.
type Route string

// Маршруты для навигации после события сессии.
const (
	RouteNone      Route = ""
	RouteDashboard Route = "/dashboard"
	RoutePricing   Route = "/pricing"
	RouteAuth      Route = "/auth"
)

// Service последовательность начальной загрузки. Гарантирует порядок:
// сначала восстановление сессии, потом загрузка профиля, и только после
// этого сессия считается готовой.
type Service struct {
	ident    IdentityClient
	profiles ProfileLoader
	sessions *session.Store
	machine  Machine
	log      *slog.Logger
}

// New создает новый сервис начальной загрузки и подписывает его
// на события сессии.
func New(ident IdentityClient, profiles ProfileLoader, sessions *session.Store, machine Machine, log *slog.Logger) *Service {
	return &Service{
		ident:    ident,
		profiles: profiles,
		sessions: sessions,
		machine:  machine,
		log:      log,
	}
}

// Restore восстанавливает сессию по токену и загружает профиль.
// Пустой или непризнанный токен — не ошибка: возвращается nil-сессия,
// пользователь анонимен. Осиротевшая сессия (токен жив, профиля нет)
// принудительно завершается.
func (s *Service) Restore(ctx context.Context, token string) (*models.AuthSession, *models.Profile, error) {
	const op = "bootstrap.Restore"
	log := s.log.With(slog.String("op", op))

	sess, err := s.ident.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.sessions.Set(sess)

	profile, err := s.profiles.GetProfile(ctx, sess.UserID)
	if err != nil {
		// База недоступна — сессию не трогаем, профиль догрузится позже.
		log.Error("failed to load profile", sl.Err(err), slog.String("user_id", sess.UserID))
		return sess, nil, nil
	}
	if profile == nil {
		// Осиротевшая сессия: пользователь удалён из базы,
		// а токен у провайдера ещё жив.
		log.Warn("orphaned session, forcing logout", slog.String("user_id", sess.UserID))
		s.sessions.Logout(ctx, true)
		return nil, nil, nil
	}

	s.sessions.SetProfile(profile)
	return sess, profile, nil
}

// HandleChange обрабатывает событие изменения сессии и возвращает
// маршрут для навигации. Во время сверки платежа навигация подавляется:
// итог сверки сам определит, куда вести пользователя.
func (s *Service) HandleChange(ctx context.Context, ev session.ChangeEvent) Route {
	const op = "bootstrap.HandleChange"
	log := s.log.With(slog.String("op", op))

	switch ev.Kind {
	case session.SignedIn:
		if ev.Session != nil {
			profile, err := s.profiles.GetProfile(ctx, ev.Session.UserID)
			if err != nil {
				log.Error("failed to reload profile on sign-in", sl.Err(err))
			} else if profile != nil {
				s.sessions.SetProfile(profile)
			}
		}
		if s.machine.InProgress() {
			log.Info("payment reconciliation in progress, navigation suppressed")
			return RouteNone
		}
		return RouteDashboard
	case session.SignedOut:
		if s.machine.InProgress() {
			return RouteNone
		}
		return RouteAuth
	}
	return RouteNone
}

// Watch подписывает сервис на события сессии. Возвращает функцию отписки.
func (s *Service) Watch(ctx context.Context, onRoute func(Route)) func() {
	return s.sessions.Subscribe(func(ev session.ChangeEvent) {
		if route := s.HandleChange(ctx, ev); route != RouteNone && onRoute != nil {
			onRoute(route)
		}
	})
}
