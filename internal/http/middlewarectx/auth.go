// Package middlewarectx содержит HTTP middleware для проверки токена
// сессии и ограничения частоты запросов.
//
// SessionMiddleware проверяет подпись и срок действия токена сессии
// в заголовке Authorization локально, без похода к провайдеру
// идентификации, и добавляет в контекст идентификатор пользователя
// и сам токен. Каждый авторизованный запрос продлевает таймер
// неактивности сессии.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/citycom/internal/http/response"
	"github.com/magabrotheeeer/citycom/internal/lib/jwt"
	"github.com/magabrotheeeer/citycom/internal/lib/sl"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserID — ключ для идентификатора пользователя в контексте
	UserID Key = "user_id"
	// SessionToken — ключ для токена сессии в контексте
	SessionToken Key = "session_token"
)

// Parser описывает интерфейс разбора токена сессии.
type Parser interface {
	ParseToken(tokenStr string) (*jwt.SessionClaims, error)
}

// Toucher продлевает таймер неактивности при каждом авторизованном запросе.
type Toucher interface {
	Touch()
}

// SessionMiddleware возвращает HTTP middleware, который проверяет токен
// сессии в заголовке Authorization.
//
// Если токен действителен, добавляет идентификатор пользователя и токен
// в контекст запроса, иначе возвращает HTTP 401 Unauthorized.
func SessionMiddleware(parser Parser, sessions Toucher, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SessionMiddleware"
			authHeader := r.Header.Get("Authorization")

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := parser.ParseToken(tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}

			if sessions != nil {
				sessions.Touch()
			}

			ctx := context.WithValue(r.Context(), UserID, claims.Subject)
			ctx = context.WithValue(ctx, SessionToken, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
