// Package logout обрабатывает выход пользователя.
package logout

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/citycom/internal/http/response"
)

// Sessions часть хранилища сессии, нужная обработчику выхода.
type Sessions interface {
	Logout(ctx context.Context, isForced bool)
}

// Handler обрабатывает запросы на выход.
type Handler struct {
	log      *slog.Logger
	sessions Sessions
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, sessions Sessions) *Handler {
	return &Handler{log: log, sessions: sessions}
}

// ServeHTTP godoc
// @Summary Выход
// @Description Завершает сессию. Локальное состояние очищается сразу, отзыв токена у провайдера выполняется по возможности.
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Response "Сессия завершена"
// @Router /auth/logout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"
	log := h.log.With(slog.String("op", op))

	// Оптимистичный выход: ответ не зависит от провайдера идентификации.
	h.sessions.Logout(r.Context(), false)

	log.Info("user logged out")
	render.JSON(w, r, response.StatusOKWithData(map[string]string{"logout": "ok"}))
}
