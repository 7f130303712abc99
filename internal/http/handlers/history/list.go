// Package history отдаёт историю платежей пользователя.
package history

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/citycom/internal/http/middlewarectx"
	"github.com/magabrotheeeer/citycom/internal/http/response"
	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
)

// Repository определяет интерфейс для чтения истории платежей.
type Repository interface {
	ListSubscriptionHistory(ctx context.Context, userID string) ([]*models.SubscriptionHistoryEntry, error)
}

// Handler обрабатывает запросы истории платежей.
type Handler struct {
	log  *slog.Logger
	repo Repository
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository) *Handler {
	return &Handler{log: log, repo: repo}
}

// ServeHTTP godoc
// @Summary История платежей
// @Description Возвращает записи истории подписок пользователя
// @Tags Subscriptions
// @Produce json
// @Success 200 {object} response.Response "История платежей"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка чтения истории"
// @Router /subscriptions/history [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.history.list"
	log := h.log.With(slog.String("op", op))

	userID, ok := r.Context().Value(middlewarectx.UserID).(string)
	if !ok || userID == "" {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	entries, err := h.repo.ListSubscriptionHistory(r.Context(), userID)
	if err != nil {
		log.Error("failed to list subscription history", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(entries))
}
