// Package notices отдаёт и скрывает сообщения пользователя.
package notices

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/citycom/internal/http/middlewarectx"
	"github.com/magabrotheeeer/citycom/internal/http/response"
	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
)

// Service сервис уведомлений.
type Service interface {
	List(ctx context.Context, userID string) ([]models.Notice, error)
	Dismiss(ctx context.Context, userID, noticeID string) error
}

// Handler обрабатывает запросы к сообщениям пользователя.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// List godoc
// @Summary Список сообщений
// @Description Возвращает живые сообщения пользователя, новые первыми
// @Tags Notices
// @Produce json
// @Success 200 {object} response.Response "Список сообщений"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка чтения сообщений"
// @Router /notices [get]
// @Security BearerAuth
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notices.list"
	log := h.log.With(slog.String("op", op))

	userID, ok := r.Context().Value(middlewarectx.UserID).(string)
	if !ok || userID == "" {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	notices, err := h.service.List(r.Context(), userID)
	if err != nil {
		log.Error("failed to list notices", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(notices))
}

// Dismiss godoc
// @Summary Скрыть сообщение
// @Description Удаляет сообщение пользователя до истечения его срока жизни
// @Tags Notices
// @Produce json
// @Param id path string true "Идентификатор сообщения"
// @Success 200 {object} response.Response "Сообщение скрыто"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка удаления сообщения"
// @Router /notices/{id} [delete]
// @Security BearerAuth
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notices.dismiss"
	log := h.log.With(slog.String("op", op))

	userID, ok := r.Context().Value(middlewarectx.UserID).(string)
	if !ok || userID == "" {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	noticeID := chi.URLParam(r, "id")
	if err := h.service.Dismiss(r.Context(), userID, noticeID); err != nil {
		log.Error("failed to dismiss notice", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]string{"dismissed": noticeID}))
}
