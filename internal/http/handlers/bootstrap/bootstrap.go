// Package bootstrap отдаёт начальное состояние: сессию и профиль.
package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/citycom/internal/http/response"
	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/watchdog"
)

// Service восстанавливает сессию и профиль по токену.
type Service interface {
	Restore(ctx context.Context, token string) (*models.AuthSession, *models.Profile, error)
}

// Handler обрабатывает запросы начальной загрузки.
type Handler struct {
	log       *slog.Logger
	service   Service
	tolerance time.Duration
}

// New создает новый экземпляр Handler. tolerance ограничивает ожидание
// восстановления сессии: по его истечении клиент получает анонимное состояние.
func New(log *slog.Logger, service Service, tolerance time.Duration) *Handler {
	return &Handler{log: log, service: service, tolerance: tolerance}
}

type restoreResult struct {
	session *models.AuthSession
	profile *models.Profile
	err     error
}

// ServeHTTP godoc
// @Summary Начальное состояние
// @Description Восстанавливает сессию по токену и возвращает профиль пользователя. Без токена возвращает анонимное состояние.
// @Tags Bootstrap
// @Produce json
// @Success 200 {object} response.Response "Сессия и профиль либо анонимное состояние"
// @Failure 500 {object} response.ErrorResponse "Ошибка восстановления сессии"
// @Router /bootstrap [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.bootstrap"
	log := h.log.With(slog.String("op", op))

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	resultCh := make(chan restoreResult, 1)
	go func() {
		sess, profile, err := h.service.Restore(context.WithoutCancel(r.Context()), token)
		resultCh <- restoreResult{session: sess, profile: profile, err: err}
	}()

	release := make(chan struct{})
	wd := watchdog.Arm(func() bool { return true }, h.tolerance, func() {
		close(release)
	})
	defer wd.Stop()

	select {
	case res := <-resultCh:
		if res.err != nil {
			log.Error("failed to restore session", sl.Err(res.err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to restore session"))
			return
		}
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"authenticated": res.session != nil,
			"session":       res.session,
			"profile":       res.profile,
		}))
	case <-release:
		// Восстановление зависло: клиент получает анонимное состояние
		// и может повторить загрузку, не оставаясь без ответа.
		log.Warn("session restore exceeded tolerance, serving anonymous state")
		render.JSON(w, r, response.StatusOKWithData(map[string]any{
			"authenticated": false,
			"session":       nil,
			"profile":       nil,
		}))
	}
}
