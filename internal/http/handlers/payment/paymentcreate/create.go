// Package paymentcreate обрабатывает создание платежа за тариф.
package paymentcreate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/citycom/internal/http/middlewarectx"
	"github.com/magabrotheeeer/citycom/internal/http/response"
	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/paymentprovider"
)

// CreatePaymentRequestApp представляет запрос на оплату тарифа.
type CreatePaymentRequestApp struct {
	PlanID string `json:"plan_id" validate:"required"`
}

// ProviderClient определяет интерфейс для работы с платёжным провайдером.
type ProviderClient interface {
	CreatePreference(ctx context.Context, reqParams paymentprovider.CreatePreferenceRequest) (*paymentprovider.CreatePreferenceResponse, error)
}

// Repository определяет интерфейс для чтения тарифов.
type Repository interface {
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
}

// Handler обрабатывает запросы на создание платежа.
type Handler struct {
	log            *slog.Logger
	providerClient ProviderClient
	repo           Repository
	returnURL      string
	validate       *validator.Validate
}

// New создает новый экземпляр Handler. returnURL — адрес, на который
// провайдер вернёт пользователя после оплаты.
func New(log *slog.Logger, providerClient ProviderClient, repo Repository, returnURL string) *Handler {
	return &Handler{
		log:            log,
		providerClient: providerClient,
		repo:           repo,
		returnURL:      returnURL,
		validate:       validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Создать платёж
// @Description Создает платёжную preference у MercadoPago для выбранного тарифа
// @Tags Payments
// @Accept  json
// @Produce  json
// @Param request body CreatePaymentRequestApp true "Данные для создания платежа"
// @Success 200 {object} response.Response "Адрес перенаправления на оплату"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Тариф не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации или бесплатный тариф"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера при создании платежа"
// @Router /payments [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.create"
	log := h.log.With(slog.String("op", op))

	var req CreatePaymentRequestApp
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userID, ok := r.Context().Value(middlewarectx.UserID).(string)
	if !ok || userID == "" {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	plan, err := h.repo.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		log.Error("failed to get plan", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	if plan == nil {
		log.Error("plan not found", slog.String("plan_id", req.PlanID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("plan not found"))
		return
	}
	if plan.Price <= 0 {
		log.Error("free plan does not require payment", slog.String("plan_id", plan.ID))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("plan does not require payment"))
		return
	}

	reference, err := json.Marshal(models.PaymentReference{UserID: userID, PlanID: plan.ID})
	if err != nil {
		log.Error("failed to marshal payment reference", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	prefReq := paymentprovider.CreatePreferenceRequest{
		Items: []paymentprovider.PreferenceItem{{
			ID:         plan.ID,
			Title:      "Suscripción " + plan.Name,
			Quantity:   1,
			CurrencyID: "ARS",
			UnitPrice:  plan.Price,
		}},
		BackURLs: paymentprovider.BackURLs{
			Success: h.returnURL,
			Failure: h.returnURL,
			Pending: h.returnURL,
		},
		AutoReturn:          "approved",
		ExternalReference:   string(reference),
		StatementDescriptor: "CITYCOM",
	}

	prefResp, err := h.providerClient.CreatePreference(r.Context(), prefReq)
	if err != nil {
		log.Error("failed to create preference", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("payment provider error"))
		return
	}

	log.Info("payment preference created",
		slog.String("preference_id", prefResp.ID),
		slog.String("plan_id", plan.ID))
	render.JSON(w, r, response.StatusOKWithData(map[string]string{
		"preference_id": prefResp.ID,
		"init_point":    prefResp.InitPoint,
	}))
}
