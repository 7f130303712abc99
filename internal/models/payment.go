package models

import (
	"encoding/json"
	"strings"
)

// ProviderStatus описывает закрытое множество статусов платежа,
// в которое детерминированно отображаются все строки провайдера.
type ProviderStatus string

const (
	// StatusApproved платеж подтвержден провайдером
	StatusApproved ProviderStatus = "approved"
	// StatusPending платеж еще обрабатывается провайдером
	StatusPending ProviderStatus = "pending"
	// StatusRejected платеж отклонен или отменен
	StatusRejected ProviderStatus = "rejected"
	// StatusUnknown нераспознанный статус провайдера
	StatusUnknown ProviderStatus = "unknown"
)

// ClassifyProviderStatus отображает строковый статус провайдера в ProviderStatus.
// Провайдер может прислать несколько вариантов написания для одного и того же
// исхода, все они отображаются по фиксированной таблице.
func ClassifyProviderStatus(raw string) ProviderStatus {
	switch strings.ToLower(raw) {
	case "approved", "success":
		return StatusApproved
	case "pending", "in_process":
		return StatusPending
	case "failure", "rejected", "null", "":
		return StatusRejected
	default:
		return StatusUnknown
	}
}

// PaymentReference содержит метаданные платежа, закодированные в поле
// external_reference при создании платежа и прочитанные обратно при возврате.
type PaymentReference struct {
	UserID string `json:"userId"`
	PlanID string `json:"planId"`
}

// PaymentReturnEvent представляет однократное событие возврата пользователя
// из платёжного провайдера. Создаётся детектором из параметров URL,
// потребляется машиной сверки ровно один раз и не сохраняется.
type PaymentReturnEvent struct {
	TransactionID string            // Идентификатор транзакции провайдера
	Status        ProviderStatus    // Классифицированный статус
	RawReference  string            // Сырое значение external_reference
	Reference     *PaymentReference // Распарсенные метаданные, nil если blob отсутствует или некорректен
}

// DecodeReference разбирает JSON из external_reference.
// Возвращает nil при пустой строке и ошибку при некорректном JSON.
func DecodeReference(raw string) (*PaymentReference, error) {
	if raw == "" {
		return nil, nil
	}
	var ref PaymentReference
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// OutcomeResult описывает итог сверки платежа.
type OutcomeResult string

const (
	// OutcomeActivated подписка подтверждена и применена
	OutcomeActivated OutcomeResult = "activated"
	// OutcomePending платеж в обработке, изменений плана не ожидается
	OutcomePending OutcomeResult = "pending"
	// OutcomeRejected платеж отклонен провайдером
	OutcomeRejected OutcomeResult = "rejected"
	// OutcomeError сверка завершилась ошибкой
	OutcomeError OutcomeResult = "error"
)

// ReconciliationOutcome представляет итог сверки платежа для пользователя.
// Ровно один такой итог формируется на каждое событие возврата.
type ReconciliationOutcome struct {
	Result        OutcomeResult `json:"result"`
	Message       string        `json:"message"`
	TargetPlanID  string        `json:"target_plan_id,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
}
