package paymentprovider

// PreferenceItem описывает позицию в платёжной preference.
type PreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
	UnitPrice  float64 `json:"unit_price"`
}

// BackURLs содержит адреса возврата пользователя после оплаты.
// Провайдер сам дописывает к ним параметры статуса и идентификатора транзакции.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// CreatePreferenceRequest запрос на создание платёжной preference.
// ExternalReference несёт JSON {userId, planId}, который провайдер
// вернёт без изменений при сверке платежа.
type CreatePreferenceRequest struct {
	Items               []PreferenceItem `json:"items"`
	BackURLs            BackURLs         `json:"back_urls"`
	AutoReturn          string           `json:"auto_return,omitempty"`
	ExternalReference   string           `json:"external_reference"`
	StatementDescriptor string           `json:"statement_descriptor,omitempty"`
}

// CreatePreferenceResponse ответ провайдера с адресом перенаправления на оплату.
type CreatePreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// Payment описывает платёж, полученный от провайдера при сверке.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
}
