package models

import "time"

// AuthSession представляет локальную копию сессии, выданной провайдером
// идентификации. Приложение хранит её только для чтения и сбрасывает
// при каждом событии изменения сессии от провайдера.
type AuthSession struct {
	UserID    string    // Идентификатор пользователя у провайдера
	Email     string    // Электронная почта пользователя
	Token     string    // Непрозрачный токен сессии
	ExpiresAt time.Time // Срок действия сессии
}

// Notice представляет короткоживущее сообщение для пользователя
// с ограниченным временем показа.
type Notice struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"` // success | error | info
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
