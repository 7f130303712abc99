// Package models содержит доменные структуры приложения: профиль пользователя
// с данными о тарифном плане, тарифные планы и записи истории подписок.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// Profile представляет профиль пользователя с текущим тарифным планом.
// Приложение хранит снимок профиля только для чтения; изменяется он
// исключительно повторной загрузкой из хранилища после подтверждённой оплаты.
type Profile struct {
	ID            string     // Уникальный идентификатор пользователя
	Username      string     // Имя пользователя (уникальное)
	Email         string     // Электронная почта
	PlanID        string     // Идентификатор текущего тарифного плана
	PlanExpiresAt *time.Time // Дата истечения оплаченного плана, nil для бесплатного
	IsAdmin       bool       // Административный флаг
}

// Plan представляет тарифный план подписки.
type Plan struct {
	ID           string  // Уникальный идентификатор плана
	Name         string  // Название плана
	Price        float64 // Цена за период
	DurationDays int     // Длительность периода в днях
}

// SubscriptionHistoryEntry представляет неизменяемую запись истории подписок,
// добавляемую после подтверждённой оплаты.
type SubscriptionHistoryEntry struct {
	UserID    string    // Идентификатор пользователя
	PlanID    string    // Идентификатор оплаченного плана
	Amount    float64   // Сумма платежа
	PaymentID string    // Идентификатор транзакции у платёжного провайдера
	Status    string    // Статус записи, например "active"
	StartDate time.Time // Дата начала действия
	EndDate   time.Time // Дата окончания действия
}
