// Package jwt реализует разбор и генерацию токенов сессий провайдера идентификации.
//
// Приложение хранит лишь локальную копию сессии и не владеет её форматом:
// токен разбирается ровно настолько, чтобы получить идентификатор пользователя
// и срок действия. Maker используется провайдером и тестами для выпуска токенов.
package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims описывает данные пользователя, хранящиеся в токене сессии.
type SessionClaims struct {
	Email                string `json:"email"` // Электронная почта пользователя
	jwt.RegisteredClaims        // Встроенные стандартные claims JWT (Subject, ExpiresAt и пр.)
}

// Maker описывает интерфейс для генерации и разбора токенов сессий.
type Maker interface {
	// GenerateToken выпускает токен сессии для пользователя
	GenerateToken(userID, email string) (string, error)
	// ParseToken возвращает *SessionClaims, если токен корректен
	ParseToken(tokenStr string) (*SessionClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
