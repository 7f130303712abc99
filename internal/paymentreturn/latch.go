package paymentreturn

import (
	"context"
	"sync"
	"time"
)

// Latch одноразовая защёлка обнаружения платежа. Первый захват по
// идентификатору транзакции возвращает true, все последующие — false.
// Защёлка срабатывает строго до какого-либо перехода машины сверки,
// гарантируя не более одной попытки сверки на редирект.
type Latch interface {
	Acquire(ctx context.Context, transactionID string) (bool, error)
}

// MemoryLatch защёлка в памяти процесса. Защищает от повторного
// срабатывания обработчика в рамках одного процесса.
type MemoryLatch struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryLatch создаёт новую защёлку в памяти.
func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{seen: make(map[string]struct{})}
}

// Acquire захватывает защёлку для транзакции.
func (l *MemoryLatch) Acquire(_ context.Context, transactionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[transactionID]; ok {
		return false, nil
	}
	l.seen[transactionID] = struct{}{}
	return true, nil
}

// SetNXCache минимальный интерфейс кеша для межпроцессной защёлки.
type SetNXCache interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
}

// CacheLatch защёлка поверх Redis SETNX. Защищает от повторной доставки
// одного и того же редиректа в другой процесс, например после перезагрузки
// страницы или при нескольких репликах сервиса.
type CacheLatch struct {
	cache SetNXCache
	ttl   time.Duration
}

// NewCacheLatch создаёт защёлку поверх кеша с временем жизни ключа.
func NewCacheLatch(cache SetNXCache, ttl time.Duration) *CacheLatch {
	return &CacheLatch{cache: cache, ttl: ttl}
}

// Acquire захватывает защёлку для транзакции.
func (l *CacheLatch) Acquire(ctx context.Context, transactionID string) (bool, error) {
	return l.cache.SetNX(ctx, "paymentreturn:latch:"+transactionID, 1, l.ttl)
}
