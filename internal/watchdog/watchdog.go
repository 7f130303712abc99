// Package watchdog реализует одноразовый сторожевой таймер для выведения
// интерфейса из зависшего состояния загрузки или сверки платежа.
//
// Таймер привязывается к предикату "операция ещё идёт" и допуску по времени.
// Если допуск истёк, а предикат всё ещё истинен, вызывается onTimeout.
// Если предикат к этому моменту очистился, таймер тихо снимается с охраны.
package watchdog

import (
	"sync"
	"time"
)

// Handle управляет взведённым сторожевым таймером.
// Stop обязан вызываться при штатном завершении охраняемой операции
// и при завершении владеющего компонента: остановленный таймер
// не срабатывает никогда.
type Handle struct {
	timer *time.Timer

	mu      sync.Mutex
	stopped bool
	fired   bool
}

// Arm взводит сторожевой таймер: через tolerance проверяется predicate,
// и если охраняемая операция всё ещё идёт, однократно вызывается onTimeout.
func Arm(predicate func() bool, tolerance time.Duration, onTimeout func()) *Handle {
	h := &Handle{}
	h.timer = time.AfterFunc(tolerance, func() {
		h.mu.Lock()
		if h.stopped || !predicate() {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()

		onTimeout()
	})
	return h
}

// Stop снимает таймер с охраны. Повторные вызовы безопасны.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	h.timer.Stop()
}

// Fired сообщает, успел ли таймер сработать.
func (h *Handle) Fired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}
