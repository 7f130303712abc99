package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citycom_reconciliation_outcomes_total",
		Help: "Итоги сверки платежей по результатам.",
	}, []string{"result"})

	// WatchdogReleases считает случаи, когда сторожевой таймер отпустил
	// ожидание раньше завершения сверки.
	WatchdogReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "citycom_reconciliation_watchdog_releases_total",
		Help: "Срабатывания сторожевого таймера во время сверки.",
	})
)
