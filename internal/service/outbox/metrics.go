package outbox

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// workerMetrics: метрики публикации событий продаж.
type workerMetrics struct {
	attempts      *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

func newWorkerMetrics(registerer prometheus.Registerer) *workerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &workerMetrics{
		attempts: registerCollector(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cafe_outbox_publish_attempts_total",
			Help: "Outbox publish attempts grouped by result.",
		}, []string{"result"})),
		pending: registerCollector(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cafe_outbox_pending_records",
			Help: "Pending records in the sale events outbox.",
		})),
		oldestPending: registerCollector(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cafe_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest pending outbox record.",
		})),
	}
}

// registerCollector регистрирует коллектор или возвращает уже зарегистрированный.
func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}
