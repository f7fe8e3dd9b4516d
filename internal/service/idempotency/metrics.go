package idempotency

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type cleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

func newCleanupMetrics(registerer prometheus.Registerer) *cleanupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &cleanupMetrics{
		runs: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cafe_idempotency_cleanup_runs_total",
			Help: "Idempotency cleanup runs grouped by result.",
		}, []string{"result"})),
		deleted: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cafe_idempotency_cleanup_deleted_total",
			Help: "Expired idempotency records deleted by the cleanup worker.",
		})),
		lastDeleted: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cafe_idempotency_cleanup_last_deleted",
			Help: "Records deleted during the last cleanup run.",
		})),
	}
}

func newGuardRequests(registerer prometheus.Registerer) *prometheus.CounterVec {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cafe_idempotency_requests_total",
		Help: "Requests carrying an idempotency key grouped by outcome.",
	}, []string{"outcome"}))
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
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
