package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics содержит метрики журнала продаж и каталога.
type SalesMetrics struct {
	// Счётчики продаж
	salesCreated  prometheus.Counter
	salesRejected *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	revenue       prometheus.Counter

	// Конфликты версий при смене статуса
	statusConflicts prometheus.Counter

	// Время атомарной фиксации продажи
	commitDuration prometheus.Histogram

	// Ручные изменения остатков
	stockAdjustments *prometheus.CounterVec

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewSalesMetrics регистрирует метрики в глобальном registry.
func NewSalesMetrics() *SalesMetrics {
	return NewSalesMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSalesMetricsWithRegisterer регистрирует метрики в переданном registry (изолированные тесты).
func NewSalesMetricsWithRegisterer(registerer prometheus.Registerer) *SalesMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SalesMetrics{
		salesCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cafe_sales_created_total",
			Help: "Total number of sales committed to the ledger",
		}),
		salesRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cafe_sales_rejected_total",
			Help: "Total number of sale attempts rejected, grouped by reason",
		}, []string{"reason"}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cafe_sale_status_changes_total",
			Help: "Total number of sale status changes, grouped by target status",
		}, []string{"status"}),
		revenue: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cafe_sales_revenue_total",
			Help: "Sum of totals of committed sales",
		}),
		statusConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cafe_sale_status_conflicts_total",
			Help: "Total number of optimistic lock conflicts while changing sale status",
		}),
		commitDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "cafe_sale_commit_duration_seconds",
			Help:    "Duration of atomic sale commits in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		stockAdjustments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "cafe_stock_adjustments_total",
			Help: "Total number of manual stock adjustments, grouped by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cafe_timeline_events_total",
			Help: "Total number of sale timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cafe_outbox_events_total",
			Help: "Total number of sale events enqueued to the outbox",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSaleCreated учитывает созданную продажу и её сумму.
func (m *SalesMetrics) RecordSaleCreated(total float64) {
	m.salesCreated.Inc()
	if total > 0 {
		m.revenue.Add(total)
	}
}

// RecordSaleRejected учитывает отклонённую продажу.
func (m *SalesMetrics) RecordSaleRejected(reason string) {
	m.salesRejected.WithLabelValues(reason).Inc()
}

// RecordStatusChange учитывает смену статуса.
func (m *SalesMetrics) RecordStatusChange(status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordStatusConflict учитывает конфликт версий.
func (m *SalesMetrics) RecordStatusConflict() {
	m.statusConflicts.Inc()
}

// RecordCommitDuration записывает время фиксации продажи.
func (m *SalesMetrics) RecordCommitDuration(duration time.Duration) {
	m.commitDuration.Observe(duration.Seconds())
}

// RecordStockAdjustment учитывает ручное изменение остатка.
func (m *SalesMetrics) RecordStockAdjustment(result string) {
	m.stockAdjustments.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *SalesMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SalesMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
