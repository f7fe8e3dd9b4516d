package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewSalesMetrics(t *testing.T) {
	metrics := NewSalesMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics.salesCreated == nil {
		t.Error("salesCreated counter should not be nil")
	}
	if metrics.salesRejected == nil {
		t.Error("salesRejected counter vec should not be nil")
	}
	if metrics.statusChanges == nil {
		t.Error("statusChanges counter vec should not be nil")
	}
	if metrics.commitDuration == nil {
		t.Error("commitDuration histogram should not be nil")
	}
	if metrics.stockAdjustments == nil {
		t.Error("stockAdjustments counter vec should not be nil")
	}
}

func TestNewSalesMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewSalesMetricsWithRegisterer(reg)
	second := NewSalesMetricsWithRegisterer(reg)

	first.RecordSaleCreated(10)
	second.RecordSaleCreated(5)

	metric := &dto.Metric{}
	if err := second.salesCreated.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordSaleCreated(t *testing.T) {
	metrics := NewSalesMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordSaleCreated(20)
	metrics.RecordSaleCreated(12.5)
	metrics.RecordSaleCreated(0)

	created := &dto.Metric{}
	if err := metrics.salesCreated.Write(created); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if created.Counter.GetValue() != 3.0 {
		t.Errorf("expected counter value 3.0, got %f", created.Counter.GetValue())
	}

	revenue := &dto.Metric{}
	if err := metrics.revenue.Write(revenue); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if revenue.Counter.GetValue() != 32.5 {
		t.Errorf("expected revenue 32.5, got %f", revenue.Counter.GetValue())
	}
}

func TestRecordSaleRejected(t *testing.T) {
	metrics := NewSalesMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordSaleRejected("empty_cart")
	metrics.RecordSaleRejected("empty_cart")
	metrics.RecordSaleRejected("insufficient_stock")

	metric := &dto.Metric{}
	if err := metrics.salesRejected.WithLabelValues("empty_cart").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordStatusChangeAndConflict(t *testing.T) {
	metrics := NewSalesMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordStatusChange("COMPLETED")
	metrics.RecordStatusConflict()

	metric := &dto.Metric{}
	if err := metrics.statusChanges.WithLabelValues("COMPLETED").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	conflicts := &dto.Metric{}
	if err := metrics.statusConflicts.Write(conflicts); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if conflicts.Counter.GetValue() != 1.0 {
		t.Errorf("expected conflicts 1.0, got %f", conflicts.Counter.GetValue())
	}
}

func TestRecordCommitDuration(t *testing.T) {
	metrics := NewSalesMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCommitDuration(2 * time.Millisecond)
	metrics.RecordCommitDuration(8 * time.Millisecond)

	metric := &dto.Metric{}
	if err := metrics.commitDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
	sum := metric.Histogram.GetSampleSum()
	if sum < 0.0099 || sum > 0.0101 {
		t.Errorf("expected sum around 0.01, got %f", sum)
	}
}

func TestRecordTimelineAndOutboxEvents(t *testing.T) {
	metrics := NewSalesMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()
	metrics.RecordStockAdjustment("applied")

	timeline := &dto.Metric{}
	if err := metrics.timelineEvents.Write(timeline); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if timeline.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", timeline.Counter.GetValue())
	}

	outbox := &dto.Metric{}
	if err := metrics.outboxEvents.Write(outbox); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if outbox.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", outbox.Counter.GetValue())
	}
}
