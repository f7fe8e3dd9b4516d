package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/metrics"
)

// AggregateType: тип агрегата в событиях outbox.
const AggregateType = "sale"

// ProductReader: часть каталога, нужная для снимка цен.
type ProductReader interface {
	GetProduct(id string) (domain.Product, error)
}

// Service ведёт журнал продаж: создание, смена статуса и запросы.
type Service struct {
	catalog  ProductReader
	sales    domain.SaleRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.SalesMetrics
	retry    RetryConfig
	location *time.Location
	now      func() time.Time
	sleep    func(time.Duration)
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает запись событий в transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithTimeline включает историю статусов.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) {
		s.timeline = timeline
	}
}

// WithLogger задаёт logger журнала.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики продаж.
func WithMetrics(m *metrics.SalesMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetry задаёт политику повторов при конфликте версий.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg.normalized()
	}
}

// WithLocation задаёт часовой пояс кассы для границ календарного дня.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep подменяет ожидание между повторами.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewService создаёт журнал продаж.
func NewService(catalog ProductReader, sales domain.SaleRepository, options ...Option) *Service {
	s := &Service{
		catalog:  catalog,
		sales:    sales,
		logger:   log.WithField("component", "ledger"),
		retry:    DefaultRetryConfig(),
		location: time.Local,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    time.Sleep,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Location возвращает часовой пояс кассы.
func (s *Service) Location() *time.Location {
	return s.location
}

// Now возвращает текущее время по часам журнала.
func (s *Service) Now() time.Time {
	return s.now()
}

// CreateSale превращает строки корзины в продажу со снимком цен и атомарно списывает остатки.
func (s *Service) CreateSale(items []domain.CartItem) (domain.Sale, error) {
	lines, err := mergeLines(items)
	if err != nil {
		s.reject(err)
		return domain.Sale{}, err
	}

	saleItems := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.catalog.GetProduct(line.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				err = fmt.Errorf("%w: %s", domain.ErrProductNotFound, line.ProductID)
			}
			s.reject(err)
			return domain.Sale{}, err
		}
		if product.Stock < line.Quantity {
			err := fmt.Errorf("%w: %s has %d, requested %d", domain.ErrInsufficientStock, product.ID, product.Stock, line.Quantity)
			s.reject(err)
			return domain.Sale{}, err
		}
		saleItems = append(saleItems, domain.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
		})
	}

	now := s.now()
	sale := domain.Sale{
		ID:        uuid.NewString(),
		Items:     saleItems,
		Total:     domain.ItemsTotal(saleItems),
		Status:    domain.SaleStatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := sale.ValidateInvariants(); len(errs) > 0 {
		err := errors.Join(errs...)
		s.reject(err)
		return domain.Sale{}, err
	}

	start := time.Now()
	err = s.sales.CreateSale(sale)
	if s.metrics != nil {
		s.metrics.RecordCommitDuration(time.Since(start))
	}
	if err != nil {
		s.reject(err)
		s.logger.WithError(err).WithField("sale_id", sale.ID).Warn("sale commit rejected")
		return domain.Sale{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSaleCreated(sale.Total.InexactFloat64())
	}
	s.logger.WithFields(log.Fields{
		"sale_id": sale.ID,
		"total":   sale.Total.StringFixed(2),
		"items":   len(sale.Items),
	}).Info("sale created")

	s.emitEvent(sale, domain.EventSaleCreated, map[string]interface{}{
		"status": string(sale.Status),
		"total":  sale.Total.StringFixed(2),
		"items":  sale.Items,
		"ts":     sale.CreatedAt.Format(time.RFC3339Nano),
	})
	return sale, nil
}

// UpdateStatus переводит продажу в выбранный статус из любого текущего.
// Вход в CANCELLED возвращает остатки, выход из CANCELLED списывает их заново.
func (s *Service) UpdateStatus(saleID string, status domain.SaleStatus) (domain.Sale, error) {
	if !status.Valid() {
		return domain.Sale{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}

	for attempt := 1; ; attempt++ {
		sale, err := s.sales.GetSale(saleID)
		if err != nil {
			return domain.Sale{}, err
		}
		if sale.Status == status {
			return sale, nil
		}

		previous := sale.Status
		var movements []domain.StockMovement
		switch {
		case status == domain.SaleStatusCancelled:
			movements = sale.RestockMovements()
		case previous == domain.SaleStatusCancelled:
			movements = sale.ReserveMovements()
		}

		updated := sale.Clone()
		updated.Status = status
		updated.UpdatedAt = s.now()

		err = s.sales.SaveSale(updated, movements)
		if err == nil {
			updated.Version = sale.Version + 1
			s.afterStatusChange(updated, previous, movements)
			return updated, nil
		}

		if domain.IsVersionConflict(err) && attempt < s.retry.MaxAttempts {
			if s.metrics != nil {
				s.metrics.RecordStatusConflict()
			}
			s.logger.WithFields(log.Fields{
				"sale_id": saleID,
				"attempt": attempt,
				"version": sale.Version,
			}).Warn("version conflict detected, retrying")
			s.sleep(s.retry.delay(attempt))
			continue
		}

		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": saleID,
			"status":  status,
			"attempt": attempt,
		}).Warn("failed to persist status")
		return domain.Sale{}, err
	}
}

// GetSale возвращает продажу по идентификатору.
func (s *Service) GetSale(id string) (domain.Sale, error) {
	return s.sales.GetSale(id)
}

// ListSales возвращает продажи от новых к старым.
func (s *Service) ListSales() ([]domain.Sale, error) {
	return s.sales.ListSales()
}

// CompletedToday возвращает завершённые продажи текущего календарного дня.
func (s *Service) CompletedToday() ([]domain.Sale, error) {
	sales, err := s.sales.ListSales()
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := make([]domain.Sale, 0)
	for _, sale := range sales {
		if sale.Status == domain.SaleStatusCompleted && sale.CreatedOn(now, s.location) {
			result = append(result, sale)
		}
	}
	return result, nil
}

// Timeline возвращает историю продажи.
func (s *Service) Timeline(saleID string) ([]domain.TimelineEvent, error) {
	if _, err := s.sales.GetSale(saleID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.timeline.List(saleID)
}

func (s *Service) afterStatusChange(sale domain.Sale, previous domain.SaleStatus, movements []domain.StockMovement) {
	if s.metrics != nil {
		s.metrics.RecordStatusChange(string(sale.Status))
	}
	s.logger.WithFields(log.Fields{
		"sale_id": sale.ID,
		"from":    previous,
		"status":  sale.Status,
	}).Info("sale status changed")

	ts := sale.UpdatedAt.Format(time.RFC3339Nano)
	s.emitEvent(sale, domain.EventSaleStatusChanged, map[string]interface{}{
		"from":   string(previous),
		"status": string(sale.Status),
		"reason": fmt.Sprintf("%s -> %s", previous, sale.Status),
		"ts":     ts,
	})

	if len(movements) == 0 {
		return
	}
	eventType := domain.EventSaleStockRestored
	if sale.Status != domain.SaleStatusCancelled {
		eventType = domain.EventSaleStockReserved
	}
	s.emitEvent(sale, eventType, map[string]interface{}{
		"movements": movements,
		"ts":        ts,
	})
}

func (s *Service) reject(err error) {
	if s.metrics != nil {
		s.metrics.RecordSaleRejected(rejectReason(err))
	}
}

func (s *Service) emitEvent(sale domain.Sale, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["sale_id"] = sale.ID

	if s.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"sale_id": sale.ID,
				"event":   eventType,
			}).Error("marshal event failed")
		} else if _, err := s.outbox.Enqueue(domain.OutboxMessage{
			AggregateType: AggregateType,
			AggregateID:   sale.ID,
			EventType:     eventType,
			Payload:       data,
		}); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"sale_id": sale.ID,
				"event":   eventType,
			}).Error("enqueue event failed")
		} else if s.metrics != nil {
			s.metrics.RecordOutboxEvent()
		}
	}

	if s.timeline == nil {
		return
	}
	occurred := s.now()
	if ts, ok := payload["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			occurred = parsed
		}
	}
	reason, _ := payload["reason"].(string)
	event := domain.TimelineEvent{
		SaleID:   sale.ID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": sale.ID,
			"event":   eventType,
		}).Warn("append timeline event failed")
	} else if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// mergeLines проверяет строки корзины и объединяет повторы товара, сохраняя порядок первого вхождения.
func mergeLines(items []domain.CartItem) ([]domain.CartItem, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	index := make(map[string]int, len(items))
	merged := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %s has quantity %d", domain.ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "storage"
	}
}
