package kafka

import (
	"encoding/json"
	"time"
)

// Топики событий кассы.
const (
	TopicSaleEvents      = "cafe.sale.events"
	TopicDeadLetterQueue = "cafe.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
	HeaderFailedAt      = "x-failed-at"
)

// SaleEvent: конверт события продажи в Kafka.
type SaleEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	SaleID        string          `json:"sale_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Headers возвращает заголовки для маршрутизации без разбора тела.
func (e SaleEvent) Headers() map[string]string {
	return map[string]string{
		HeaderEventType:     e.EventType,
		HeaderAggregateType: e.AggregateType,
		HeaderOutboxID:      e.ID,
	}
}
