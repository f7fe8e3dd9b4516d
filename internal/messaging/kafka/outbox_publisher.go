package kafka

import (
	"errors"
	"time"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует события outbox в заданный топик.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	source   string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher событий продаж. Пустой topic означает TopicSaleEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicSaleEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт publisher для событий, не доставленных в основной топик source.
func NewDLQPublisher(producer *Producer, topic, source string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if source == "" {
		source = TopicSaleEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, source: source, now: time.Now}
}

// Publish отправляет событие с ключом по продаже, чтобы события одной продажи шли по порядку.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	now := p.now().UTC()
	envelope := SaleEvent{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		SaleID:        event.AggregateID,
		EventType:     event.EventType,
		Payload:       event.Payload,
		PublishedAt:   now,
	}
	headers := envelope.Headers()
	if p.source != "" {
		headers[HeaderOriginalTopic] = p.source
		headers[HeaderFailedAt] = now.Format(time.RFC3339Nano)
	}
	return p.producer.PublishEvent(p.topic, key, envelope, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
