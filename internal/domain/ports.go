package domain

import "time"

// CatalogRepository хранит категории и товары.
// Реализации возвращают копии: изменения полученных значений не влияют на хранилище.
type CatalogRepository interface {
	CreateCategory(category Category) error
	GetCategory(id string) (Category, error)
	ListCategories() ([]Category, error)
	UpdateCategory(category Category) error
	// DeleteCategory отказывает с ErrCategoryInUse, пока на категорию ссылается хотя бы один товар.
	DeleteCategory(id string) error

	CreateProduct(product Product) error
	GetProduct(id string) (Product, error)
	// ListProducts возвращает товары в порядке добавления.
	ListProducts() ([]Product, error)
	UpdateProduct(product Product) error
	DeleteProduct(id string) error
	// AdjustStock атомарно применяет delta; результат ниже нуля отклоняется с ErrInsufficientStock.
	AdjustStock(productID string, delta int) (Product, error)
}

// SaleRepository: журнал продаж. Все операции, затрагивающие остатки,
// фиксируются атомарно вместе с записью продажи.
type SaleRepository interface {
	// CreateSale списывает остатки по всем позициям и сохраняет продажу в одной транзакции.
	// Если хотя бы одна позиция не проходит проверку, не меняется ничего.
	CreateSale(sale Sale) error
	GetSale(id string) (Sale, error)
	// ListSales возвращает продажи от новых к старым.
	ListSales() ([]Sale, error)
	// SaveSale сохраняет продажу с проверкой версии и применяет движения остатков.
	// Движения по удалённым товарам пропускаются.
	SaveSale(sale Sale, movements []StockMovement) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит историю статусов продаж.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(saleID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
