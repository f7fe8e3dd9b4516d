package domain

import "time"

// Типы событий журнала продаж.
const (
	EventSaleCreated       = "sale.created"
	EventSaleStatusChanged = "sale.status_changed"
	EventSaleStockRestored = "sale.stock_restored"
	EventSaleStockReserved = "sale.stock_reserved"
)

// TimelineEvent описывает событие в истории продажи.
type TimelineEvent struct {
	SaleID   string    `json:"saleId"`
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}
