package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus описывает стадию обработки продажи.
type SaleStatus string

const (
	// SaleStatusPending: продажа создана и ждёт начала приготовления.
	SaleStatusPending SaleStatus = "PENDING"
	// SaleStatusPreparing: заказ готовится.
	SaleStatusPreparing SaleStatus = "PREPARING"
	// SaleStatusReady: заказ готов к выдаче.
	SaleStatusReady SaleStatus = "READY"
	// SaleStatusCompleted: заказ выдан, продажа учитывается в выручке.
	SaleStatusCompleted SaleStatus = "COMPLETED"
	// SaleStatusCancelled: продажа отменена.
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// SaleStatuses перечисляет статусы в порядке жизненного цикла.
var SaleStatuses = []SaleStatus{
	SaleStatusPending,
	SaleStatusPreparing,
	SaleStatusReady,
	SaleStatusCompleted,
	SaleStatusCancelled,
}

var saleStatusLabels = map[SaleStatus]string{
	SaleStatusPending:   "Pendente",
	SaleStatusPreparing: "Em Preparo",
	SaleStatusReady:     "Pronto para Retirada",
	SaleStatusCompleted: "Concluído",
	SaleStatusCancelled: "Cancelado",
}

// Valid проверяет, что статус входит в перечисление.
func (s SaleStatus) Valid() bool {
	_, ok := saleStatusLabels[s]
	return ok
}

// Terminal сообщает, завершён ли жизненный цикл продажи.
func (s SaleStatus) Terminal() bool {
	return s == SaleStatusCompleted || s == SaleStatusCancelled
}

// Label возвращает подпись статуса для интерфейса кассы.
func (s SaleStatus) Label() string {
	if label, ok := saleStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// ParseSaleStatus разбирает статус без учёта регистра.
func ParseSaleStatus(raw string) (SaleStatus, error) {
	status := SaleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// SaleItem: позиция продажи. Price и ProductName фиксируются в момент продажи
// и не меняются при последующем изменении каталога.
type SaleItem struct {
	ProductID   string          `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`
}

// Subtotal возвращает стоимость позиции.
func (i SaleItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Sale: запись журнала продаж.
type Sale struct {
	ID        string          `json:"id" db:"id"`
	Items     []SaleItem      `json:"items"`
	Total     decimal.Decimal `json:"total" db:"total"`
	Status    SaleStatus      `json:"status" db:"status"`
	Version   int64           `json:"version" db:"version"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// ItemsTotal суммирует стоимость позиций.
func ItemsTotal(items []SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateInvariants возвращает список нарушений инвариантов продажи.
func (s Sale) ValidateInvariants() []error {
	var errs []error
	if len(s.Items) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	for _, item := range s.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		if !item.Price.IsPositive() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if !s.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if !ItemsTotal(s.Items).Equal(s.Total) {
		errs = append(errs, ErrTotalMismatch)
	}
	return errs
}

// Clone возвращает копию продажи с независимым срезом позиций.
func (s Sale) Clone() Sale {
	dst := s
	dst.Items = append([]SaleItem(nil), s.Items...)
	return dst
}

// StockMovement: изменение остатка, применяемое атомарно вместе со сменой статуса.
type StockMovement struct {
	ProductID string
	Delta     int
}

// RestockMovements возвращает возврат остатков по позициям продажи.
func (s Sale) RestockMovements() []StockMovement {
	return s.movements(1)
}

// ReserveMovements возвращает повторное списание остатков по позициям продажи.
func (s Sale) ReserveMovements() []StockMovement {
	return s.movements(-1)
}

func (s Sale) movements(sign int) []StockMovement {
	result := make([]StockMovement, 0, len(s.Items))
	for _, item := range s.Items {
		result = append(result, StockMovement{ProductID: item.ProductID, Delta: sign * item.Quantity})
	}
	return result
}

// CreatedOn сообщает, создана ли продажа в тот же календарный день, что и day, в зоне loc.
func (s Sale) CreatedOn(day time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	y1, m1, d1 := s.CreatedAt.In(loc).Date()
	y2, m2, d2 := day.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
