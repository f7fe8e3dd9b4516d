package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/catalog"
)

const (
	// TopWindowDays: окно в календарных днях для расчёта самого продаваемого товара.
	TopWindowDays = 30
	// DefaultListLimit: размер списков топа и последних продаж.
	DefaultListLimit = 5
)

// SalesReader отдаёт журнал продаж от новых к старым.
type SalesReader interface {
	ListSales() ([]domain.Sale, error)
}

// ProductLister отдаёт товары каталога.
type ProductLister interface {
	ListProducts() ([]domain.Product, error)
}

// ProductSales: сумма продаж товара за окно.
type ProductSales struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// Summary: все показатели панели.
type Summary struct {
	RevenueToday    decimal.Decimal `json:"revenueToday"`
	SalesCountToday int             `json:"salesCountToday"`
	TotalSales      int             `json:"totalSales"`
	TopProduct      *ProductSales   `json:"topProduct"`
	TopProducts     []ProductSales  `json:"topProducts"`
	OutOfStockCount int             `json:"outOfStockCount"`
	RecentSales     []domain.Sale   `json:"recentSales"`
	Catalog         catalog.Stats   `json:"catalog"`
}

// View считает показатели панели заново при каждом вызове.
type View struct {
	sales    SalesReader
	products ProductLister
	location *time.Location
	now      func() time.Time
}

// Option настраивает View.
type Option func(*View)

// WithLocation задаёт часовой пояс для границы дня.
func WithLocation(loc *time.Location) Option {
	return func(v *View) {
		if loc != nil {
			v.location = loc
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}

// NewView создаёт панель поверх журнала продаж и каталога.
func NewView(sales SalesReader, products ProductLister, options ...Option) *View {
	v := &View{
		sales:    sales,
		products: products,
		location: time.Local,
		now:      time.Now,
	}
	for _, option := range options {
		option(v)
	}
	return v
}

// RevenueToday суммирует завершённые продажи текущего дня.
func (v *View) RevenueToday() (decimal.Decimal, error) {
	sales, err := v.sales.ListSales()
	if err != nil {
		return decimal.Zero, err
	}
	revenue, _ := v.today(sales)
	return revenue, nil
}

// SalesCountToday считает завершённые продажи текущего дня.
func (v *View) SalesCountToday() (int, error) {
	sales, err := v.sales.ListSales()
	if err != nil {
		return 0, err
	}
	_, count := v.today(sales)
	return count, nil
}

// TopProductLast30Days возвращает самый продаваемый товар за 30 дней или nil, если продаж не было.
func (v *View) TopProductLast30Days() (*ProductSales, error) {
	top, err := v.TopProducts(1)
	if err != nil || len(top) == 0 {
		return nil, err
	}
	return &top[0], nil
}

// TopProducts возвращает limit товаров с наибольшим количеством за 30 дней.
// При равенстве первым идёт товар, встреченный раньше при обходе журнала.
func (v *View) TopProducts(limit int) ([]ProductSales, error) {
	sales, err := v.sales.ListSales()
	if err != nil {
		return nil, err
	}
	return v.rank(sales, limit), nil
}

// OutOfStockCount считает товары с нулевым остатком.
func (v *View) OutOfStockCount() (int, error) {
	products, err := v.products.ListProducts()
	if err != nil {
		return 0, err
	}
	return outOfStock(products), nil
}

// RecentSales возвращает limit последних продаж.
func (v *View) RecentSales(limit int) ([]domain.Sale, error) {
	sales, err := v.sales.ListSales()
	if err != nil {
		return nil, err
	}
	return recent(sales, limit), nil
}

// Summary собирает все показатели по одному снимку журнала и каталога.
func (v *View) Summary() (Summary, error) {
	sales, err := v.sales.ListSales()
	if err != nil {
		return Summary{}, err
	}
	products, err := v.products.ListProducts()
	if err != nil {
		return Summary{}, err
	}

	revenue, count := v.today(sales)
	top := v.rank(sales, DefaultListLimit)
	summary := Summary{
		RevenueToday:    revenue,
		SalesCountToday: count,
		TotalSales:      len(sales),
		TopProducts:     top,
		OutOfStockCount: outOfStock(products),
		RecentSales:     recent(sales, DefaultListLimit),
		Catalog:         catalog.ComputeStats(products),
	}
	if len(top) > 0 {
		first := top[0]
		summary.TopProduct = &first
	}
	return summary, nil
}

func (v *View) today(sales []domain.Sale) (decimal.Decimal, int) {
	now := v.now()
	revenue := decimal.Zero
	count := 0
	for _, sale := range sales {
		if sale.Status != domain.SaleStatusCompleted || !sale.CreatedOn(now, v.location) {
			continue
		}
		revenue = revenue.Add(sale.Total)
		count++
	}
	return revenue, count
}

func (v *View) rank(sales []domain.Sale, limit int) []ProductSales {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	since := v.now().In(v.location).AddDate(0, 0, -TopWindowDays)

	index := make(map[string]int)
	ranked := make([]ProductSales, 0)
	for _, sale := range sales {
		if sale.Status != domain.SaleStatusCompleted || sale.CreatedAt.Before(since) {
			continue
		}
		for _, item := range sale.Items {
			i, ok := index[item.ProductID]
			if !ok {
				i = len(ranked)
				index[item.ProductID] = i
				ranked = append(ranked, ProductSales{
					ProductID:   item.ProductID,
					ProductName: item.ProductName,
					Revenue:     decimal.Zero,
				})
			}
			ranked[i].Quantity += item.Quantity
			ranked[i].Revenue = ranked[i].Revenue.Add(item.Subtotal())
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Quantity > ranked[j].Quantity
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func outOfStock(products []domain.Product) int {
	count := 0
	for _, p := range products {
		if p.Stock == 0 {
			count++
		}
	}
	return count
}

func recent(sales []domain.Sale, limit int) []domain.Sale {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(sales) > limit {
		sales = sales[:limit]
	}
	result := make([]domain.Sale, len(sales))
	copy(result, sales)
	return result
}
