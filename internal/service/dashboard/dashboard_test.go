package dashboard_test

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/service/dashboard"
)

type salesStub struct {
	sales []domain.Sale
	err   error
}

func (s salesStub) ListSales() ([]domain.Sale, error) { return s.sales, s.err }

type productsStub []domain.Product

func (p productsStub) ListProducts() ([]domain.Product, error) { return p, nil }

var now = time.Date(2026, 7, 15, 14, 0, 0, 0, time.UTC)

func sale(id string, total int64, status domain.SaleStatus, createdAt time.Time, items ...domain.SaleItem) domain.Sale {
	return domain.Sale{ID: id, Total: decimal.NewFromInt(total), Status: status, CreatedAt: createdAt, Items: items}
}

func item(id string, qty int, price int64) domain.SaleItem {
	return domain.SaleItem{ProductID: id, ProductName: id, Quantity: qty, Price: decimal.NewFromInt(price)}
}

func newView(sales []domain.Sale, products ...domain.Product) *dashboard.View {
	return dashboard.NewView(salesStub{sales: sales}, productsStub(products),
		dashboard.WithLocation(time.UTC),
		dashboard.WithClock(func() time.Time { return now }),
	)
}

func TestRevenueAndCountToday(t *testing.T) {
	view := newView([]domain.Sale{
		sale("s1", 20, domain.SaleStatusCompleted, now.Add(-time.Hour)),
		sale("s2", 12, domain.SaleStatusPreparing, now.Add(-2*time.Hour)),
		sale("s3", 34, domain.SaleStatusCompleted, now.Add(-24*time.Hour)),
	})

	revenue, err := view.RevenueToday()
	require.NoError(t, err)
	assert.True(t, revenue.Equal(decimal.NewFromInt(20)), revenue.String())

	count, err := view.SalesCountToday()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRevenueTodayMidnightBoundary(t *testing.T) {
	midnight := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	view := newView([]domain.Sale{
		sale("at-midnight", 5, domain.SaleStatusCompleted, midnight),
		sale("before", 7, domain.SaleStatusCompleted, midnight.Add(-time.Nanosecond)),
	})

	revenue, err := view.RevenueToday()
	require.NoError(t, err)
	assert.True(t, revenue.Equal(decimal.NewFromInt(5)), revenue.String())
}

func TestTopProductLast30Days(t *testing.T) {
	view := newView([]domain.Sale{
		sale("new", 0, domain.SaleStatusCompleted, now.Add(-time.Hour), item("latte", 2, 10), item("cake", 3, 12)),
		sale("pending", 0, domain.SaleStatusPending, now.Add(-time.Hour), item("espresso", 50, 7)),
		sale("old", 0, domain.SaleStatusCompleted, now.Add(-31*24*time.Hour), item("espresso", 40, 7)),
		sale("mid", 0, domain.SaleStatusCompleted, now.Add(-10*24*time.Hour), item("latte", 1, 10)),
	})

	top, err := view.TopProductLast30Days()
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "latte", top.ProductID, "latte (3) ties with cake (3) and is met first")
	assert.Equal(t, 3, top.Quantity)
	assert.True(t, top.Revenue.Equal(decimal.NewFromInt(30)))

	ranked, err := view.TopProducts(5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "cake", ranked[1].ProductID)
}

func TestTopProductWindowUsesCalendarDays(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 29 марта 2026 Берлин переходит на летнее время: 30 календарных дней короче 720 часов.
	clock := time.Date(2026, 4, 10, 12, 0, 0, 0, berlin)
	boundary := time.Date(2026, 3, 11, 12, 0, 0, 0, berlin)
	view := dashboard.NewView(salesStub{sales: []domain.Sale{
		sale("edge", 0, domain.SaleStatusCompleted, boundary, item("latte", 1, 10)),
		sale("outside", 0, domain.SaleStatusCompleted, boundary.Add(-30*time.Minute), item("espresso", 9, 7)),
	}}, productsStub(nil),
		dashboard.WithLocation(berlin),
		dashboard.WithClock(func() time.Time { return clock.UTC() }),
	)

	top, err := view.TopProductLast30Days()
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "latte", top.ProductID)

	ranked, err := view.TopProducts(5)
	require.NoError(t, err)
	assert.Len(t, ranked, 1)
}

func TestTopProductWithoutSales(t *testing.T) {
	top, err := newView(nil).TopProductLast30Days()
	require.NoError(t, err)
	assert.Nil(t, top)
}

func TestOutOfStockCount(t *testing.T) {
	view := newView(nil,
		domain.Product{ID: "a", Stock: 0},
		domain.Product{ID: "b", Stock: 3},
		domain.Product{ID: "c", Stock: 0},
	)
	count, err := view.OutOfStockCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSummary(t *testing.T) {
	sales := make([]domain.Sale, 0, 7)
	for i := 0; i < 7; i++ {
		sales = append(sales, sale(string(rune('a'+i)), 10, domain.SaleStatusCompleted, now.Add(-time.Duration(i)*time.Minute), item("latte", 1, 10)))
	}
	view := newView(sales, domain.Product{ID: "latte", Price: decimal.NewFromInt(10), Stock: 0})

	summary, err := view.Summary()
	require.NoError(t, err)
	assert.Equal(t, 7, summary.TotalSales)
	assert.Equal(t, 7, summary.SalesCountToday)
	assert.True(t, summary.RevenueToday.Equal(decimal.NewFromInt(70)))
	assert.Len(t, summary.RecentSales, dashboard.DefaultListLimit)
	assert.Equal(t, "a", summary.RecentSales[0].ID)
	require.NotNil(t, summary.TopProduct)
	assert.Equal(t, 7, summary.TopProduct.Quantity)
	assert.Equal(t, 1, summary.OutOfStockCount)
	assert.Equal(t, 1, summary.Catalog.Unavailable)
}

func TestViewPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	view := dashboard.NewView(salesStub{err: boom}, productsStub(nil))

	_, err := view.RevenueToday()
	assert.ErrorIs(t, err, boom)
	_, err = view.Summary()
	assert.ErrorIs(t, err, boom)
}
