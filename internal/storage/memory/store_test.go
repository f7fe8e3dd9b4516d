package memory_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/storage/memory"
)

func newCatalogStore(t *testing.T) *memory.Store {
	t.Helper()

	store := memory.NewStore()
	if err := store.CreateCategory(domain.Category{ID: "coffee", Name: "Cafés Especiais", SortOrder: 1}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if err := store.CreateCategory(domain.Category{ID: "bakery", Name: "Salgados", SortOrder: 2}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	products := []domain.Product{
		{ID: "espresso", Name: "Espresso", Price: decimal.RequireFromString("7.50"), CategoryID: "coffee", Stock: 10},
		{ID: "latte", Name: "Latte", Price: decimal.RequireFromString("9.00"), CategoryID: "coffee", Stock: 1},
		{ID: "pao", Name: "Pão de Queijo", Price: decimal.RequireFromString("5.00"), CategoryID: "bakery", Stock: 4},
	}
	for _, p := range products {
		if err := store.CreateProduct(p); err != nil {
			t.Fatalf("create product %s: %v", p.ID, err)
		}
	}
	return store
}

func newSale(id string, createdAt time.Time, items ...domain.SaleItem) domain.Sale {
	return domain.Sale{
		ID:        id,
		Items:     items,
		Total:     domain.ItemsTotal(items),
		Status:    domain.SaleStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	p, err := store.GetProduct(id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Stock
}

func TestStore_ListProductsKeepsInsertionOrder(t *testing.T) {
	store := newCatalogStore(t)

	products, err := store.ListProducts()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"espresso", "latte", "pao"}
	for i, id := range want {
		if products[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, products[i].ID)
		}
	}

	if err := store.DeleteProduct("latte"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	products, _ = store.ListProducts()
	if len(products) != 2 || products[1].ID != "pao" {
		t.Fatalf("unexpected products after delete: %+v", products)
	}
}

func TestStore_CategoryDeleteIsRestricted(t *testing.T) {
	store := newCatalogStore(t)

	if err := store.DeleteCategory("bakery"); !errors.Is(err, domain.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}

	if err := store.DeleteProduct("pao"); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := store.DeleteCategory("bakery"); err != nil {
		t.Fatalf("expected delete to succeed once unreferenced, got %v", err)
	}
	if _, err := store.GetCategory("bakery"); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
	if err := store.DeleteCategory("bakery"); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound on second delete, got %v", err)
	}
}

func TestStore_ListCategoriesBySortOrder(t *testing.T) {
	store := newCatalogStore(t)
	if err := store.CreateCategory(domain.Category{ID: "drinks", Name: "Bebidas Geladas", SortOrder: 0}); err != nil {
		t.Fatalf("create category: %v", err)
	}

	categories, err := store.ListCategories()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if categories[0].ID != "drinks" || categories[2].ID != "bakery" {
		t.Fatalf("unexpected order: %+v", categories)
	}
}

func TestStore_ProductRequiresCategory(t *testing.T) {
	store := newCatalogStore(t)

	err := store.CreateProduct(domain.Product{ID: "orphan", Name: "Orphan", CategoryID: "missing"})
	if !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestStore_AdjustStock(t *testing.T) {
	store := newCatalogStore(t)

	updated, err := store.AdjustStock("pao", -4)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if updated.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", updated.Stock)
	}

	if _, err := store.AdjustStock("pao", -1); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, store, "pao"); got != 0 {
		t.Fatalf("rejected adjustment must not change stock, got %d", got)
	}

	if _, err := store.AdjustStock("missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestStore_CreateSaleDecrementsStock(t *testing.T) {
	store := newCatalogStore(t)
	sale := newSale("s1", time.Now().UTC(),
		domain.SaleItem{ProductID: "espresso", Quantity: 3, Price: decimal.RequireFromString("7.50")},
		domain.SaleItem{ProductID: "pao", Quantity: 4, Price: decimal.RequireFromString("5.00")},
	)

	if err := store.CreateSale(sale); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if got := stockOf(t, store, "espresso"); got != 7 {
		t.Fatalf("expected espresso stock 7, got %d", got)
	}
	if got := stockOf(t, store, "pao"); got != 0 {
		t.Fatalf("expected pao stock 0, got %d", got)
	}

	stored, err := store.GetSale("s1")
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if !stored.Total.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("expected total 42.50, got %s", stored.Total)
	}
}

func TestStore_CreateSaleRejectsDuplicateID(t *testing.T) {
	store := newCatalogStore(t)
	sale := newSale("s1", time.Now().UTC(),
		domain.SaleItem{ProductID: "espresso", Quantity: 2, Price: decimal.RequireFromString("7.50")},
	)
	if err := store.CreateSale(sale); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	err := store.CreateSale(sale)
	if err == nil || !strings.Contains(err.Error(), "sale s1 already exists") {
		t.Fatalf("expected duplicate sale error, got %v", err)
	}
	if domain.IsVersionConflict(err) {
		t.Fatalf("duplicate id must not be reported as a version conflict: %v", err)
	}
	if got := stockOf(t, store, "espresso"); got != 8 {
		t.Fatalf("expected espresso stock 8 after rejected duplicate, got %d", got)
	}
}

func TestStore_CreateSaleIsAtomic(t *testing.T) {
	cases := []struct {
		name  string
		items []domain.SaleItem
		want  error
	}{
		{
			name: "unknown product after valid line",
			items: []domain.SaleItem{
				{ProductID: "espresso", Quantity: 2, Price: decimal.RequireFromString("7.50")},
				{ProductID: "ghost", Quantity: 1, Price: decimal.RequireFromString("1.00")},
			},
			want: domain.ErrProductNotFound,
		},
		{
			name: "insufficient stock on last line",
			items: []domain.SaleItem{
				{ProductID: "espresso", Quantity: 2, Price: decimal.RequireFromString("7.50")},
				{ProductID: "latte", Quantity: 2, Price: decimal.RequireFromString("9.00")},
			},
			want: domain.ErrInsufficientStock,
		},
		{
			name: "duplicate lines exceed stock together",
			items: []domain.SaleItem{
				{ProductID: "pao", Quantity: 3, Price: decimal.RequireFromString("5.00")},
				{ProductID: "pao", Quantity: 2, Price: decimal.RequireFromString("5.00")},
			},
			want: domain.ErrInsufficientStock,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newCatalogStore(t)

			err := store.CreateSale(newSale("s-fail", time.Now().UTC(), tc.items...))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}

			if got := stockOf(t, store, "espresso"); got != 10 {
				t.Fatalf("espresso stock changed to %d", got)
			}
			if got := stockOf(t, store, "latte"); got != 1 {
				t.Fatalf("latte stock changed to %d", got)
			}
			if got := stockOf(t, store, "pao"); got != 4 {
				t.Fatalf("pao stock changed to %d", got)
			}
			sales, _ := store.ListSales()
			if len(sales) != 0 {
				t.Fatalf("expected no sales, got %d", len(sales))
			}
		})
	}
}

func TestStore_ListSalesNewestFirst(t *testing.T) {
	store := newCatalogStore(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	item := domain.SaleItem{ProductID: "espresso", Quantity: 1, Price: decimal.RequireFromString("7.50")}

	for _, s := range []domain.Sale{
		newSale("old", base, item),
		newSale("new", base.Add(2*time.Hour), item),
		newSale("mid", base.Add(time.Hour), item),
		newSale("mid-later-insert", base.Add(time.Hour), item),
	} {
		if err := store.CreateSale(s); err != nil {
			t.Fatalf("create sale %s: %v", s.ID, err)
		}
	}

	sales, err := store.ListSales()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"new", "mid-later-insert", "mid", "old"}
	for i, id := range want {
		if sales[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, sales[i].ID)
		}
	}
}

func TestStore_SaveSaleVersionAndMovements(t *testing.T) {
	store := newCatalogStore(t)
	sale := newSale("s1", time.Now().UTC(),
		domain.SaleItem{ProductID: "espresso", Quantity: 3, Price: decimal.RequireFromString("7.50")},
	)
	if err := store.CreateSale(sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	stored, _ := store.GetSale("s1")
	stored.Status = domain.SaleStatusCancelled
	if err := store.SaveSale(stored, stored.RestockMovements()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if got := stockOf(t, store, "espresso"); got != 10 {
		t.Fatalf("expected restored stock 10, got %d", got)
	}

	// Устаревшая версия отклоняется и не трогает остатки.
	if err := store.SaveSale(stored, stored.ReserveMovements()); !errors.Is(err, domain.ErrSaleVersionConflict) {
		t.Fatalf("expected ErrSaleVersionConflict, got %v", err)
	}
	if got := stockOf(t, store, "espresso"); got != 10 {
		t.Fatalf("conflicting save changed stock to %d", got)
	}

	fresh, _ := store.GetSale("s1")
	if fresh.Version != 1 || fresh.Status != domain.SaleStatusCancelled {
		t.Fatalf("unexpected stored sale %+v", fresh)
	}

	if err := store.SaveSale(domain.Sale{ID: "missing"}, nil); !errors.Is(err, domain.ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}
}

func TestStore_SaveSaleSkipsDeletedProducts(t *testing.T) {
	store := newCatalogStore(t)
	sale := newSale("s1", time.Now().UTC(),
		domain.SaleItem{ProductID: "latte", Quantity: 1, Price: decimal.RequireFromString("9.00")},
		domain.SaleItem{ProductID: "pao", Quantity: 2, Price: decimal.RequireFromString("5.00")},
	)
	if err := store.CreateSale(sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := store.DeleteProduct("latte"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	stored, _ := store.GetSale("s1")
	stored.Status = domain.SaleStatusCancelled
	if err := store.SaveSale(stored, stored.RestockMovements()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if got := stockOf(t, store, "pao"); got != 4 {
		t.Fatalf("expected pao stock restored to 4, got %d", got)
	}
}

func TestStore_SaveSaleRejectsNegativeStock(t *testing.T) {
	store := newCatalogStore(t)
	sale := newSale("s1", time.Now().UTC(),
		domain.SaleItem{ProductID: "latte", Quantity: 1, Price: decimal.RequireFromString("9.00")},
	)
	if err := store.CreateSale(sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	stored, _ := store.GetSale("s1")
	stored.Status = domain.SaleStatusPending
	err := store.SaveSale(stored, stored.ReserveMovements())
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	fresh, _ := store.GetSale("s1")
	if fresh.Version != 0 {
		t.Fatalf("rejected save must not bump version, got %d", fresh.Version)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := newCatalogStore(t)
	sale := newSale("s1", time.Now().UTC(),
		domain.SaleItem{ProductID: "espresso", Quantity: 1, Price: decimal.RequireFromString("7.50")},
	)
	if err := store.CreateSale(sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	got, _ := store.GetSale("s1")
	got.Items[0].Quantity = 50

	again, _ := store.GetSale("s1")
	if again.Items[0].Quantity != 1 {
		t.Fatalf("stored sale mutated through returned copy: %d", again.Items[0].Quantity)
	}
}
