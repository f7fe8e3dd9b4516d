package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

// ProductReader: часть каталога, нужная корзине.
type ProductReader interface {
	GetProduct(id string) (domain.Product, error)
	ListProducts() ([]domain.Product, error)
}

// SaleCreator принимает строки корзины и фиксирует продажу.
type SaleCreator interface {
	CreateSale(items []domain.CartItem) (domain.Sale, error)
}

// Builder: черновик заказа на кассе. Безопасен для конкурентного использования.
type Builder struct {
	mu      sync.Mutex
	catalog ProductReader
	items   []domain.CartItem
}

// NewBuilder создаёт пустую корзину поверх каталога.
func NewBuilder(catalog ProductReader) *Builder {
	return &Builder{catalog: catalog}
}

// AddToCart увеличивает количество товара на 1 или добавляет новую строку.
func (b *Builder) AddToCart(productID string) error {
	if _, err := b.catalog.GetProduct(productID); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if idx := b.indexLocked(productID); idx >= 0 {
		b.items[idx].Quantity++
		return nil
	}
	b.items = append(b.items, domain.CartItem{ProductID: productID, Quantity: 1})
	return nil
}

// RemoveFromCart удаляет строку товара. Отсутствующая строка игнорируется.
func (b *Builder) RemoveFromCart(productID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(productID)
}

// UpdateQuantity задаёт количество строки; значение <= 0 удаляет строку.
func (b *Builder) UpdateQuantity(productID string, quantity int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if quantity <= 0 {
		b.removeLocked(productID)
		return
	}
	if idx := b.indexLocked(productID); idx >= 0 {
		b.items[idx].Quantity = quantity
	}
}

// Items возвращает копию строк в порядке добавления.
func (b *Builder) Items() []domain.CartItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]domain.CartItem, len(b.items))
	copy(items, b.items)
	return items
}

// Total считает сумму по текущим ценам каталога. Строки удалённых товаров пропускаются.
func (b *Builder) Total() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range b.Items() {
		product, err := b.catalog.GetProduct(item.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("price cart line %s: %w", item.ProductID, err)
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total, nil
}

// Clear очищает корзину.
func (b *Builder) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}

// Checkout передаёт строки в журнал продаж. Корзина очищается только при успехе.
func (b *Builder) Checkout(ledger SaleCreator) (domain.Sale, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]domain.CartItem, len(b.items))
	copy(items, b.items)

	sale, err := ledger.CreateSale(items)
	if err != nil {
		return domain.Sale{}, err
	}
	b.items = nil
	return sale, nil
}

// Products возвращает витрину с учётом поиска и категории.
func (b *Builder) Products(search, categoryID string) ([]domain.Product, error) {
	products, err := b.catalog.ListProducts()
	if err != nil {
		return nil, err
	}
	return domain.FilterProducts(products, search, categoryID), nil
}

func (b *Builder) indexLocked(productID string) int {
	for i, item := range b.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (b *Builder) removeLocked(productID string) {
	if idx := b.indexLocked(productID); idx >= 0 {
		b.items = append(b.items[:idx], b.items[idx+1:]...)
	}
}
