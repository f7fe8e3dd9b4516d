package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold: остаток, начиная с которого товар считается заканчивающимся.
const LowStockThreshold = 10

// PriceScale: число знаков после запятой в цене, столбцы NUMERIC(12,2).
const PriceScale = 2

// Product: позиция каталога.
type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	CategoryID  string          `json:"categoryId" db:"category_id"`
	Stock       int             `json:"stock" db:"stock"`
	ImageURL    string          `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Available сообщает, показывается ли товар в меню.
func (p Product) Available() bool {
	return p.Stock > 0
}

// Validate выполняет проверки формы товара: имя, цена > 0 в копейках, остаток >= 0.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: product price must be greater than zero", ErrValidation)
	}
	if !p.Price.Equal(p.Price.Round(PriceScale)) {
		return fmt.Errorf("%w: product price must have at most %d fractional digits", ErrValidation, PriceScale)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: product stock must be non-negative", ErrValidation)
	}
	if strings.TrimSpace(p.CategoryID) == "" {
		return fmt.Errorf("%w: product category is required", ErrValidation)
	}
	return nil
}

// MatchProducts отбирает товары по подстроке в имени без учёта регистра и опциональной
// категории. Остатки не учитываются, порядок входа сохраняется.
func MatchProducts(products []Product, search, categoryID string) []Product {
	return matchProducts(products, search, categoryID, false)
}

// FilterProducts работает как MatchProducts, но оставляет только товары в наличии.
func FilterProducts(products []Product, search, categoryID string) []Product {
	return matchProducts(products, search, categoryID, true)
}

func matchProducts(products []Product, search, categoryID string, onlyAvailable bool) []Product {
	needle := strings.ToLower(strings.TrimSpace(search))
	categoryID = strings.TrimSpace(categoryID)

	result := make([]Product, 0, len(products))
	for _, p := range products {
		if onlyAvailable && !p.Available() {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		result = append(result, p)
	}
	return result
}
