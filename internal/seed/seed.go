// Package seed заполняет пустое хранилище демонстрационным меню и продажами.
package seed

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

type productSeed struct {
	id          string
	name        string
	description string
	price       string
	categoryID  string
	stock       int
}

type saleSeed struct {
	id       string
	status   domain.SaleStatus
	daysAgo  int
	quantity map[string]int
	order    []string
}

var categories = []domain.Category{
	{ID: "1", Name: "Cafés Especiais", SortOrder: 1},
	{ID: "2", Name: "Salgados", SortOrder: 2},
	{ID: "3", Name: "Doces e Sobremesas", SortOrder: 3},
	{ID: "4", Name: "Bebidas Geladas", SortOrder: 4},
}

var products = []productSeed{
	{id: "p1", name: "Espresso Intenso", description: "Café forte e encorpado.", price: "7.50", categoryID: "1", stock: 50},
	{id: "p2", name: "Cappuccino Cremoso", description: "Espresso, leite vaporizado e espuma.", price: "12.00", categoryID: "1", stock: 30},
	{id: "p3", name: "Pão de Queijo", description: "Tradicional pão de queijo mineiro.", price: "5.00", categoryID: "2", stock: 100},
	{id: "p4", name: "Croissant de Chocolate", description: "Massa folhada com recheio de chocolate.", price: "9.00", categoryID: "3", stock: 0},
	{id: "p5", name: "Torta de Limão", description: "Fatia de torta com merengue suíço.", price: "15.00", categoryID: "3", stock: 15},
	{id: "p6", name: "Frappuccino de Caramelo", description: "Bebida gelada com café, leite e caramelo.", price: "18.00", categoryID: "4", stock: 25},
	{id: "p7", name: "Coxinha de Frango", description: "Salgado frito com recheio de frango cremoso.", price: "8.00", categoryID: "2", stock: 40},
}

var sales = []saleSeed{
	{id: "s3", status: domain.SaleStatusPending, daysAgo: 1, quantity: map[string]int{"p6": 1, "p7": 2}, order: []string{"p6", "p7"}},
	{id: "s2", status: domain.SaleStatusPreparing, quantity: map[string]int{"p2": 1}, order: []string{"p2"}},
	{id: "s1", status: domain.SaleStatusCompleted, quantity: map[string]int{"p1": 2, "p3": 1}, order: []string{"p1", "p3"}},
}

// Load заполняет хранилище, если в нём ещё нет категорий, и сообщает, были ли записаны данные.
// Остатки после загрузки совпадают с демонстрационными: проданные количества
// добавляются к начальному остатку и списываются записью продажи.
func Load(catalog domain.CatalogRepository, ledger domain.SaleRepository, now time.Time, logger *log.Entry) (bool, error) {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}

	existing, err := catalog.ListCategories()
	if err != nil {
		return false, fmt.Errorf("list categories: %w", err)
	}
	if len(existing) > 0 {
		logger.Debug("storage is not empty, skipping demo data")
		return false, nil
	}

	sold := make(map[string]int)
	for _, s := range sales {
		for id, qty := range s.quantity {
			sold[id] += qty
		}
	}

	for _, category := range categories {
		category.CreatedAt = now
		category.UpdatedAt = now
		if err := catalog.CreateCategory(category); err != nil {
			return false, fmt.Errorf("seed category %s: %w", category.ID, err)
		}
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		product := domain.Product{
			ID:          p.id,
			Name:        p.name,
			Description: p.description,
			Price:       decimal.RequireFromString(p.price),
			CategoryID:  p.categoryID,
			Stock:       p.stock + sold[p.id],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := catalog.CreateProduct(product); err != nil {
			return false, fmt.Errorf("seed product %s: %w", p.id, err)
		}
		byID[p.id] = product
	}

	for _, s := range sales {
		sale, err := buildSale(s, byID, now)
		if err != nil {
			return false, err
		}
		if err := ledger.CreateSale(sale); err != nil {
			return false, fmt.Errorf("seed sale %s: %w", s.id, err)
		}
	}

	logger.WithFields(log.Fields{
		"categories": len(categories),
		"products":   len(products),
		"sales":      len(sales),
	}).Info("demo data loaded")
	return true, nil
}

func buildSale(s saleSeed, products map[string]domain.Product, now time.Time) (domain.Sale, error) {
	items := make([]domain.SaleItem, 0, len(s.order))
	for _, id := range s.order {
		product, ok := products[id]
		if !ok {
			return domain.Sale{}, fmt.Errorf("seed sale %s: %w: %s", s.id, domain.ErrProductNotFound, id)
		}
		items = append(items, domain.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    s.quantity[id],
			Price:       product.Price,
		})
	}

	createdAt := now.AddDate(0, 0, -s.daysAgo)
	sale := domain.Sale{
		ID:        s.id,
		Items:     items,
		Total:     domain.ItemsTotal(items),
		Status:    s.status,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if errs := sale.ValidateInvariants(); len(errs) > 0 {
		return domain.Sale{}, fmt.Errorf("seed sale %s: %w", s.id, errors.Join(errs...))
	}
	return sale, nil
}
