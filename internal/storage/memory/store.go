package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

// Store: in-memory хранилище каталога и журнала продаж под одной блокировкой.
// Общая блокировка позволяет фиксировать продажу и списание остатков как одну операцию.
type Store struct {
	mu sync.RWMutex

	categories   map[string]domain.Category
	products     map[string]domain.Product
	productOrder []string
	sales        map[string]domain.Sale
	saleOrder    []string

	now func() time.Time
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		sales:      make(map[string]domain.Sale),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateCategory сохраняет новую категорию, если ID ещё не занят.
func (s *Store) CreateCategory(category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[category.ID]; exists {
		return fmt.Errorf("category %s already exists", category.ID)
	}
	s.categories[category.ID] = category
	return nil
}

// GetCategory возвращает категорию или ErrCategoryNotFound.
func (s *Store) GetCategory(id string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return category, nil
}

// ListCategories возвращает категории по SortOrder, затем по имени.
func (s *Store) ListCategories() ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, category := range s.categories {
		result = append(result, category)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder != result[j].SortOrder {
			return result[i].SortOrder < result[j].SortOrder
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateCategory перезаписывает существующую категорию.
func (s *Store) UpdateCategory(category domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[category.ID]; !ok {
		return domain.ErrCategoryNotFound
	}
	s.categories[category.ID] = category
	return nil
}

// DeleteCategory удаляет категорию, если на неё не ссылается ни один товар.
func (s *Store) DeleteCategory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	for _, product := range s.products {
		if product.CategoryID == id {
			return domain.ErrCategoryInUse
		}
	}
	delete(s.categories, id)
	return nil
}

// CreateProduct сохраняет новый товар в конец списка.
func (s *Store) CreateProduct(product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return fmt.Errorf("product %s already exists", product.ID)
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return domain.ErrCategoryNotFound
	}
	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)
	return nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (s *Store) GetProduct(id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// ListProducts возвращает товары в порядке добавления.
func (s *Store) ListProducts() ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		result = append(result, s.products[id])
	}
	return result, nil
}

// UpdateProduct перезаписывает существующий товар.
func (s *Store) UpdateProduct(product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return domain.ErrProductNotFound
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return domain.ErrCategoryNotFound
	}
	s.products[product.ID] = product
	return nil
}

// DeleteProduct удаляет товар. Продажи хранят снимки позиций и не затрагиваются.
func (s *Store) DeleteProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

// AdjustStock применяет delta к остатку; отрицательный результат отклоняется.
func (s *Store) AdjustStock(productID string, delta int) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if product.Stock+delta < 0 {
		return domain.Product{}, fmt.Errorf("%w: product %s has %d, delta %d", domain.ErrInsufficientStock, productID, product.Stock, delta)
	}
	product.Stock += delta
	product.UpdatedAt = s.now()
	s.products[productID] = product
	return product, nil
}

// CreateSale проверяет все позиции и только затем списывает остатки и сохраняет продажу.
func (s *Store) CreateSale(sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[sale.ID]; exists {
		return fmt.Errorf("sale %s already exists", sale.ID)
	}

	movements := make([]domain.StockMovement, 0, len(sale.Items))
	for _, item := range sale.Items {
		movements = append(movements, domain.StockMovement{ProductID: item.ProductID, Delta: -item.Quantity})
	}
	required, err := s.checkMovementsLocked(movements, false)
	if err != nil {
		return err
	}

	now := s.now()
	s.applyMovementsLocked(required, now)
	s.sales[sale.ID] = sale.Clone()
	s.saleOrder = append(s.saleOrder, sale.ID)
	return nil
}

// GetSale возвращает продажу или ErrSaleNotFound.
func (s *Store) GetSale(id string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return domain.Sale{}, domain.ErrSaleNotFound
	}
	return sale.Clone(), nil
}

// ListSales возвращает продажи от новых к старым; при равном времени первой идёт добавленная позже.
func (s *Store) ListSales() ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.saleOrder))
	for i := len(s.saleOrder) - 1; i >= 0; i-- {
		result = append(result, s.sales[s.saleOrder[i]].Clone())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// SaveSale сохраняет продажу с проверкой версии и атомарно применяет движения остатков.
func (s *Store) SaveSale(sale domain.Sale, movements []domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sales[sale.ID]
	if !ok {
		return domain.ErrSaleNotFound
	}
	if current.Version != sale.Version {
		return domain.ErrSaleVersionConflict
	}

	deltas, err := s.checkMovementsLocked(movements, true)
	if err != nil {
		return err
	}

	s.applyMovementsLocked(deltas, s.now())
	sale.Version++
	s.sales[sale.ID] = sale.Clone()
	return nil
}

// checkMovementsLocked суммирует движения по товарам и проверяет, что остаток не уйдёт в минус.
// skipMissing пропускает удалённые товары вместо ошибки.
func (s *Store) checkMovementsLocked(movements []domain.StockMovement, skipMissing bool) (map[string]int, error) {
	deltas := make(map[string]int, len(movements))
	for _, m := range movements {
		if _, ok := s.products[m.ProductID]; !ok {
			if skipMissing {
				continue
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, m.ProductID)
		}
		deltas[m.ProductID] += m.Delta
	}
	for id, delta := range deltas {
		product := s.products[id]
		if product.Stock+delta < 0 {
			return nil, fmt.Errorf("%w: product %s has %d, requested %d", domain.ErrInsufficientStock, id, product.Stock, -delta)
		}
	}
	return deltas, nil
}

func (s *Store) applyMovementsLocked(deltas map[string]int, now time.Time) {
	for id, delta := range deltas {
		if delta == 0 {
			continue
		}
		product := s.products[id]
		product.Stock += delta
		product.UpdatedAt = now
		s.products[id] = product
	}
}

var (
	_ domain.CatalogRepository = (*Store)(nil)
	_ domain.SaleRepository    = (*Store)(nil)
)
