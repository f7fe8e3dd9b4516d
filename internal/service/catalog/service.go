package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	"github.com/vladislavdragonenkov/cafe/internal/metrics"
)

// ProductInput: данные формы создания товара.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  string          `json:"categoryId"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"imageUrl"`
}

// CategoryInput: данные формы создания категории.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sortOrder"`
}

// MenuSection: категория меню с товарами в наличии.
type MenuSection struct {
	Category domain.Category  `json:"category"`
	Products []domain.Product `json:"products"`
}

// Stats: сводка по каталогу для административной панели.
type Stats struct {
	Total          int             `json:"total"`
	Available      int             `json:"available"`
	Unavailable    int             `json:"unavailable"`
	LowStock       int             `json:"lowStock"`
	InventoryValue decimal.Decimal `json:"inventoryValue"`
}

// Service управляет жизненным циклом товаров и категорий.
type Service struct {
	repo    domain.CatalogRepository
	logger  *log.Entry
	metrics *metrics.SalesMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики ручных изменений остатков.
func WithMetrics(m *metrics.SalesMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис каталога.
func NewService(repo domain.CatalogRepository, options ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.WithField("component", "catalog"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// AddProduct создаёт товар с новым идентификатором.
func (s *Service) AddProduct(input ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price,
		CategoryID:  strings.TrimSpace(input.CategoryID),
		Stock:       input.Stock,
		ImageURL:    strings.TrimSpace(input.ImageURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if _, err := s.repo.GetCategory(product.CategoryID); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.CreateProduct(product); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"product_id":  product.ID,
		"category_id": product.CategoryID,
	}).Info("product created")
	return product, nil
}

// UpdateProduct перезаписывает редактируемые поля товара.
func (s *Service) UpdateProduct(product domain.Product) (domain.Product, error) {
	current, err := s.repo.GetProduct(product.ID)
	if err != nil {
		return domain.Product{}, err
	}

	product.Name = strings.TrimSpace(product.Name)
	product.Description = strings.TrimSpace(product.Description)
	product.CategoryID = strings.TrimSpace(product.CategoryID)
	product.ImageURL = strings.TrimSpace(product.ImageURL)
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = s.now()
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if _, err := s.repo.GetCategory(product.CategoryID); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.UpdateProduct(product); err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

// DeleteProduct удаляет товар. Снимки в прошлых продажах сохраняются.
func (s *Service) DeleteProduct(id string) error {
	if err := s.repo.DeleteProduct(id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(id string) (domain.Product, error) {
	return s.repo.GetProduct(id)
}

// ListProducts возвращает все товары, включая отсутствующие на складе.
func (s *Service) ListProducts() ([]domain.Product, error) {
	return s.repo.ListProducts()
}

// Search возвращает весь каталог, отфильтрованный по строке поиска и категории,
// включая товары с нулевым остатком.
func (s *Service) Search(search, categoryID string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts()
	if err != nil {
		return nil, err
	}
	return domain.MatchProducts(products, search, categoryID), nil
}

// Filter возвращает товары витрины по строке поиска и категории.
func (s *Service) Filter(search, categoryID string) ([]domain.Product, error) {
	products, err := s.repo.ListProducts()
	if err != nil {
		return nil, err
	}
	return domain.FilterProducts(products, search, categoryID), nil
}

// AdjustStock прибавляет delta к остатку. Результат ниже нуля отклоняется.
func (s *Service) AdjustStock(productID string, delta int) (domain.Product, error) {
	product, err := s.repo.AdjustStock(productID, delta)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordStockAdjustment("rejected")
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.logger.WithFields(log.Fields{
				"product_id": productID,
				"delta":      delta,
			}).Warn("stock adjustment rejected")
		}
		return domain.Product{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordStockAdjustment("applied")
	}
	return product, nil
}

// AddCategory создаёт категорию.
func (s *Service) AddCategory(input CategoryInput) (domain.Category, error) {
	now := s.now()
	category := domain.Category{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		SortOrder:   input.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := category.Validate(); err != nil {
		return domain.Category{}, err
	}
	if err := s.repo.CreateCategory(category); err != nil {
		return domain.Category{}, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

// UpdateCategory перезаписывает поля категории.
func (s *Service) UpdateCategory(category domain.Category) (domain.Category, error) {
	current, err := s.repo.GetCategory(category.ID)
	if err != nil {
		return domain.Category{}, err
	}

	category.Name = strings.TrimSpace(category.Name)
	category.Description = strings.TrimSpace(category.Description)
	category.CreatedAt = current.CreatedAt
	category.UpdatedAt = s.now()
	if err := category.Validate(); err != nil {
		return domain.Category{}, err
	}
	if err := s.repo.UpdateCategory(category); err != nil {
		return domain.Category{}, fmt.Errorf("update category: %w", err)
	}
	return category, nil
}

// DeleteCategory удаляет категорию; пока на неё ссылаются товары, возвращает ErrCategoryInUse.
func (s *Service) DeleteCategory(id string) error {
	if err := s.repo.DeleteCategory(id); err != nil {
		return err
	}
	s.logger.WithField("category_id", id).Info("category deleted")
	return nil
}

// GetCategory возвращает категорию по идентификатору.
func (s *Service) GetCategory(id string) (domain.Category, error) {
	return s.repo.GetCategory(id)
}

// ListCategories возвращает категории в порядке меню.
func (s *Service) ListCategories() ([]domain.Category, error) {
	return s.repo.ListCategories()
}

// Menu группирует товары в наличии по категориям. Пустые категории не выводятся.
func (s *Service) Menu() ([]MenuSection, error) {
	categories, err := s.repo.ListCategories()
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts()
	if err != nil {
		return nil, err
	}

	sections := make([]MenuSection, 0, len(categories))
	for _, category := range categories {
		available := domain.FilterProducts(products, "", category.ID)
		if len(available) == 0 {
			continue
		}
		sections = append(sections, MenuSection{Category: category, Products: available})
	}
	return sections, nil
}

// Stats считает сводку по каталогу.
func (s *Service) Stats() (Stats, error) {
	products, err := s.repo.ListProducts()
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(products), nil
}

// ComputeStats считает сводку по переданным товарам.
func ComputeStats(products []domain.Product) Stats {
	stats := Stats{Total: len(products), InventoryValue: decimal.Zero}
	for _, p := range products {
		if p.Available() {
			stats.Available++
		} else {
			stats.Unavailable++
		}
		if p.Stock <= domain.LowStockThreshold {
			stats.LowStock++
		}
		stats.InventoryValue = stats.InventoryValue.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Stock))))
	}
	return stats
}
