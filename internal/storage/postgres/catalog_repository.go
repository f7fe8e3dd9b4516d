package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

const (
	categoryColumns = `id, name, description, sort_order, created_at, updated_at`
	productColumns  = `id, name, description, price, category_id, stock, image_url, created_at, updated_at`
)

type catalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{db: store.DB()}
}

func (r *catalogRepository) CreateCategory(category domain.Category) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (:id, :name, :description, :sort_order, :created_at, :updated_at)
	`, category)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %s already exists", category.ID)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetCategory(id string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var category domain.Category
	err := r.db.GetContext(ctx, &category, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return category, nil
}

func (r *catalogRepository) ListCategories() ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	categories := make([]domain.Category, 0)
	if err := r.db.SelectContext(ctx, &categories, `
		SELECT `+categoryColumns+`
		FROM categories
		ORDER BY sort_order, name, id
	`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *catalogRepository) UpdateCategory(category domain.Category) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE categories
		SET name = :name,
		    description = :description,
		    sort_order = :sort_order,
		    updated_at = :updated_at
		WHERE id = :id
	`, category)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireAffected(res, domain.ErrCategoryNotFound)
}

func (r *catalogRepository) DeleteCategory(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryInUse
		}
		return fmt.Errorf("delete category: %w", err)
	}
	return requireAffected(res, domain.ErrCategoryNotFound)
}

func (r *catalogRepository) CreateProduct(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (:id, :name, :description, :price, :category_id, :stock, :image_url, :created_at, :updated_at)
	`, product)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domain.ErrCategoryNotFound
		case isUniqueViolation(err):
			return fmt.Errorf("product %s already exists", product.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetProduct(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.GetContext(ctx, &product, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *catalogRepository) ListProducts() ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	products := make([]domain.Product, 0)
	if err := r.db.SelectContext(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY seq
	`); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *catalogRepository) UpdateProduct(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE products
		SET name = :name,
		    description = :description,
		    price = :price,
		    category_id = :category_id,
		    stock = :stock,
		    image_url = :image_url,
		    updated_at = :updated_at
		WHERE id = :id
	`, product)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrCategoryNotFound
		}
		return fmt.Errorf("update product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

func (r *catalogRepository) DeleteProduct(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

// AdjustStock применяет delta одним условным UPDATE: остаток не уходит ниже нуля
// даже при конкурентных списаниях.
func (r *catalogRepository) AdjustStock(productID string, delta int) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.GetContext(ctx, &product, `
		UPDATE products
		SET stock = stock + $2,
		    updated_at = $3
		WHERE id = $1
		  AND stock + $2 >= 0
		RETURNING `+productColumns,
		productID, delta, time.Now().UTC(),
	)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("adjust stock: %w", err)
	}

	current, getErr := r.GetProduct(productID)
	if getErr != nil {
		return domain.Product{}, getErr
	}
	return domain.Product{}, fmt.Errorf("%w: product %s has %d, delta %d", domain.ErrInsufficientStock, productID, current.Stock, delta)
}

func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
