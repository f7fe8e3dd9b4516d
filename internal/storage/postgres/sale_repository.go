package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
)

const saleColumns = `id, total, status, version, created_at, updated_at`

type saleRepository struct {
	db *sqlx.DB
}

type saleItemRow struct {
	SaleID string `db:"sale_id"`
	domain.SaleItem
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{db: store.DB()}
}

func (r *saleRepository) CreateSale(sale domain.Sale) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (:id, :total, :status, :version, :created_at, :updated_at)
	`, sale)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sale %s already exists", sale.ID)
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	reserve := make([]domain.StockMovement, 0, len(sale.Items))
	for _, item := range sale.Items {
		reserve = append(reserve, domain.StockMovement{ProductID: item.ProductID, Delta: -item.Quantity})
	}
	if err = applyMovements(ctx, tx, reserve, false); err != nil {
		return err
	}

	for i, item := range sale.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i, item.ProductID, item.ProductName, item.Quantity, item.Price); err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create sale: %w", err)
	}
	return nil
}

func (r *saleRepository) GetSale(id string) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var sale domain.Sale
	if err := r.db.GetContext(ctx, &sale, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.ErrSaleNotFound
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}

	sales := []domain.Sale{sale}
	if err := r.attachItems(ctx, sales); err != nil {
		return domain.Sale{}, err
	}
	return sales[0], nil
}

func (r *saleRepository) ListSales() ([]domain.Sale, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	sales := make([]domain.Sale, 0)
	if err := r.db.SelectContext(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sales
		ORDER BY created_at DESC, id DESC
	`); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	if err := r.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *saleRepository) SaveSale(sale domain.Sale, movements []domain.StockMovement) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET status = $1,
		    total = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`, string(sale.Status), sale.Total, sale.UpdatedAt, sale.ID, sale.Version)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, sale.ID); err != nil {
			return fmt.Errorf("check sale exists: %w", err)
		}
		if !exists {
			return domain.ErrSaleNotFound
		}
		return domain.ErrSaleVersionConflict
	}

	if err = applyMovements(ctx, tx, movements, true); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save sale: %w", err)
	}
	return nil
}

func (r *saleRepository) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT sale_id, product_id, product_name, quantity, price
		FROM sale_items
		WHERE sale_id IN (?)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return fmt.Errorf("build sale items query: %w", err)
	}

	var rows []saleItemRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("load sale items: %w", err)
	}
	for _, row := range rows {
		i := index[row.SaleID]
		sales[i].Items = append(sales[i].Items, row.SaleItem)
	}
	return nil
}

// applyMovements применяет движения остатков условными UPDATE в порядке id товаров,
// чтобы конкурентные транзакции брали блокировки строк в одном порядке.
func applyMovements(ctx context.Context, tx *sqlx.Tx, movements []domain.StockMovement, skipMissing bool) error {
	deltas := make(map[string]int, len(movements))
	for _, m := range movements {
		deltas[m.ProductID] += m.Delta
	}
	ids := make([]string, 0, len(deltas))
	for id, delta := range deltas {
		if delta != 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	for _, id := range ids {
		delta := deltas[id]
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1,
			    updated_at = $3
			WHERE id = $2
			  AND stock + $1 >= 0
		`, delta, id, now)
		if err != nil {
			return fmt.Errorf("apply stock movement: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			continue
		}

		var stock int
		err = tx.GetContext(ctx, &stock, `SELECT stock FROM products WHERE id = $1`, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if skipMissing {
				continue
			}
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		case err != nil:
			return fmt.Errorf("check product stock: %w", err)
		}
		return fmt.Errorf("%w: product %s has %d, requested %d", domain.ErrInsufficientStock, id, stock, -delta)
	}
	return nil
}

var _ domain.SaleRepository = (*saleRepository)(nil)
