package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/internal/shared"
)

// TxRepository is the set of writes and lookups available inside one sale
// construction transaction.
type TxRepository interface {
	GetActiveProduct(ctx context.Context, bossID, productID int64) (*masterdata.Product, error)
	CustomerBelongsToBoss(ctx context.Context, bossID, customerID int64) (bool, error)
	GuideBelongsToSeller(ctx context.Context, guideID, sellerID int64) (bool, error)
	InsertSale(ctx context.Context, sale *Sale) error
	InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) error
	InsertCredit(ctx context.Context, c credit.Credit) (int64, error)
}

// Repository provides PostgreSQL backed persistence for sales.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one transaction exposing the TxRepository surface.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetActiveProduct(ctx context.Context, bossID, productID int64) (*masterdata.Product, error) {
	const query = `
		SELECT id, boss_id, name, price, is_active, created_at, updated_at
		FROM product WHERE id = $1 AND boss_id = $2 AND is_active = TRUE`

	var p masterdata.Product
	var price pgtype.Numeric
	err := t.tx.QueryRow(ctx, query, productID, bossID).Scan(
		&p.ID, &p.BossID, &p.Name, &price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sales: get active product: %w", err)
	}
	p.Price = db.NumericToDecimal(price)
	return &p, nil
}

func (t *txRepo) CustomerBelongsToBoss(ctx context.Context, bossID, customerID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customer WHERE id = $1 AND boss_id = $2)`,
		customerID, bossID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sales: check customer: %w", err)
	}
	return ok, nil
}

func (t *txRepo) GuideBelongsToSeller(ctx context.Context, guideID, sellerID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sales_guide WHERE id = $1 AND seller_id = $2)`,
		guideID, sellerID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sales: check guide: %w", err)
	}
	return ok, nil
}

func (t *txRepo) InsertSale(ctx context.Context, sale *Sale) error {
	const query = `
		INSERT INTO sale (boss_id, seller_id, customer_id, guide_id, payment_type,
			total_amount, sale_date, local_id, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := t.tx.QueryRow(ctx, query,
		sale.BossID, sale.SellerID, sale.CustomerID, sale.GuideID, sale.PaymentType,
		db.DecimalParam(sale.TotalAmount), sale.SaleDate.Time, sale.LocalID, sale.SyncStatus,
	).Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sales: insert sale: %w", err)
	}
	return nil
}

func (t *txRepo) InsertSaleItems(ctx context.Context, saleID int64, items []SaleItem) error {
	for i := range items {
		items[i].SaleID = saleID
		err := t.tx.QueryRow(ctx,
			`INSERT INTO sale_item (sale_id, product_id, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			saleID, items[i].ProductID, items[i].Quantity,
			db.DecimalParam(items[i].UnitPrice), db.DecimalParam(items[i].Subtotal),
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("sales: insert sale item: %w", err)
		}
	}
	return nil
}

func (t *txRepo) InsertCredit(ctx context.Context, c credit.Credit) (int64, error) {
	var id int64
	var dueDate *time.Time
	if c.DueDate != nil {
		dueDate = &c.DueDate.Time
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO credit (boss_id, seller_id, sale_id, customer_id, amount, amount_paid,
			is_paid, due_date, local_id, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9, NOW(), NOW())
		 RETURNING id`,
		c.BossID, c.SellerID, c.SaleID, c.CustomerID,
		db.DecimalParam(c.Amount), db.DecimalParam(c.AmountPaid), dueDate, c.LocalID, c.SyncStatus,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sales: insert credit: %w", err)
	}
	return id, nil
}

const saleColumns = `id, boss_id, seller_id, customer_id, guide_id, payment_type,
	total_amount, sale_date, local_id, sync_status, created_at, updated_at`

func scanSaleRow(row pgx.Row) (*Sale, error) {
	var s Sale
	var total pgtype.Numeric
	var date pgtype.Date
	err := row.Scan(
		&s.ID, &s.BossID, &s.SellerID, &s.CustomerID, &s.GuideID, &s.PaymentType,
		&total, &date, &s.LocalID, &s.SyncStatus, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.TotalAmount = db.NumericToDecimal(total)
	s.SaleDate = shared.DateOf(date.Time)
	return &s, nil
}

// GetSale retrieves a sale with its items.
func (r *Repository) GetSale(ctx context.Context, bossID, id int64) (*Sale, error) {
	s, err := scanSaleRow(r.pool.QueryRow(ctx,
		"SELECT "+saleColumns+" FROM sale WHERE id = $1 AND boss_id = $2", id, bossID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sales: get sale: %w", err)
	}
	items, err := r.loadItems(ctx, []int64{s.ID})
	if err != nil {
		return nil, err
	}
	s.Items = items[s.ID]
	return s, nil
}

// ListSales returns the tenant's sales matching the filter, items included.
func (r *Repository) ListSales(ctx context.Context, bossID int64, filter ListFilter) ([]Sale, error) {
	query := "SELECT " + saleColumns + " FROM sale WHERE boss_id = $1"
	args := []any{bossID}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.GuideID != nil {
		args = append(args, *filter.GuideID)
		query += fmt.Sprintf(" AND guide_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, filter.From.Time)
		query += fmt.Sprintf(" AND sale_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, filter.To.Time)
		query += fmt.Sprintf(" AND sale_date <= $%d", len(args))
	}
	query += " ORDER BY sale_date DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sales: list sales: %w", err)
	}
	defer rows.Close()

	var out []Sale
	var ids []int64
	for rows.Next() {
		var s Sale
		var total pgtype.Numeric
		var date pgtype.Date
		if err := rows.Scan(
			&s.ID, &s.BossID, &s.SellerID, &s.CustomerID, &s.GuideID, &s.PaymentType,
			&total, &date, &s.LocalID, &s.SyncStatus, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		s.TotalAmount = db.NumericToDecimal(total)
		s.SaleDate = shared.DateOf(date.Time)
		out = append(out, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *Repository) loadItems(ctx context.Context, saleIDs []int64) (map[int64][]SaleItem, error) {
	if len(saleIDs) == 0 {
		return map[int64][]SaleItem{}, nil
	}
	const query = `
		SELECT id, sale_id, product_id, quantity, unit_price, subtotal
		FROM sale_item WHERE sale_id = ANY($1) ORDER BY id`

	rows, err := r.pool.Query(ctx, query, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("sales: load items: %w", err)
	}
	defer rows.Close()

	out := map[int64][]SaleItem{}
	for rows.Next() {
		var item SaleItem
		var unitPrice, subtotal pgtype.Numeric
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &unitPrice, &subtotal); err != nil {
			return nil, err
		}
		item.UnitPrice = db.NumericToDecimal(unitPrice)
		item.Subtotal = db.NumericToDecimal(subtotal)
		out[item.SaleID] = append(out[item.SaleID], item)
	}
	return out, rows.Err()
}

// DeleteSale removes a sale and its dependents in order: credit payments,
// credit, sale items, then the sale row.
func (r *Repository) DeleteSale(ctx context.Context, bossID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sale WHERE id = $1 AND boss_id = $2)`,
			id, bossID).Scan(&exists); err != nil {
			return fmt.Errorf("sales: check sale: %w", err)
		}
		if !exists {
			return shared.ErrNotFound
		}

		statements := []string{
			`DELETE FROM credit_payment WHERE credit_id IN (SELECT id FROM credit WHERE sale_id = $1)`,
			`DELETE FROM credit WHERE sale_id = $1`,
			`DELETE FROM sale_item WHERE sale_id = $1`,
			`DELETE FROM sale WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("sales: delete sale cascade: %w", err)
			}
		}
		return nil
	})
}
