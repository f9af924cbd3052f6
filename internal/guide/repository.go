package guide

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/internal/shared"
)

// TxRepository is the write surface available inside one guide transaction.
type TxRepository interface {
	GetActiveProduct(ctx context.Context, bossID, productID int64) (*masterdata.Product, error)
	InsertGuide(ctx context.Context, g *SalesGuide) error
	InsertGuideItems(ctx context.Context, guideID int64, items []GuideItem) error
	GetGuideForUpdate(ctx context.Context, bossID, id int64) (*SalesGuide, error)
	UpdateGuideItem(ctx context.Context, item GuideItem) error
	UpdateGuide(ctx context.Context, g *SalesGuide) error
}

// Repository provides PostgreSQL backed persistence for sales guides.
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

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
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
		return nil, fmt.Errorf("guide: get active product: %w", err)
	}
	p.Price = db.NumericToDecimal(price)
	return &p, nil
}

func (t *txRepo) InsertGuide(ctx context.Context, g *SalesGuide) error {
	const query = `
		INSERT INTO sales_guide (boss_id, seller_id, guide_date, status,
			total_taken_value, total_sold_value, total_remaining_value,
			notes, local_id, sync_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := t.tx.QueryRow(ctx, query,
		g.BossID, g.SellerID, g.GuideDate.Time, g.Status,
		db.DecimalParam(g.TotalTakenValue), db.DecimalParam(g.TotalSoldValue),
		db.DecimalParam(g.TotalRemainingValue), g.Notes, g.LocalID, g.SyncStatus,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("guide: insert guide: %w", err)
	}
	return nil
}

func (t *txRepo) InsertGuideItems(ctx context.Context, guideID int64, items []GuideItem) error {
	for i := range items {
		items[i].GuideID = guideID
		err := t.tx.QueryRow(ctx,
			`INSERT INTO guide_item (guide_id, product_id, quantity_taken, quantity_remaining,
				quantity_sold, unit_price, total_taken_value, total_sold_value, total_remaining_value)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
			guideID, items[i].ProductID, items[i].QuantityTaken, items[i].QuantityRemaining,
			items[i].QuantitySold, db.DecimalParam(items[i].UnitPrice),
			db.DecimalParam(items[i].TotalTakenValue), db.DecimalParam(items[i].TotalSoldValue),
			db.DecimalParam(items[i].TotalRemainingValue),
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("guide: insert guide item: %w", err)
		}
	}
	return nil
}

func (t *txRepo) GetGuideForUpdate(ctx context.Context, bossID, id int64) (*SalesGuide, error) {
	g, err := scanGuide(t.tx.QueryRow(ctx,
		"SELECT "+guideColumns+" FROM sales_guide WHERE id = $1 AND boss_id = $2 FOR UPDATE",
		id, bossID))
	if err != nil {
		return nil, err
	}
	items, err := loadGuideItems(ctx, t.tx, []int64{g.ID})
	if err != nil {
		return nil, err
	}
	g.Items = items[g.ID]
	return g, nil
}

func (t *txRepo) UpdateGuideItem(ctx context.Context, item GuideItem) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE guide_item SET quantity_remaining = $1, quantity_sold = $2,
			total_taken_value = $3, total_sold_value = $4, total_remaining_value = $5
		 WHERE id = $6`,
		item.QuantityRemaining, item.QuantitySold,
		db.DecimalParam(item.TotalTakenValue), db.DecimalParam(item.TotalSoldValue),
		db.DecimalParam(item.TotalRemainingValue), item.ID)
	if err != nil {
		return fmt.Errorf("guide: update guide item: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateGuide(ctx context.Context, g *SalesGuide) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales_guide SET status = $1, closed_at = $2,
			total_taken_value = $3, total_sold_value = $4, total_remaining_value = $5,
			updated_at = NOW()
		 WHERE id = $6`,
		g.Status, g.ClosedAt,
		db.DecimalParam(g.TotalTakenValue), db.DecimalParam(g.TotalSoldValue),
		db.DecimalParam(g.TotalRemainingValue), g.ID)
	if err != nil {
		return fmt.Errorf("guide: update guide: %w", err)
	}
	return nil
}

const guideColumns = `id, boss_id, seller_id, guide_date, status,
	total_taken_value, total_sold_value, total_remaining_value,
	notes, closed_at, local_id, sync_status, created_at, updated_at`

func scanGuide(row pgx.Row) (*SalesGuide, error) {
	var g SalesGuide
	var date pgtype.Date
	var taken, sold, remaining pgtype.Numeric
	err := row.Scan(
		&g.ID, &g.BossID, &g.SellerID, &date, &g.Status,
		&taken, &sold, &remaining, &g.Notes, &g.ClosedAt, &g.LocalID, &g.SyncStatus,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("guide: scan guide: %w", err)
	}
	g.GuideDate = shared.DateOf(date.Time)
	g.TotalTakenValue = db.NumericToDecimal(taken)
	g.TotalSoldValue = db.NumericToDecimal(sold)
	g.TotalRemainingValue = db.NumericToDecimal(remaining)
	return &g, nil
}

func loadGuideItems(ctx context.Context, q rowQuerier, guideIDs []int64) (map[int64][]GuideItem, error) {
	if len(guideIDs) == 0 {
		return map[int64][]GuideItem{}, nil
	}
	const query = `
		SELECT id, guide_id, product_id, quantity_taken, quantity_remaining, quantity_sold,
			unit_price, total_taken_value, total_sold_value, total_remaining_value
		FROM guide_item WHERE guide_id = ANY($1) ORDER BY id`

	rows, err := q.Query(ctx, query, guideIDs)
	if err != nil {
		return nil, fmt.Errorf("guide: load guide items: %w", err)
	}
	defer rows.Close()

	out := map[int64][]GuideItem{}
	for rows.Next() {
		var item GuideItem
		var unitPrice, taken, sold, remaining pgtype.Numeric
		if err := rows.Scan(
			&item.ID, &item.GuideID, &item.ProductID, &item.QuantityTaken,
			&item.QuantityRemaining, &item.QuantitySold,
			&unitPrice, &taken, &sold, &remaining,
		); err != nil {
			return nil, err
		}
		item.UnitPrice = db.NumericToDecimal(unitPrice)
		item.TotalTakenValue = db.NumericToDecimal(taken)
		item.TotalSoldValue = db.NumericToDecimal(sold)
		item.TotalRemainingValue = db.NumericToDecimal(remaining)
		out[item.GuideID] = append(out[item.GuideID], item)
	}
	return out, rows.Err()
}

// GetGuide retrieves a guide with its items.
func (r *Repository) GetGuide(ctx context.Context, bossID, id int64) (*SalesGuide, error) {
	g, err := scanGuide(r.pool.QueryRow(ctx,
		"SELECT "+guideColumns+" FROM sales_guide WHERE id = $1 AND boss_id = $2", id, bossID))
	if err != nil {
		return nil, err
	}
	items, err := loadGuideItems(ctx, r.pool, []int64{g.ID})
	if err != nil {
		return nil, err
	}
	g.Items = items[g.ID]
	return g, nil
}

// ListGuides returns the tenant's guides matching the filter, items included.
func (r *Repository) ListGuides(ctx context.Context, bossID int64, filter ListFilter) ([]SalesGuide, error) {
	query := "SELECT " + guideColumns + " FROM sales_guide WHERE boss_id = $1"
	args := []any{bossID}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, filter.From.Time)
		query += fmt.Sprintf(" AND guide_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, filter.To.Time)
		query += fmt.Sprintf(" AND guide_date <= $%d", len(args))
	}
	query += " ORDER BY guide_date DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("guide: list guides: %w", err)
	}
	defer rows.Close()

	var out []SalesGuide
	var ids []int64
	for rows.Next() {
		var g SalesGuide
		var date pgtype.Date
		var taken, sold, remaining pgtype.Numeric
		if err := rows.Scan(
			&g.ID, &g.BossID, &g.SellerID, &date, &g.Status,
			&taken, &sold, &remaining, &g.ClosedAt, &g.LocalID, &g.SyncStatus,
			&g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, err
		}
		g.GuideDate = shared.DateOf(date.Time)
		g.TotalTakenValue = db.NumericToDecimal(taken)
		g.TotalSoldValue = db.NumericToDecimal(sold)
		g.TotalRemainingValue = db.NumericToDecimal(remaining)
		out = append(out, g)
		ids = append(ids, g.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadGuideItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// SumSalesTotal sums the total_amount of the sales linked to a guide.
func (r *Repository) SumSalesTotal(ctx context.Context, guideID int64) (decimal.Decimal, error) {
	var total pgtype.Numeric
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_amount), 0) FROM sale WHERE guide_id = $1`, guideID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("guide: sum sales total: %w", err)
	}
	return db.NumericToDecimal(total), nil
}

// DeleteGuide removes a guide. Sales keep existing but lose the guide
// reference, then the items and the guide row go.
func (r *Repository) DeleteGuide(ctx context.Context, bossID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sales_guide WHERE id = $1 AND boss_id = $2)`,
			id, bossID).Scan(&exists); err != nil {
			return fmt.Errorf("guide: check guide: %w", err)
		}
		if !exists {
			return shared.ErrNotFound
		}

		statements := []string{
			`UPDATE sale SET guide_id = NULL WHERE guide_id = $1`,
			`DELETE FROM guide_item WHERE guide_id = $1`,
			`DELETE FROM sales_guide WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("guide: delete guide cascade: %w", err)
			}
		}
		return nil
	})
}
