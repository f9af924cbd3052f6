package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/guide"
	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/internal/sales"
	"github.com/rotasales/rotasales/internal/shared"
)

// Store provides PostgreSQL backed persistence for the sync engine.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// OpenLog inserts the batch log in IN_PROGRESS state.
func (s *Store) OpenLog(ctx context.Context, log *SyncLog) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_log (seller_id, type, status, processed_count, success_count,
			failure_count, started_at)
		 VALUES ($1, $2, $3, $4, 0, 0, $5)
		 RETURNING id`,
		log.SellerID, log.Type, log.Status, log.ProcessedCount, log.StartedAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("sync: open log: %w", err)
	}
	return nil
}

// CloseLog stamps the terminal status and final counters.
func (s *Store) CloseLog(ctx context.Context, logID int64, status LogStatus, success, failure int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = $1, success_count = $2, failure_count = $3,
			finished_at = NOW()
		 WHERE id = $4`,
		status, success, failure, logID)
	if err != nil {
		return fmt.Errorf("sync: close log: %w", err)
	}
	return nil
}

// WithOpTx runs fn inside one operation-scoped transaction.
func (s *Store) WithOpTx(ctx context.Context, fn func(ctx context.Context, tx OpTx) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &opTx{tx: tx})
	})
}

type opTx struct {
	tx pgx.Tx
}

func (t *opTx) findIDByLocalID(ctx context.Context, query, localID string, sellerID int64) (*int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, query, localID, sellerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sync: local id lookup: %w", err)
	}
	return &id, nil
}

func dueDateParam(d *shared.Date) *time.Time {
	if d == nil {
		return nil
	}
	return &d.Time
}

func (t *opTx) FindSaleIDByLocalID(ctx context.Context, sellerID int64, localID string) (*int64, error) {
	return t.findIDByLocalID(ctx,
		`SELECT id FROM sale WHERE local_id = $1 AND seller_id = $2`, localID, sellerID)
}

func (t *opTx) FindGuideIDByLocalID(ctx context.Context, sellerID int64, localID string) (*int64, error) {
	return t.findIDByLocalID(ctx,
		`SELECT id FROM sales_guide WHERE local_id = $1 AND seller_id = $2`, localID, sellerID)
}

func (t *opTx) FindPaymentIDByLocalID(ctx context.Context, sellerID int64, localID string) (*int64, error) {
	return t.findIDByLocalID(ctx,
		`SELECT p.id FROM credit_payment p JOIN credit c ON c.id = p.credit_id
		 WHERE p.local_id = $1 AND c.seller_id = $2`, localID, sellerID)
}

func (t *opTx) InsertSale(ctx context.Context, sale *sales.Sale) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sale (boss_id, seller_id, customer_id, guide_id, payment_type,
			total_amount, sale_date, local_id, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		sale.BossID, sale.SellerID, sale.CustomerID, sale.GuideID, sale.PaymentType,
		db.DecimalParam(sale.TotalAmount), sale.SaleDate.Time, sale.LocalID, sale.SyncStatus,
	).Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sync: insert sale: %w", err)
	}
	return nil
}

func (t *opTx) InsertSaleItems(ctx context.Context, saleID int64, items []sales.SaleItem) error {
	for i := range items {
		items[i].SaleID = saleID
		err := t.tx.QueryRow(ctx,
			`INSERT INTO sale_item (sale_id, product_id, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			saleID, items[i].ProductID, items[i].Quantity,
			db.DecimalParam(items[i].UnitPrice), db.DecimalParam(items[i].Subtotal),
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("sync: insert sale item: %w", err)
		}
	}
	return nil
}

func (t *opTx) InsertCredit(ctx context.Context, c credit.Credit) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO credit (boss_id, seller_id, sale_id, customer_id, amount, amount_paid,
			is_paid, due_date, local_id, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, FALSE, $6, $7, $8, NOW(), NOW())
		 RETURNING id`,
		c.BossID, c.SellerID, c.SaleID, c.CustomerID,
		db.DecimalParam(c.Amount), dueDateParam(c.DueDate), c.LocalID, c.SyncStatus,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sync: insert credit: %w", err)
	}
	return id, nil
}

func (t *opTx) GetCreditForUpdate(ctx context.Context, bossID, creditID int64) (*credit.Credit, error) {
	const query = `
		SELECT id, boss_id, seller_id, sale_id, customer_id, amount, amount_paid,
			is_paid, due_date, local_id, sync_status, created_at, updated_at
		FROM credit WHERE id = $1 AND boss_id = $2 FOR UPDATE`

	var c credit.Credit
	var amount, amountPaid pgtype.Numeric
	var dueDate pgtype.Date
	err := t.tx.QueryRow(ctx, query, creditID, bossID).Scan(
		&c.ID, &c.BossID, &c.SellerID, &c.SaleID, &c.CustomerID,
		&amount, &amountPaid, &c.IsPaid, &dueDate, &c.LocalID, &c.SyncStatus,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: credit %d", shared.ErrNotFound, creditID)
	}
	if err != nil {
		return nil, fmt.Errorf("sync: lock credit: %w", err)
	}
	c.Amount = db.NumericToDecimal(amount)
	c.AmountPaid = db.NumericToDecimal(amountPaid)
	if dueDate.Valid {
		due := shared.DateOf(dueDate.Time)
		c.DueDate = &due
	}
	return &c, nil
}

func (t *opTx) UpdateCreditAmounts(ctx context.Context, c *credit.Credit) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE credit SET amount_paid = $1, is_paid = $2, updated_at = NOW() WHERE id = $3`,
		db.DecimalParam(c.AmountPaid), c.IsPaid, c.ID)
	if err != nil {
		return fmt.Errorf("sync: update credit: %w", err)
	}
	return nil
}

func (t *opTx) InsertCreditPayment(ctx context.Context, payment *credit.CreditPayment) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO credit_payment (credit_id, amount, payment_date, local_id, sync_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		payment.CreditID, db.DecimalParam(payment.Amount), payment.PaymentDate.Time,
		payment.LocalID, payment.SyncStatus,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("sync: insert credit payment: %w", err)
	}
	return nil
}

func (t *opTx) InsertGuide(ctx context.Context, g *guide.SalesGuide) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sales_guide (boss_id, seller_id, guide_date, status,
			total_taken_value, total_sold_value, total_remaining_value,
			notes, local_id, sync_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		g.BossID, g.SellerID, g.GuideDate.Time, g.Status,
		db.DecimalParam(g.TotalTakenValue), db.DecimalParam(g.TotalSoldValue),
		db.DecimalParam(g.TotalRemainingValue), g.Notes, g.LocalID, g.SyncStatus,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sync: insert guide: %w", err)
	}
	return nil
}

func (t *opTx) InsertGuideItems(ctx context.Context, guideID int64, items []guide.GuideItem) error {
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
			return fmt.Errorf("sync: insert guide item: %w", err)
		}
	}
	return nil
}

func (t *opTx) GetGuideBySeller(ctx context.Context, guideID, sellerID int64) (*guide.SalesGuide, error) {
	const query = `
		SELECT id, boss_id, seller_id, guide_date, status,
			total_taken_value, total_sold_value, total_remaining_value,
			notes, closed_at, local_id, sync_status, created_at, updated_at
		FROM sales_guide WHERE id = $1 AND seller_id = $2 FOR UPDATE`

	var g guide.SalesGuide
	var date pgtype.Date
	var taken, sold, remaining pgtype.Numeric
	err := t.tx.QueryRow(ctx, query, guideID, sellerID).Scan(
		&g.ID, &g.BossID, &g.SellerID, &date, &g.Status,
		&taken, &sold, &remaining, &g.Notes, &g.ClosedAt, &g.LocalID, &g.SyncStatus,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: guide %d", shared.ErrNotFound, guideID)
	}
	if err != nil {
		return nil, fmt.Errorf("sync: lock guide: %w", err)
	}
	g.GuideDate = shared.DateOf(date.Time)
	g.TotalTakenValue = db.NumericToDecimal(taken)
	g.TotalSoldValue = db.NumericToDecimal(sold)
	g.TotalRemainingValue = db.NumericToDecimal(remaining)

	rows, err := t.tx.Query(ctx,
		`SELECT id, guide_id, product_id, quantity_taken, quantity_remaining, quantity_sold,
			unit_price, total_taken_value, total_sold_value, total_remaining_value
		 FROM guide_item WHERE guide_id = $1 ORDER BY id`, g.ID)
	if err != nil {
		return nil, fmt.Errorf("sync: load guide items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item guide.GuideItem
		var unitPrice, itemTaken, itemSold, itemRemaining pgtype.Numeric
		if err := rows.Scan(
			&item.ID, &item.GuideID, &item.ProductID, &item.QuantityTaken,
			&item.QuantityRemaining, &item.QuantitySold,
			&unitPrice, &itemTaken, &itemSold, &itemRemaining,
		); err != nil {
			return nil, err
		}
		item.UnitPrice = db.NumericToDecimal(unitPrice)
		item.TotalTakenValue = db.NumericToDecimal(itemTaken)
		item.TotalSoldValue = db.NumericToDecimal(itemSold)
		item.TotalRemainingValue = db.NumericToDecimal(itemRemaining)
		g.Items = append(g.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (t *opTx) UpdateGuideItem(ctx context.Context, item guide.GuideItem) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE guide_item SET quantity_remaining = $1, quantity_sold = $2,
			total_taken_value = $3, total_sold_value = $4, total_remaining_value = $5
		 WHERE id = $6`,
		item.QuantityRemaining, item.QuantitySold,
		db.DecimalParam(item.TotalTakenValue), db.DecimalParam(item.TotalSoldValue),
		db.DecimalParam(item.TotalRemainingValue), item.ID)
	if err != nil {
		return fmt.Errorf("sync: update guide item: %w", err)
	}
	return nil
}

func (t *opTx) UpdateGuide(ctx context.Context, g *guide.SalesGuide) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales_guide SET status = $1, closed_at = $2,
			total_taken_value = $3, total_sold_value = $4, total_remaining_value = $5,
			sync_status = $6, updated_at = NOW()
		 WHERE id = $7`,
		g.Status, g.ClosedAt,
		db.DecimalParam(g.TotalTakenValue), db.DecimalParam(g.TotalSoldValue),
		db.DecimalParam(g.TotalRemainingValue), g.SyncStatus, g.ID)
	if err != nil {
		return fmt.Errorf("sync: update guide: %w", err)
	}
	return nil
}

// DownloadData reads the five snapshot collections through the package
// repositories, all scoped to the seller's tenant.
func (s *Store) DownloadData(ctx context.Context, bossID, sellerID int64) (*DownloadData, error) {
	active := true
	products, err := masterdata.NewRepository(s.pool).ListProducts(ctx, bossID, &active)
	if err != nil {
		return nil, err
	}
	customers, err := masterdata.NewRepository(s.pool).ListCustomers(ctx, bossID)
	if err != nil {
		return nil, err
	}
	sellerSales, err := sales.NewRepository(s.pool).ListSales(ctx, bossID, sales.ListFilter{SellerID: &sellerID})
	if err != nil {
		return nil, err
	}
	credits, err := s.listSellerCredits(ctx, bossID, sellerID)
	if err != nil {
		return nil, err
	}
	guides, err := guide.NewRepository(s.pool).ListGuides(ctx, bossID, guide.ListFilter{SellerID: &sellerID})
	if err != nil {
		return nil, err
	}
	return &DownloadData{
		Products:  products,
		Customers: customers,
		Sales:     sellerSales,
		Credits:   credits,
		Guides:    guides,
	}, nil
}

// listSellerCredits loads the seller's credits with their payments
// embedded, the projection the device replays payments against.
func (s *Store) listSellerCredits(ctx context.Context, bossID, sellerID int64) ([]credit.Credit, error) {
	repo := credit.NewRepository(s.pool)
	credits, err := repo.ListCredits(ctx, bossID, credit.ListFilter{SellerID: &sellerID})
	if err != nil {
		return nil, err
	}
	for i := range credits {
		full, err := repo.GetCredit(ctx, bossID, credits[i].ID)
		if err != nil {
			return nil, err
		}
		credits[i].Payments = full.Payments
	}
	return credits, nil
}
