package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/internal/shared"
)

// Repository provides PostgreSQL backed persistence for credits.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const creditColumns = `id, boss_id, seller_id, sale_id, customer_id, amount, amount_paid,
	is_paid, due_date, local_id, sync_status, created_at, updated_at`

func scanCredit(row pgx.Row) (*Credit, error) {
	var c Credit
	var amount, amountPaid pgtype.Numeric
	var dueDate pgtype.Date
	err := row.Scan(
		&c.ID, &c.BossID, &c.SellerID, &c.SaleID, &c.CustomerID,
		&amount, &amountPaid, &c.IsPaid, &dueDate, &c.LocalID, &c.SyncStatus,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Amount = db.NumericToDecimal(amount)
	c.AmountPaid = db.NumericToDecimal(amountPaid)
	if dueDate.Valid {
		due := shared.DateOf(dueDate.Time)
		c.DueDate = &due
	}
	return &c, nil
}

// ListCredits returns the tenant's credits matching the filter, payments
// not included.
func (r *Repository) ListCredits(ctx context.Context, bossID int64, filter ListFilter) ([]Credit, error) {
	query := "SELECT " + creditColumns + " FROM credit WHERE boss_id = $1"
	args := []any{bossID}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		query += fmt.Sprintf(" AND seller_id = $%d", len(args))
	}
	if filter.IsPaid != nil {
		args = append(args, *filter.IsPaid)
		query += fmt.Sprintf(" AND is_paid = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("credit: list credits: %w", err)
	}
	defer rows.Close()

	var out []Credit
	for rows.Next() {
		var c Credit
		var amount, amountPaid pgtype.Numeric
		if err := rows.Scan(
			&c.ID, &c.BossID, &c.SellerID, &c.SaleID, &c.CustomerID,
			&amount, &amountPaid, &c.IsPaid, &c.LocalID, &c.SyncStatus,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		c.Amount = db.NumericToDecimal(amount)
		c.AmountPaid = db.NumericToDecimal(amountPaid)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCredit retrieves a credit with its payments.
func (r *Repository) GetCredit(ctx context.Context, bossID, id int64) (*Credit, error) {
	c, err := scanCredit(r.pool.QueryRow(ctx,
		"SELECT "+creditColumns+" FROM credit WHERE id = $1 AND boss_id = $2", id, bossID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("credit: get credit: %w", err)
	}

	payments, err := r.listPayments(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	c.Payments = payments
	return c, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) listPayments(ctx context.Context, q querier, creditID int64) ([]CreditPayment, error) {
	const query = `
		SELECT id, credit_id, amount, payment_date, local_id, sync_status, created_at
		FROM credit_payment WHERE credit_id = $1 ORDER BY payment_date, id`

	rows, err := q.Query(ctx, query, creditID)
	if err != nil {
		return nil, fmt.Errorf("credit: list payments: %w", err)
	}
	defer rows.Close()

	var out []CreditPayment
	for rows.Next() {
		var p CreditPayment
		var amount pgtype.Numeric
		var date pgtype.Date
		if err := rows.Scan(&p.ID, &p.CreditID, &amount, &date, &p.LocalID, &p.SyncStatus, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = db.NumericToDecimal(amount)
		p.PaymentDate = shared.DateOf(date.Time)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyPayment loads a credit under a row lock, invokes apply to mutate it
// and produce the payment record, then persists both in one transaction.
func (r *Repository) ApplyPayment(ctx context.Context, bossID, creditID int64, apply func(*Credit) (*CreditPayment, error)) (*CreditPayment, error) {
	var payment *CreditPayment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		c, err := scanCredit(tx.QueryRow(ctx,
			"SELECT "+creditColumns+" FROM credit WHERE id = $1 AND boss_id = $2 FOR UPDATE",
			creditID, bossID))
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return err
			}
			return fmt.Errorf("credit: lock credit: %w", err)
		}

		payment, err = apply(c)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE credit SET amount_paid = $1, is_paid = $2, updated_at = NOW() WHERE id = $3`,
			db.DecimalParam(c.AmountPaid), c.IsPaid, c.ID)
		if err != nil {
			return fmt.Errorf("credit: update credit: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO credit_payment (credit_id, amount, payment_date, local_id, sync_status, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())
			 RETURNING id, created_at`,
			c.ID, db.DecimalParam(payment.Amount), payment.PaymentDate.Time, payment.LocalID, payment.SyncStatus,
		).Scan(&payment.ID, &payment.CreatedAt)
		if err != nil {
			return fmt.Errorf("credit: insert payment: %w", err)
		}
		payment.CreditID = c.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}
