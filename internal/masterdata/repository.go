package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotasales/rotasales/internal/platform/db"
	"github.com/rotasales/rotasales/internal/shared"
)

// Repository provides PostgreSQL backed persistence for tenant master data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Products ---

// CreateProduct inserts a product for the tenant.
func (r *Repository) CreateProduct(ctx context.Context, product Product) (*Product, error) {
	const query = `
		INSERT INTO product (boss_id, name, price, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		RETURNING id, is_active, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, product.BossID, product.Name, db.DecimalParam(product.Price)).
		Scan(&product.ID, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("masterdata: create product: %w", err)
	}
	return &product, nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var price pgtype.Numeric
	err := row.Scan(&p.ID, &p.BossID, &p.Name, &price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Price = db.NumericToDecimal(price)
	return &p, nil
}

// GetProduct retrieves a product scoped to the tenant.
func (r *Repository) GetProduct(ctx context.Context, bossID, id int64) (*Product, error) {
	const query = `
		SELECT id, boss_id, name, price, is_active, created_at, updated_at
		FROM product WHERE id = $1 AND boss_id = $2`
	product, err := scanProduct(r.pool.QueryRow(ctx, query, id, bossID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("masterdata: get product: %w", err)
	}
	return product, nil
}

// GetActiveProduct retrieves a product only when it is active, for use on
// the sale and guide creation paths.
func (r *Repository) GetActiveProduct(ctx context.Context, bossID, id int64) (*Product, error) {
	const query = `
		SELECT id, boss_id, name, price, is_active, created_at, updated_at
		FROM product WHERE id = $1 AND boss_id = $2 AND is_active = TRUE`
	product, err := scanProduct(r.pool.QueryRow(ctx, query, id, bossID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("masterdata: get active product: %w", err)
	}
	return product, nil
}

// ListProducts returns the tenant's products, optionally filtered by
// activity flag.
func (r *Repository) ListProducts(ctx context.Context, bossID int64, isActive *bool) ([]Product, error) {
	query := `
		SELECT id, boss_id, name, price, is_active, created_at, updated_at
		FROM product WHERE boss_id = $1`
	args := []any{bossID}
	if isActive != nil {
		query += " AND is_active = $2"
		args = append(args, *isActive)
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var price pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.BossID, &p.Name, &price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Price = db.NumericToDecimal(price)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProduct applies a partial update.
func (r *Repository) UpdateProduct(ctx context.Context, bossID, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	pos := 1
	for col, val := range updates {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, pos))
		args = append(args, val)
		pos++
	}
	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf("UPDATE product SET %s WHERE id = $%d AND boss_id = $%d",
		strings.Join(sets, ", "), pos, pos+1)
	args = append(args, id, bossID)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("masterdata: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteProduct removes a product. A product referenced by historical
// sale or guide rows is deactivated instead of deleted, keeping those
// records resolvable.
func (r *Repository) DeleteProduct(ctx context.Context, bossID, id int64) (softDeleted bool, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var referenced bool
		const refQuery = `
			SELECT EXISTS (SELECT 1 FROM sale_item WHERE product_id = $1)
			    OR EXISTS (SELECT 1 FROM guide_item WHERE product_id = $1)`
		if err := tx.QueryRow(ctx, refQuery, id).Scan(&referenced); err != nil {
			return fmt.Errorf("masterdata: check product references: %w", err)
		}

		if referenced {
			tag, err := tx.Exec(ctx,
				`UPDATE product SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND boss_id = $2`,
				id, bossID)
			if err != nil {
				return fmt.Errorf("masterdata: deactivate product: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return shared.ErrNotFound
			}
			softDeleted = true
			return nil
		}

		tag, err := tx.Exec(ctx, `DELETE FROM product WHERE id = $1 AND boss_id = $2`, id, bossID)
		if err != nil {
			return fmt.Errorf("masterdata: delete product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	return softDeleted, err
}

// --- Customers ---

// CreateCustomer inserts a customer for the tenant.
func (r *Repository) CreateCustomer(ctx context.Context, customer Customer) (*Customer, error) {
	const query = `
		INSERT INTO customer (boss_id, name, address, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, customer.BossID, customer.Name, customer.Address, customer.Phone).
		Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("masterdata: create customer: %w", err)
	}
	return &customer, nil
}

// GetCustomer retrieves a customer scoped to the tenant.
func (r *Repository) GetCustomer(ctx context.Context, bossID, id int64) (*Customer, error) {
	const query = `
		SELECT id, boss_id, name, address, phone, created_at, updated_at
		FROM customer WHERE id = $1 AND boss_id = $2`

	var c Customer
	err := r.pool.QueryRow(ctx, query, id, bossID).Scan(
		&c.ID, &c.BossID, &c.Name, &c.Address, &c.Phone, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("masterdata: get customer: %w", err)
	}
	return &c, nil
}

// ListCustomers returns the tenant's customers.
func (r *Repository) ListCustomers(ctx context.Context, bossID int64) ([]Customer, error) {
	const query = `
		SELECT id, boss_id, name, address, phone, created_at, updated_at
		FROM customer WHERE boss_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, bossID)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list customers: %w", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.BossID, &c.Name, &c.Address, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCustomer applies a partial update.
func (r *Repository) UpdateCustomer(ctx context.Context, bossID, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	pos := 1
	for col, val := range updates {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, pos))
		args = append(args, val)
		pos++
	}
	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf("UPDATE customer SET %s WHERE id = $%d AND boss_id = $%d",
		strings.Join(sets, ", "), pos, pos+1)
	args = append(args, id, bossID)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("masterdata: update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteCustomer removes a customer. Customers referenced by sales or
// credits cannot be deleted, since that would orphan accounting history.
func (r *Repository) DeleteCustomer(ctx context.Context, bossID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var referenced bool
		const refQuery = `
			SELECT EXISTS (SELECT 1 FROM sale WHERE customer_id = $1)
			    OR EXISTS (SELECT 1 FROM credit WHERE customer_id = $1)`
		if err := tx.QueryRow(ctx, refQuery, id).Scan(&referenced); err != nil {
			return fmt.Errorf("masterdata: check customer references: %w", err)
		}
		if referenced {
			return fmt.Errorf("%w: customer has sales or credits", shared.ErrInvalidState)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM customer WHERE id = $1 AND boss_id = $2`, id, bossID)
		if err != nil {
			return fmt.Errorf("masterdata: delete customer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// --- Sellers ---

// CreateSeller inserts a seller with its freshly generated token.
func (r *Repository) CreateSeller(ctx context.Context, seller Seller) (*Seller, error) {
	const query = `
		INSERT INTO seller (boss_id, name, token, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		RETURNING id, is_active, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, seller.BossID, seller.Name, seller.Token).
		Scan(&seller.ID, &seller.IsActive, &seller.CreatedAt, &seller.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("masterdata: create seller: %w", err)
	}
	return &seller, nil
}

// GetSeller retrieves a seller scoped to the tenant.
func (r *Repository) GetSeller(ctx context.Context, bossID, id int64) (*Seller, error) {
	const query = `
		SELECT id, boss_id, name, token, is_active, created_at, updated_at
		FROM seller WHERE id = $1 AND boss_id = $2`

	var s Seller
	err := r.pool.QueryRow(ctx, query, id, bossID).Scan(
		&s.ID, &s.BossID, &s.Name, &s.Token, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("masterdata: get seller: %w", err)
	}
	return &s, nil
}

// ListSellers returns the tenant's sellers.
func (r *Repository) ListSellers(ctx context.Context, bossID int64) ([]Seller, error) {
	const query = `
		SELECT id, boss_id, name, token, is_active, created_at, updated_at
		FROM seller WHERE boss_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, bossID)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list sellers: %w", err)
	}
	defer rows.Close()

	var out []Seller
	for rows.Next() {
		var s Seller
		if err := rows.Scan(&s.ID, &s.BossID, &s.Name, &s.Token, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateSeller applies a partial update.
func (r *Repository) UpdateSeller(ctx context.Context, bossID, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	sets := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	pos := 1
	for col, val := range updates {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, pos))
		args = append(args, val)
		pos++
	}
	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf("UPDATE seller SET %s WHERE id = $%d AND boss_id = $%d",
		strings.Join(sets, ", "), pos, pos+1)
	args = append(args, id, bossID)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("masterdata: update seller: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteSeller removes a seller and everything it owns, in dependency
// order: credit payments, credits, sale items, sales, guide items,
// guides, sync logs, then the seller row itself.
func (r *Repository) DeleteSeller(ctx context.Context, bossID, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM seller WHERE id = $1 AND boss_id = $2)`,
			id, bossID).Scan(&exists); err != nil {
			return fmt.Errorf("masterdata: check seller: %w", err)
		}
		if !exists {
			return shared.ErrNotFound
		}

		statements := []string{
			`DELETE FROM credit_payment WHERE credit_id IN (
				SELECT c.id FROM credit c JOIN sale s ON s.id = c.sale_id WHERE s.seller_id = $1)`,
			`DELETE FROM credit WHERE sale_id IN (SELECT id FROM sale WHERE seller_id = $1)`,
			`DELETE FROM sale_item WHERE sale_id IN (SELECT id FROM sale WHERE seller_id = $1)`,
			`DELETE FROM sale WHERE seller_id = $1`,
			`DELETE FROM guide_item WHERE guide_id IN (SELECT id FROM sales_guide WHERE seller_id = $1)`,
			`DELETE FROM sales_guide WHERE seller_id = $1`,
			`DELETE FROM sync_log WHERE seller_id = $1`,
			`DELETE FROM seller WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return fmt.Errorf("masterdata: delete seller cascade: %w", err)
			}
		}
		return nil
	})
}
