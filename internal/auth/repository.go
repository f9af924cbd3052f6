package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rotasales/rotasales/internal/shared"
)

// Repository provides PostgreSQL backed persistence for authentication.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateBoss inserts a new tenant owner.
func (r *Repository) CreateBoss(ctx context.Context, boss Boss) (*Boss, error) {
	const query = `
		INSERT INTO boss (name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query, boss.Name, boss.Email, boss.PasswordHash).
		Scan(&boss.ID, &boss.CreatedAt, &boss.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: boss with this email", shared.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("auth: create boss: %w", err)
	}
	return &boss, nil
}

// GetBossByEmail looks a boss up for login.
func (r *Repository) GetBossByEmail(ctx context.Context, email string) (*Boss, error) {
	const query = `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM boss WHERE email = $1`

	var boss Boss
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&boss.ID, &boss.Name, &boss.Email, &boss.PasswordHash,
		&boss.CreatedAt, &boss.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get boss by email: %w", err)
	}
	return &boss, nil
}

// GetBoss retrieves a boss by ID.
func (r *Repository) GetBoss(ctx context.Context, id int64) (*Boss, error) {
	const query = `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM boss WHERE id = $1`

	var boss Boss
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&boss.ID, &boss.Name, &boss.Email, &boss.PasswordHash,
		&boss.CreatedAt, &boss.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get boss: %w", err)
	}
	return &boss, nil
}

// GetActiveSellerByToken resolves a seller device token. Inactive sellers
// do not authenticate.
func (r *Repository) GetActiveSellerByToken(ctx context.Context, token string) (*Seller, error) {
	const query = `
		SELECT id, boss_id, name, token, is_active, created_at, updated_at
		FROM seller WHERE token = $1 AND is_active = TRUE`

	var seller Seller
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&seller.ID, &seller.BossID, &seller.Name, &seller.Token,
		&seller.IsActive, &seller.CreatedAt, &seller.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get seller by token: %w", err)
	}
	return &seller, nil
}
