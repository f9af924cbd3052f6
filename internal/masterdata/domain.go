package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product belongs to one boss. Inactive products stay referenced by
// historical sales and guides but are excluded from new ones.
type Product struct {
	ID        int64           `json:"id"`
	BossID    int64           `json:"boss_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Customer belongs to one boss and accumulates sales and credits.
type Customer struct {
	ID        int64     `json:"id"`
	BossID    int64     `json:"boss_id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Seller belongs to one boss; the token authenticates its device.
type Seller struct {
	ID        int64     `json:"id"`
	BossID    int64     `json:"boss_id"`
	Name      string    `json:"name"`
	Token     string    `json:"token,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateProductRequest struct {
	Name  string          `json:"name" validate:"required,max=100"`
	Price decimal.Decimal `json:"price" validate:"required"`
}

type UpdateProductRequest struct {
	Name     *string          `json:"name,omitempty" validate:"omitempty,max=100"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	IsActive *bool            `json:"is_active,omitempty"`
}

type CreateCustomerRequest struct {
	Name    string  `json:"name" validate:"required,max=100"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

type UpdateCustomerRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Address *string `json:"address,omitempty"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

type CreateSellerRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type UpdateSellerRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=100"`
	IsActive *bool   `json:"is_active,omitempty"`
}
