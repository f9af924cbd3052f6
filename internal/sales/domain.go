package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/shared"
)

// PaymentType discriminates cash sales from credit sales.
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

// Valid reports whether the payment type is one of the known values.
func (p PaymentType) Valid() bool {
	return p == PaymentCash || p == PaymentCredit
}

// Sale is one transaction by a seller, optionally against a customer and
// a sales guide. TotalAmount always equals the sum of item subtotals.
type Sale struct {
	ID          int64             `json:"id"`
	BossID      int64             `json:"boss_id"`
	SellerID    int64             `json:"seller_id"`
	CustomerID  *int64            `json:"customer_id,omitempty"`
	GuideID     *int64            `json:"guide_id,omitempty"`
	PaymentType PaymentType       `json:"payment_type"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	SaleDate    shared.Date       `json:"sale_date"`
	LocalID     *string           `json:"local_id,omitempty"`
	SyncStatus  shared.SyncStatus `json:"sync_status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	Items []SaleItem `json:"items"`
}

// SaleItem is one line of a sale. UnitPrice is snapshotted from the
// product at sale time and never recomputed afterwards.
type SaleItem struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// ComputeTotal sums the item subtotals.
func ComputeTotal(items []SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

// SaleItemRequest is one requested line of a synchronous sale.
type SaleItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// CreateSaleRequest is the synchronous sale creation request. Unit prices
// and totals are deliberately absent: the server computes them.
type CreateSaleRequest struct {
	CustomerID  *int64            `json:"customer_id,omitempty"`
	GuideID     *int64            `json:"guide_id,omitempty"`
	PaymentType PaymentType       `json:"payment_type" validate:"required,oneof=cash credit"`
	SaleDate    *shared.Date      `json:"sale_date,omitempty"`
	LocalID     *string           `json:"local_id,omitempty"`
	Items       []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	SellerID *int64
	GuideID  *int64
	From     *shared.Date
	To       *shared.Date
}
