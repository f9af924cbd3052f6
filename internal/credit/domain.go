package credit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/shared"
)

// Credit is a deferred-payment obligation tied 1:1 to a credit sale.
// AmountPaid accumulates through payments and never exceeds Amount.
type Credit struct {
	ID         int64             `json:"id"`
	BossID     int64             `json:"boss_id"`
	SellerID   int64             `json:"seller_id"`
	SaleID     int64             `json:"sale_id"`
	CustomerID int64             `json:"customer_id"`
	Amount     decimal.Decimal   `json:"amount"`
	AmountPaid decimal.Decimal   `json:"amount_paid"`
	IsPaid     bool              `json:"is_paid"`
	DueDate    *shared.Date      `json:"due_date,omitempty"`
	LocalID    *string           `json:"local_id,omitempty"`
	SyncStatus shared.SyncStatus `json:"sync_status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`

	Payments []CreditPayment `json:"payments,omitempty"`
}

// CreditPayment records one installment against a Credit.
type CreditPayment struct {
	ID          int64             `json:"id"`
	CreditID    int64             `json:"credit_id"`
	Amount      decimal.Decimal   `json:"amount"`
	PaymentDate shared.Date       `json:"payment_date"`
	LocalID     *string           `json:"local_id,omitempty"`
	SyncStatus  shared.SyncStatus `json:"sync_status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RemainingAmount returns the unpaid balance, never negative.
func (c *Credit) RemainingAmount() decimal.Decimal {
	remaining := c.Amount.Sub(c.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// ApplyPayment applies a payment with saturation. A request exceeding the
// remaining balance is clamped down to it, so AmountPaid can never pass
// Amount. Returns the amount actually applied.
func (c *Credit) ApplyPayment(amount decimal.Decimal) (decimal.Decimal, error) {
	if c.IsPaid {
		return decimal.Zero, fmt.Errorf("%w: credit is already fully paid", shared.ErrInvalidState)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}

	applied := amount
	if remaining := c.RemainingAmount(); applied.GreaterThan(remaining) {
		applied = remaining
	}

	c.AmountPaid = c.AmountPaid.Add(applied)
	if c.AmountPaid.GreaterThanOrEqual(c.Amount) {
		c.AmountPaid = c.Amount
		c.IsPaid = true
	}
	return applied, nil
}

// PayCreditRequest is the synchronous payment request.
type PayCreditRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	PaymentDate *shared.Date    `json:"payment_date,omitempty"`
	LocalID     *string         `json:"local_id,omitempty"`
}

// ListFilter narrows credit listings.
type ListFilter struct {
	CustomerID *int64
	SellerID   *int64
	IsPaid     *bool
}
