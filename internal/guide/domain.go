package guide

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/shared"
)

// GuideStatus is the lifecycle of a sales guide. CLOSED is terminal.
type GuideStatus string

const (
	StatusOpen   GuideStatus = "OPEN"
	StatusClosed GuideStatus = "CLOSED"
)

// SalesGuide is a day's stock handout to a seller. The three total values
// are aggregates over the items, recomputed after every item change.
type SalesGuide struct {
	ID                  int64             `json:"id"`
	BossID              int64             `json:"boss_id"`
	SellerID            int64             `json:"seller_id"`
	GuideDate           shared.Date       `json:"guide_date"`
	Status              GuideStatus       `json:"status"`
	TotalTakenValue     decimal.Decimal   `json:"total_taken_value"`
	TotalSoldValue      decimal.Decimal   `json:"total_sold_value"`
	TotalRemainingValue decimal.Decimal   `json:"total_remaining_value"`
	Notes               *string           `json:"notes,omitempty"`
	ClosedAt            *time.Time        `json:"closed_at,omitempty"`
	LocalID             *string           `json:"local_id,omitempty"`
	SyncStatus          shared.SyncStatus `json:"sync_status"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`

	Items []GuideItem `json:"items"`
}

// GuideItem is one distributed product line. QuantityRemaining stays nil
// until the leftover count is recorded, after which QuantitySold and the
// sold/remaining values derive from it.
type GuideItem struct {
	ID                  int64           `json:"id"`
	GuideID             int64           `json:"guide_id"`
	ProductID           int64           `json:"product_id"`
	QuantityTaken       int             `json:"quantity_taken"`
	QuantityRemaining   *int            `json:"quantity_remaining"`
	QuantitySold        int             `json:"quantity_sold"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalTakenValue     decimal.Decimal `json:"total_taken_value"`
	TotalSoldValue      decimal.Decimal `json:"total_sold_value"`
	TotalRemainingValue decimal.Decimal `json:"total_remaining_value"`
}

// CalculateValues recomputes the item's derived values from its quantities
// and unit price.
func (i *GuideItem) CalculateValues() {
	qty := func(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }
	i.TotalTakenValue = shared.RoundMoney(i.UnitPrice.Mul(qty(i.QuantityTaken)))
	if i.QuantityRemaining == nil {
		i.QuantitySold = 0
		i.TotalSoldValue = decimal.Zero
		i.TotalRemainingValue = decimal.Zero
		return
	}
	i.QuantitySold = i.QuantityTaken - *i.QuantityRemaining
	i.TotalSoldValue = shared.RoundMoney(i.UnitPrice.Mul(qty(i.QuantitySold)))
	i.TotalRemainingValue = shared.RoundMoney(i.UnitPrice.Mul(qty(*i.QuantityRemaining)))
}

// SetRemainingQuantity records the leftover count for the item. A value
// outside [0, quantity_taken] is rejected, not clamped.
func (i *GuideItem) SetRemainingQuantity(qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: remaining quantity cannot be negative", shared.ErrValidation)
	}
	if qty > i.QuantityTaken {
		return fmt.Errorf("%w: remaining quantity %d exceeds quantity taken %d",
			shared.ErrValidation, qty, i.QuantityTaken)
	}
	i.QuantityRemaining = &qty
	i.CalculateValues()
	return nil
}

// CalculateTotals recomputes the guide's aggregates as the sum of its
// items' values. Idempotent.
func (g *SalesGuide) CalculateTotals() {
	taken, sold, remaining := decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range g.Items {
		taken = taken.Add(item.TotalTakenValue)
		sold = sold.Add(item.TotalSoldValue)
		remaining = remaining.Add(item.TotalRemainingValue)
	}
	g.TotalTakenValue = taken
	g.TotalSoldValue = sold
	g.TotalRemainingValue = remaining
}

// CanClose returns nil when every item has its remaining quantity recorded.
func (g *SalesGuide) CanClose() error {
	for _, item := range g.Items {
		if item.QuantityRemaining == nil {
			return fmt.Errorf("%w: item %d (product %d) has no remaining quantity recorded",
				shared.ErrInvalidState, item.ID, item.ProductID)
		}
	}
	return nil
}

// Close applies a batch of remaining-quantity updates keyed by item id and
// transitions the guide to CLOSED. The whole batch is validated before any
// item is touched; if any update is invalid, or any item is still
// unreconciled after the batch, nothing changes and the guide stays OPEN.
func (g *SalesGuide) Close(remaining map[int64]int, now time.Time) error {
	if g.Status == StatusClosed {
		return fmt.Errorf("%w: guide is already closed", shared.ErrInvalidState)
	}

	byID := make(map[int64]*GuideItem, len(g.Items))
	for idx := range g.Items {
		byID[g.Items[idx].ID] = &g.Items[idx]
	}

	// Validate the whole batch before mutating anything.
	for itemID, qty := range remaining {
		item, ok := byID[itemID]
		if !ok {
			return fmt.Errorf("%w: guide item %d", shared.ErrNotFound, itemID)
		}
		if qty < 0 || qty > item.QuantityTaken {
			return fmt.Errorf("%w: remaining quantity %d out of range for item %d (taken %d)",
				shared.ErrValidation, qty, itemID, item.QuantityTaken)
		}
	}
	// Check closability against the post-batch state without applying it.
	for _, item := range g.Items {
		if item.QuantityRemaining != nil {
			continue
		}
		if _, updated := remaining[item.ID]; !updated {
			return fmt.Errorf("%w: item %d (product %d) has no remaining quantity recorded",
				shared.ErrInvalidState, item.ID, item.ProductID)
		}
	}

	for itemID, qty := range remaining {
		if err := byID[itemID].SetRemainingQuantity(qty); err != nil {
			return err
		}
	}

	g.Status = StatusClosed
	g.ClosedAt = &now
	g.CalculateTotals()
	return nil
}

// SalesSummary compares what a guide's sales recorded against what its
// reconciliation says was sold. An audit readout, not an enforced invariant.
type SalesSummary struct {
	GuideID              int64           `json:"guide_id"`
	TotalSalesAmount     decimal.Decimal `json:"total_sales_amount"`
	TotalSoldValue       decimal.Decimal `json:"total_sold_value"`
	Difference           decimal.Decimal `json:"difference"`
	PercentageDifference decimal.Decimal `json:"percentage_difference"`
}

// NewSalesSummary computes the readout. The percentage is zero when the
// sold value is zero.
func NewSalesSummary(guideID int64, salesTotal, soldValue decimal.Decimal) SalesSummary {
	diff := salesTotal.Sub(soldValue)
	pct := decimal.Zero
	if !soldValue.IsZero() {
		pct = diff.Div(soldValue).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return SalesSummary{
		GuideID:              guideID,
		TotalSalesAmount:     salesTotal,
		TotalSoldValue:       soldValue,
		Difference:           diff,
		PercentageDifference: pct,
	}
}

// GuideItemRequest is one requested line of a synchronous guide creation.
type GuideItemRequest struct {
	ProductID     int64 `json:"product_id" validate:"required"`
	QuantityTaken int   `json:"quantity_taken" validate:"required,gt=0"`
}

// CreateGuideRequest is the synchronous guide creation request.
type CreateGuideRequest struct {
	GuideDate *shared.Date       `json:"guide_date,omitempty"`
	Notes     *string            `json:"notes,omitempty"`
	LocalID   *string            `json:"local_id,omitempty"`
	Items     []GuideItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CloseGuideItemUpdate is one remaining-quantity entry of a close request.
type CloseGuideItemUpdate struct {
	ItemID            int64 `json:"item_id" validate:"required"`
	QuantityRemaining int   `json:"quantity_remaining" validate:"min=0"`
}

// CloseGuideRequest is the synchronous close request.
type CloseGuideRequest struct {
	Items []CloseGuideItemUpdate `json:"items" validate:"dive"`
}

// UpdateGuideItemRequest records the leftover count for a single item.
type UpdateGuideItemRequest struct {
	QuantityRemaining int `json:"quantity_remaining" validate:"min=0"`
}

// ListFilter narrows guide listings.
type ListFilter struct {
	SellerID *int64
	Status   *GuideStatus
	From     *shared.Date
	To       *shared.Date
}
