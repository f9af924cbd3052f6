package guide

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/shared"
)

// RepositoryPort abstracts persistence for guides.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetGuide(ctx context.Context, bossID, id int64) (*SalesGuide, error)
	ListGuides(ctx context.Context, bossID int64, filter ListFilter) ([]SalesGuide, error)
	SumSalesTotal(ctx context.Context, guideID int64) (decimal.Decimal, error)
	DeleteGuide(ctx context.Context, bossID, id int64) error
}

// Service implements guide reconciliation.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo RepositoryPort) *Service {
	return &Service{logger: logger, repo: repo, now: time.Now}
}

// CreateGuide builds a guide for the calling seller, snapshotting unit
// prices from the current catalog. Guide and items persist atomically.
func (s *Service) CreateGuide(ctx context.Context, ident shared.Identity, req CreateGuideRequest) (*SalesGuide, error) {
	if ident.Role != shared.RoleSeller {
		return nil, fmt.Errorf("%w: only sellers create guides", shared.ErrForbidden)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: a guide needs at least one item", shared.ErrValidation)
	}
	for _, item := range req.Items {
		if item.QuantityTaken <= 0 {
			return nil, fmt.Errorf("%w: quantity taken must be positive for product %d",
				shared.ErrValidation, item.ProductID)
		}
	}

	bossID := ident.TenantID()
	guideDate := shared.Today()
	if req.GuideDate != nil {
		guideDate = *req.GuideDate
	}

	g := &SalesGuide{
		BossID:     bossID,
		SellerID:   ident.ID,
		GuideDate:  guideDate,
		Status:     StatusOpen,
		Notes:      req.Notes,
		LocalID:    req.LocalID,
		SyncStatus: shared.SyncStatusFor(req.LocalID),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items := make([]GuideItem, 0, len(req.Items))
		for _, line := range req.Items {
			product, err := tx.GetActiveProduct(ctx, bossID, line.ProductID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("%w: product %d not found or inactive", shared.ErrNotFound, line.ProductID)
				}
				return err
			}
			item := GuideItem{
				ProductID:     product.ID,
				QuantityTaken: line.QuantityTaken,
				UnitPrice:     product.Price,
			}
			item.CalculateValues()
			items = append(items, item)
		}
		g.Items = items
		g.CalculateTotals()

		if err := tx.InsertGuide(ctx, g); err != nil {
			return err
		}
		return tx.InsertGuideItems(ctx, g.ID, g.Items)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guide created",
		"guide_id", g.ID, "seller_id", ident.ID,
		"items", len(g.Items), "taken_value", g.TotalTakenValue.String())
	return g, nil
}

// GetGuide returns one guide. Sellers only see their own.
func (s *Service) GetGuide(ctx context.Context, ident shared.Identity, id int64) (*SalesGuide, error) {
	g, err := s.repo.GetGuide(ctx, ident.TenantID(), id)
	if err != nil {
		return nil, err
	}
	if ident.Role == shared.RoleSeller && g.SellerID != ident.ID {
		return nil, fmt.Errorf("%w: guide belongs to another seller", shared.ErrForbidden)
	}
	return g, nil
}

// ListGuides returns guides visible to the identity.
func (s *Service) ListGuides(ctx context.Context, ident shared.Identity, filter ListFilter) ([]SalesGuide, error) {
	if ident.Role == shared.RoleSeller {
		id := ident.ID
		filter.SellerID = &id
	}
	return s.repo.ListGuides(ctx, ident.TenantID(), filter)
}

// UpdateGuideItem records the leftover count for one item of an open guide
// and refreshes the guide totals.
func (s *Service) UpdateGuideItem(ctx context.Context, ident shared.Identity, guideID, itemID int64, req UpdateGuideItemRequest) (*SalesGuide, error) {
	var result *SalesGuide
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGuideForUpdate(ctx, ident.TenantID(), guideID)
		if err != nil {
			return err
		}
		if ident.Role == shared.RoleSeller && g.SellerID != ident.ID {
			return fmt.Errorf("%w: guide belongs to another seller", shared.ErrForbidden)
		}
		if g.Status == StatusClosed {
			return fmt.Errorf("%w: guide is closed", shared.ErrInvalidState)
		}

		var item *GuideItem
		for idx := range g.Items {
			if g.Items[idx].ID == itemID {
				item = &g.Items[idx]
				break
			}
		}
		if item == nil {
			return fmt.Errorf("%w: guide item %d", shared.ErrNotFound, itemID)
		}

		if err := item.SetRemainingQuantity(req.QuantityRemaining); err != nil {
			return err
		}
		g.CalculateTotals()

		if err := tx.UpdateGuideItem(ctx, *item); err != nil {
			return err
		}
		if err := tx.UpdateGuide(ctx, g); err != nil {
			return err
		}
		result = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CloseGuide applies the batch of remaining-quantity updates and closes
// the guide. All-or-nothing: an invalid update or a still-unreconciled
// item leaves the guide open and every item untouched.
func (s *Service) CloseGuide(ctx context.Context, ident shared.Identity, guideID int64, req CloseGuideRequest) (*SalesGuide, error) {
	remaining := make(map[int64]int, len(req.Items))
	for _, update := range req.Items {
		remaining[update.ItemID] = update.QuantityRemaining
	}

	var result *SalesGuide
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		g, err := tx.GetGuideForUpdate(ctx, ident.TenantID(), guideID)
		if err != nil {
			return err
		}
		if ident.Role == shared.RoleSeller && g.SellerID != ident.ID {
			return fmt.Errorf("%w: guide belongs to another seller", shared.ErrForbidden)
		}

		if err := g.Close(remaining, s.now().UTC()); err != nil {
			return err
		}

		for _, item := range g.Items {
			if err := tx.UpdateGuideItem(ctx, item); err != nil {
				return err
			}
		}
		if err := tx.UpdateGuide(ctx, g); err != nil {
			return err
		}
		result = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guide closed",
		"guide_id", result.ID, "seller_id", result.SellerID,
		"sold_value", result.TotalSoldValue.String())
	return result, nil
}

// GetSalesSummary compares the guide's linked sales against its
// reconciled sold value.
func (s *Service) GetSalesSummary(ctx context.Context, ident shared.Identity, guideID int64) (*SalesSummary, error) {
	g, err := s.GetGuide(ctx, ident, guideID)
	if err != nil {
		return nil, err
	}
	salesTotal, err := s.repo.SumSalesTotal(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	summary := NewSalesSummary(g.ID, salesTotal, g.TotalSoldValue)
	return &summary, nil
}

// DeleteGuide removes a guide, detaching its sales first.
func (s *Service) DeleteGuide(ctx context.Context, ident shared.Identity, id int64) error {
	if ident.Role != shared.RoleBoss {
		return fmt.Errorf("%w: only the boss deletes guides", shared.ErrForbidden)
	}
	if err := s.repo.DeleteGuide(ctx, ident.TenantID(), id); err != nil {
		return err
	}
	s.logger.Info("guide deleted", "guide_id", id, "boss_id", ident.ID)
	return nil
}
