package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/shared"
)

// RepositoryPort abstracts persistence for sales.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetSale(ctx context.Context, bossID, id int64) (*Sale, error)
	ListSales(ctx context.Context, bossID int64, filter ListFilter) ([]Sale, error)
	DeleteSale(ctx context.Context, bossID, id int64) error
}

// Service composes sales. Prices are snapshotted server-side and the
// total is always recomputed from the lines, never taken from the client.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo RepositoryPort) *Service {
	return &Service{logger: logger, repo: repo}
}

// CreateSale builds and persists a sale for the calling seller. The sale,
// its items and an eventual credit are written as one atomic unit.
func (s *Service) CreateSale(ctx context.Context, ident shared.Identity, req CreateSaleRequest) (*Sale, error) {
	if ident.Role != shared.RoleSeller {
		return nil, fmt.Errorf("%w: only sellers create sales", shared.ErrForbidden)
	}
	if !req.PaymentType.Valid() {
		return nil, fmt.Errorf("%w: unknown payment type %q", shared.ErrValidation, req.PaymentType)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one item", shared.ErrValidation)
	}
	if req.PaymentType == PaymentCredit && req.CustomerID == nil {
		return nil, fmt.Errorf("%w: a credit sale requires a customer", shared.ErrValidation)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %d", shared.ErrValidation, item.ProductID)
		}
	}

	bossID := ident.TenantID()
	saleDate := shared.Today()
	if req.SaleDate != nil {
		saleDate = *req.SaleDate
	}

	sale := &Sale{
		BossID:      bossID,
		SellerID:    ident.ID,
		CustomerID:  req.CustomerID,
		GuideID:     req.GuideID,
		PaymentType: req.PaymentType,
		SaleDate:    saleDate,
		LocalID:     req.LocalID,
		SyncStatus:  shared.SyncStatusFor(req.LocalID),
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.CustomerID != nil {
			ok, err := tx.CustomerBelongsToBoss(ctx, bossID, *req.CustomerID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: customer %d", shared.ErrNotFound, *req.CustomerID)
			}
		}
		if req.GuideID != nil {
			ok, err := tx.GuideBelongsToSeller(ctx, *req.GuideID, ident.ID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: guide %d", shared.ErrNotFound, *req.GuideID)
			}
		}

		items := make([]SaleItem, 0, len(req.Items))
		for _, line := range req.Items {
			product, err := tx.GetActiveProduct(ctx, bossID, line.ProductID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("%w: product %d not found or inactive", shared.ErrNotFound, line.ProductID)
				}
				return err
			}
			subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			items = append(items, SaleItem{
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
				Subtotal:  shared.RoundMoney(subtotal),
			})
		}
		sale.Items = items
		sale.TotalAmount = ComputeTotal(items)

		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		if err := tx.InsertSaleItems(ctx, sale.ID, sale.Items); err != nil {
			return err
		}

		if req.PaymentType == PaymentCredit {
			_, err := tx.InsertCredit(ctx, credit.Credit{
				BossID:     bossID,
				SellerID:   ident.ID,
				SaleID:     sale.ID,
				CustomerID: *req.CustomerID,
				Amount:     sale.TotalAmount,
				LocalID:    req.LocalID,
				SyncStatus: shared.SyncStatusFor(req.LocalID),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale created",
		"sale_id", sale.ID, "seller_id", ident.ID,
		"payment_type", sale.PaymentType, "total", sale.TotalAmount.String())
	return sale, nil
}

// GetSale returns one sale. Sellers only see their own.
func (s *Service) GetSale(ctx context.Context, ident shared.Identity, id int64) (*Sale, error) {
	sale, err := s.repo.GetSale(ctx, ident.TenantID(), id)
	if err != nil {
		return nil, err
	}
	if ident.Role == shared.RoleSeller && sale.SellerID != ident.ID {
		return nil, fmt.Errorf("%w: sale belongs to another seller", shared.ErrForbidden)
	}
	return sale, nil
}

// ListSales returns sales visible to the identity.
func (s *Service) ListSales(ctx context.Context, ident shared.Identity, filter ListFilter) ([]Sale, error) {
	if ident.Role == shared.RoleSeller {
		id := ident.ID
		filter.SellerID = &id
	}
	return s.repo.ListSales(ctx, ident.TenantID(), filter)
}

// DeleteSale removes a sale and its dependents.
func (s *Service) DeleteSale(ctx context.Context, ident shared.Identity, id int64) error {
	if ident.Role != shared.RoleBoss {
		return fmt.Errorf("%w: only the boss deletes sales", shared.ErrForbidden)
	}
	if err := s.repo.DeleteSale(ctx, ident.TenantID(), id); err != nil {
		return err
	}
	s.logger.Info("sale deleted", "sale_id", id, "boss_id", ident.ID)
	return nil
}
