package credit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rotasales/rotasales/internal/shared"
)

// RepositoryPort abstracts persistence for the credit ledger.
type RepositoryPort interface {
	ListCredits(ctx context.Context, bossID int64, filter ListFilter) ([]Credit, error)
	GetCredit(ctx context.Context, bossID, id int64) (*Credit, error)
	ApplyPayment(ctx context.Context, bossID, creditID int64, apply func(*Credit) (*CreditPayment, error)) (*CreditPayment, error)
}

// Service implements the credit ledger.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo RepositoryPort) *Service {
	return &Service{logger: logger, repo: repo}
}

// ListCredits returns credits visible to the identity. Sellers only see
// credits from their own sales.
func (s *Service) ListCredits(ctx context.Context, ident shared.Identity, filter ListFilter) ([]Credit, error) {
	if ident.Role == shared.RoleSeller {
		id := ident.ID
		filter.SellerID = &id
	}
	return s.repo.ListCredits(ctx, ident.TenantID(), filter)
}

// GetCredit returns one credit with its payments.
func (s *Service) GetCredit(ctx context.Context, ident shared.Identity, id int64) (*Credit, error) {
	c, err := s.repo.GetCredit(ctx, ident.TenantID(), id)
	if err != nil {
		return nil, err
	}
	if ident.Role == shared.RoleSeller && c.SellerID != ident.ID {
		return nil, fmt.Errorf("%w: credit belongs to another seller", shared.ErrForbidden)
	}
	return c, nil
}

// PayCredit applies a payment to a credit. An amount above the remaining
// balance is clamped, and the returned payment record carries the clamped
// amount.
func (s *Service) PayCredit(ctx context.Context, ident shared.Identity, creditID int64, req PayCreditRequest) (*CreditPayment, error) {
	date := shared.Today()
	if req.PaymentDate != nil {
		date = *req.PaymentDate
	}

	payment, err := s.repo.ApplyPayment(ctx, ident.TenantID(), creditID, func(c *Credit) (*CreditPayment, error) {
		if ident.Role == shared.RoleSeller && c.SellerID != ident.ID {
			return nil, fmt.Errorf("%w: credit belongs to another seller", shared.ErrForbidden)
		}
		applied, err := c.ApplyPayment(req.Amount)
		if err != nil {
			return nil, err
		}
		return &CreditPayment{
			Amount:      applied,
			PaymentDate: date,
			LocalID:     req.LocalID,
			SyncStatus:  shared.SyncStatusFor(req.LocalID),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit payment applied",
		"credit_id", creditID, "amount", payment.Amount.String(), "by", ident.ID)
	return payment, nil
}
