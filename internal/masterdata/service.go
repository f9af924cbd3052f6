package masterdata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rotasales/rotasales/internal/shared"
)

// RepositoryPort abstracts persistence for master data.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, product Product) (*Product, error)
	GetProduct(ctx context.Context, bossID, id int64) (*Product, error)
	ListProducts(ctx context.Context, bossID int64, isActive *bool) ([]Product, error)
	UpdateProduct(ctx context.Context, bossID, id int64, updates map[string]any) error
	DeleteProduct(ctx context.Context, bossID, id int64) (bool, error)

	CreateCustomer(ctx context.Context, customer Customer) (*Customer, error)
	GetCustomer(ctx context.Context, bossID, id int64) (*Customer, error)
	ListCustomers(ctx context.Context, bossID int64) ([]Customer, error)
	UpdateCustomer(ctx context.Context, bossID, id int64, updates map[string]any) error
	DeleteCustomer(ctx context.Context, bossID, id int64) error

	CreateSeller(ctx context.Context, seller Seller) (*Seller, error)
	GetSeller(ctx context.Context, bossID, id int64) (*Seller, error)
	ListSellers(ctx context.Context, bossID int64) ([]Seller, error)
	UpdateSeller(ctx context.Context, bossID, id int64, updates map[string]any) error
	DeleteSeller(ctx context.Context, bossID, id int64) error
}

// TokenInvalidator evicts cached seller tokens when they stop being valid.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, token string) error
}

// TokenGenerator produces opaque seller device tokens.
type TokenGenerator func() (string, error)

// Service implements master-data management for a tenant.
type Service struct {
	logger     *slog.Logger
	repo       RepositoryPort
	tokens     TokenGenerator
	tokenCache TokenInvalidator
}

// NewService constructs a Service. tokenCache may be nil.
func NewService(logger *slog.Logger, repo RepositoryPort, tokens TokenGenerator, tokenCache TokenInvalidator) *Service {
	return &Service{logger: logger, repo: repo, tokens: tokens, tokenCache: tokenCache}
}

// --- Products ---

// CreateProduct adds a product to the tenant's catalog.
func (s *Service) CreateProduct(ctx context.Context, bossID int64, req CreateProductRequest) (*Product, error) {
	if !req.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", shared.ErrValidation)
	}
	product, err := s.repo.CreateProduct(ctx, Product{
		BossID: bossID,
		Name:   req.Name,
		Price:  shared.RoundMoney(req.Price),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("product created", "boss_id", bossID, "product_id", product.ID)
	return product, nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, bossID, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, bossID, id)
}

// ListProducts returns the catalog, optionally filtered by activity.
func (s *Service) ListProducts(ctx context.Context, bossID int64, isActive *bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, bossID, isActive)
}

// UpdateProduct applies the non-nil fields of the request.
func (s *Service) UpdateProduct(ctx context.Context, bossID, id int64, req UpdateProductRequest) (*Product, error) {
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, fmt.Errorf("%w: price must be positive", shared.ErrValidation)
		}
		updates["price"] = shared.RoundMoney(*req.Price).String()
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if err := s.repo.UpdateProduct(ctx, bossID, id, updates); err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, bossID, id)
}

// DeleteProduct removes a product, deactivating it instead when history
// references it.
func (s *Service) DeleteProduct(ctx context.Context, bossID, id int64) (softDeleted bool, err error) {
	softDeleted, err = s.repo.DeleteProduct(ctx, bossID, id)
	if err != nil {
		return false, err
	}
	if softDeleted {
		s.logger.Info("product deactivated instead of deleted", "boss_id", bossID, "product_id", id)
	}
	return softDeleted, nil
}

// --- Customers ---

// CreateCustomer adds a customer.
func (s *Service) CreateCustomer(ctx context.Context, bossID int64, req CreateCustomerRequest) (*Customer, error) {
	return s.repo.CreateCustomer(ctx, Customer{
		BossID:  bossID,
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
	})
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, bossID, id int64) (*Customer, error) {
	return s.repo.GetCustomer(ctx, bossID, id)
}

// ListCustomers returns the tenant's customers.
func (s *Service) ListCustomers(ctx context.Context, bossID int64) ([]Customer, error) {
	return s.repo.ListCustomers(ctx, bossID)
}

// UpdateCustomer applies the non-nil fields of the request.
func (s *Service) UpdateCustomer(ctx context.Context, bossID, id int64, req UpdateCustomerRequest) (*Customer, error) {
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if err := s.repo.UpdateCustomer(ctx, bossID, id, updates); err != nil {
		return nil, err
	}
	return s.repo.GetCustomer(ctx, bossID, id)
}

// DeleteCustomer removes a customer without accounting history.
func (s *Service) DeleteCustomer(ctx context.Context, bossID, id int64) error {
	return s.repo.DeleteCustomer(ctx, bossID, id)
}

// --- Sellers ---

// CreateSeller registers a seller and hands back its device token. The
// token is only shown in full on creation and regeneration.
func (s *Service) CreateSeller(ctx context.Context, bossID int64, req CreateSellerRequest) (*Seller, error) {
	token, err := s.tokens()
	if err != nil {
		return nil, err
	}
	seller, err := s.repo.CreateSeller(ctx, Seller{
		BossID: bossID,
		Name:   req.Name,
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("seller created", "boss_id", bossID, "seller_id", seller.ID)
	return seller, nil
}

// GetSeller returns one seller.
func (s *Service) GetSeller(ctx context.Context, bossID, id int64) (*Seller, error) {
	return s.repo.GetSeller(ctx, bossID, id)
}

// ListSellers returns the tenant's sellers.
func (s *Service) ListSellers(ctx context.Context, bossID int64) ([]Seller, error) {
	return s.repo.ListSellers(ctx, bossID)
}

// UpdateSeller applies the non-nil fields of the request. Deactivating a
// seller evicts its cached token so the device loses access immediately.
func (s *Service) UpdateSeller(ctx context.Context, bossID, id int64, req UpdateSellerRequest) (*Seller, error) {
	seller, err := s.repo.GetSeller(ctx, bossID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if err := s.repo.UpdateSeller(ctx, bossID, id, updates); err != nil {
		return nil, err
	}

	if req.IsActive != nil && !*req.IsActive && s.tokenCache != nil {
		if err := s.tokenCache.Invalidate(ctx, seller.Token); err != nil {
			s.logger.Warn("failed to evict seller token from cache", "seller_id", id, "error", err)
		}
	}
	return s.repo.GetSeller(ctx, bossID, id)
}

// RegenerateSellerToken replaces the seller's device token, invalidating
// the previous one.
func (s *Service) RegenerateSellerToken(ctx context.Context, bossID, id int64) (*Seller, error) {
	seller, err := s.repo.GetSeller(ctx, bossID, id)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens()
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSeller(ctx, bossID, id, map[string]any{"token": token}); err != nil {
		return nil, err
	}

	if s.tokenCache != nil {
		if err := s.tokenCache.Invalidate(ctx, seller.Token); err != nil {
			s.logger.Warn("failed to evict seller token from cache", "seller_id", id, "error", err)
		}
	}
	s.logger.Info("seller token regenerated", "boss_id", bossID, "seller_id", id)
	return s.repo.GetSeller(ctx, bossID, id)
}

// DeleteSeller removes a seller together with its sales, credits, guides
// and sync history.
func (s *Service) DeleteSeller(ctx context.Context, bossID, id int64) error {
	seller, err := s.repo.GetSeller(ctx, bossID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSeller(ctx, bossID, id); err != nil {
		return err
	}
	if s.tokenCache != nil {
		if err := s.tokenCache.Invalidate(ctx, seller.Token); err != nil {
			s.logger.Warn("failed to evict seller token from cache", "seller_id", id, "error", err)
		}
	}
	s.logger.Info("seller deleted", "boss_id", bossID, "seller_id", id)
	return nil
}
