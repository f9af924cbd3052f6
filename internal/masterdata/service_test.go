package masterdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rotasales/rotasales/internal/shared"
)

type memoryRepo struct {
	nextID    int64
	products  map[int64]Product
	customers map[int64]Customer
	sellers   map[int64]Seller

	productReferenced  map[int64]bool
	customerReferenced map[int64]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:           map[int64]Product{},
		customers:          map[int64]Customer{},
		sellers:            map[int64]Seller{},
		productReferenced:  map[int64]bool{},
		customerReferenced: map[int64]bool{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) CreateProduct(_ context.Context, p Product) (*Product, error) {
	p.ID = m.id()
	p.IsActive = true
	m.products[p.ID] = p
	return &p, nil
}

func (m *memoryRepo) GetProduct(_ context.Context, bossID, id int64) (*Product, error) {
	p, ok := m.products[id]
	if !ok || p.BossID != bossID {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (m *memoryRepo) ListProducts(_ context.Context, bossID int64, isActive *bool) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if p.BossID != bossID {
			continue
		}
		if isActive != nil && p.IsActive != *isActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) UpdateProduct(_ context.Context, bossID, id int64, updates map[string]any) error {
	p, ok := m.products[id]
	if !ok || p.BossID != bossID {
		return shared.ErrNotFound
	}
	if name, ok := updates["name"]; ok {
		p.Name = name.(string)
	}
	if price, ok := updates["price"]; ok {
		p.Price = decimal.RequireFromString(price.(string))
	}
	if active, ok := updates["is_active"]; ok {
		p.IsActive = active.(bool)
	}
	m.products[id] = p
	return nil
}

func (m *memoryRepo) DeleteProduct(_ context.Context, bossID, id int64) (bool, error) {
	p, ok := m.products[id]
	if !ok || p.BossID != bossID {
		return false, shared.ErrNotFound
	}
	if m.productReferenced[id] {
		p.IsActive = false
		m.products[id] = p
		return true, nil
	}
	delete(m.products, id)
	return false, nil
}

func (m *memoryRepo) CreateCustomer(_ context.Context, c Customer) (*Customer, error) {
	c.ID = m.id()
	m.customers[c.ID] = c
	return &c, nil
}

func (m *memoryRepo) GetCustomer(_ context.Context, bossID, id int64) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok || c.BossID != bossID {
		return nil, shared.ErrNotFound
	}
	return &c, nil
}

func (m *memoryRepo) ListCustomers(_ context.Context, bossID int64) ([]Customer, error) {
	var out []Customer
	for _, c := range m.customers {
		if c.BossID == bossID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdateCustomer(_ context.Context, bossID, id int64, updates map[string]any) error {
	c, ok := m.customers[id]
	if !ok || c.BossID != bossID {
		return shared.ErrNotFound
	}
	if name, ok := updates["name"]; ok {
		c.Name = name.(string)
	}
	m.customers[id] = c
	return nil
}

func (m *memoryRepo) DeleteCustomer(_ context.Context, bossID, id int64) error {
	c, ok := m.customers[id]
	if !ok || c.BossID != bossID {
		return shared.ErrNotFound
	}
	if m.customerReferenced[id] {
		return fmt.Errorf("%w: customer has sales or credits", shared.ErrInvalidState)
	}
	delete(m.customers, id)
	return nil
}

func (m *memoryRepo) CreateSeller(_ context.Context, s Seller) (*Seller, error) {
	s.ID = m.id()
	s.IsActive = true
	m.sellers[s.ID] = s
	return &s, nil
}

func (m *memoryRepo) GetSeller(_ context.Context, bossID, id int64) (*Seller, error) {
	s, ok := m.sellers[id]
	if !ok || s.BossID != bossID {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (m *memoryRepo) ListSellers(_ context.Context, bossID int64) ([]Seller, error) {
	var out []Seller
	for _, s := range m.sellers {
		if s.BossID == bossID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdateSeller(_ context.Context, bossID, id int64, updates map[string]any) error {
	s, ok := m.sellers[id]
	if !ok || s.BossID != bossID {
		return shared.ErrNotFound
	}
	if name, ok := updates["name"]; ok {
		s.Name = name.(string)
	}
	if token, ok := updates["token"]; ok {
		s.Token = token.(string)
	}
	if active, ok := updates["is_active"]; ok {
		s.IsActive = active.(bool)
	}
	m.sellers[id] = s
	return nil
}

func (m *memoryRepo) DeleteSeller(_ context.Context, bossID, id int64) error {
	s, ok := m.sellers[id]
	if !ok || s.BossID != bossID {
		return shared.ErrNotFound
	}
	delete(m.sellers, id)
	return nil
}

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, token string) error {
	r.invalidated = append(r.invalidated, token)
	return nil
}

func newTestService(repo *memoryRepo, cache *recordingInvalidator) *Service {
	tokens := func() (string, error) { return "tok-" + fmt.Sprint(len(repo.sellers)+1), nil }
	var inv TokenInvalidator
	if cache != nil {
		inv = cache
	}
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, tokens, inv)
}

func TestCreateProductRoundsPrice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), 1, CreateProductRequest{
		Name:  "Queso fresco",
		Price: decimal.RequireFromString("12.005"),
	})
	require.NoError(t, err)
	require.True(t, product.Price.Equal(decimal.RequireFromString("12.01")))
	require.True(t, product.IsActive)
}

func TestCreateProductRejectsNonPositivePrice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	_, err := svc.CreateProduct(context.Background(), 1, CreateProductRequest{
		Name:  "Gratis",
		Price: decimal.Zero,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteProductDeactivatesWhenReferenced(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), 1, CreateProductRequest{
		Name:  "Pan",
		Price: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	repo.productReferenced[product.ID] = true

	softDeleted, err := svc.DeleteProduct(context.Background(), 1, product.ID)
	require.NoError(t, err)
	require.True(t, softDeleted)

	got, err := svc.GetProduct(context.Background(), 1, product.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestDeleteCustomerWithHistoryFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	customer, err := svc.CreateCustomer(context.Background(), 1, CreateCustomerRequest{Name: "Maria"})
	require.NoError(t, err)
	repo.customerReferenced[customer.ID] = true

	err = svc.DeleteCustomer(context.Background(), 1, customer.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestTenantIsolation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, nil)

	product, err := svc.CreateProduct(context.Background(), 1, CreateProductRequest{
		Name:  "Leche",
		Price: decimal.NewFromInt(5),
	})
	require.NoError(t, err)

	_, err = svc.GetProduct(context.Background(), 2, product.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegenerateSellerTokenEvictsOldToken(t *testing.T) {
	repo := newMemoryRepo()
	cache := &recordingInvalidator{}
	svc := newTestService(repo, cache)

	seller, err := svc.CreateSeller(context.Background(), 1, CreateSellerRequest{Name: "Pedro"})
	require.NoError(t, err)
	oldToken := seller.Token

	updated, err := svc.RegenerateSellerToken(context.Background(), 1, seller.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldToken, updated.Token)
	require.Contains(t, cache.invalidated, oldToken)
}

func TestDeactivateSellerEvictsToken(t *testing.T) {
	repo := newMemoryRepo()
	cache := &recordingInvalidator{}
	svc := newTestService(repo, cache)

	seller, err := svc.CreateSeller(context.Background(), 1, CreateSellerRequest{Name: "Lucia"})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.UpdateSeller(context.Background(), 1, seller.ID, UpdateSellerRequest{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Contains(t, cache.invalidated, seller.Token)
}
