package sales

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/shared"
)

type memorySalesRepo struct {
	nextID    int64
	products  map[int64]masterdata.Product
	customers map[int64]int64 // customer id -> boss id
	guides    map[int64]int64 // guide id -> seller id
	sales     map[int64]Sale
	credits   []credit.Credit
}

func newMemorySalesRepo() *memorySalesRepo {
	return &memorySalesRepo{
		products:  map[int64]masterdata.Product{},
		customers: map[int64]int64{},
		guides:    map[int64]int64{},
		sales:     map[int64]Sale{},
	}
}

func (m *memorySalesRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memorySalesRepo) addProduct(bossID int64, name, price string, active bool) masterdata.Product {
	p := masterdata.Product{
		ID: m.id(), BossID: bossID, Name: name,
		Price: decimal.RequireFromString(price), IsActive: active,
	}
	m.products[p.ID] = p
	return p
}

// WithTx snapshots mutable state before fn and restores it when fn fails,
// mimicking a rolled-back transaction.
func (m *memorySalesRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	salesBefore := make(map[int64]Sale, len(m.sales))
	for k, v := range m.sales {
		salesBefore[k] = v
	}
	creditsBefore := append([]credit.Credit(nil), m.credits...)
	idBefore := m.nextID

	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.sales = salesBefore
		m.credits = creditsBefore
		m.nextID = idBefore
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memorySalesRepo
}

func (t *memoryTx) GetActiveProduct(_ context.Context, bossID, productID int64) (*masterdata.Product, error) {
	p, ok := t.repo.products[productID]
	if !ok || p.BossID != bossID || !p.IsActive {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (t *memoryTx) CustomerBelongsToBoss(_ context.Context, bossID, customerID int64) (bool, error) {
	owner, ok := t.repo.customers[customerID]
	return ok && owner == bossID, nil
}

func (t *memoryTx) GuideBelongsToSeller(_ context.Context, guideID, sellerID int64) (bool, error) {
	owner, ok := t.repo.guides[guideID]
	return ok && owner == sellerID, nil
}

func (t *memoryTx) InsertSale(_ context.Context, sale *Sale) error {
	sale.ID = t.repo.id()
	t.repo.sales[sale.ID] = *sale
	return nil
}

func (t *memoryTx) InsertSaleItems(_ context.Context, saleID int64, items []SaleItem) error {
	s := t.repo.sales[saleID]
	for i := range items {
		items[i].ID = t.repo.id()
		items[i].SaleID = saleID
	}
	s.Items = items
	t.repo.sales[saleID] = s
	return nil
}

func (t *memoryTx) InsertCredit(_ context.Context, c credit.Credit) (int64, error) {
	c.ID = t.repo.id()
	t.repo.credits = append(t.repo.credits, c)
	return c.ID, nil
}

func (m *memorySalesRepo) GetSale(_ context.Context, bossID, id int64) (*Sale, error) {
	s, ok := m.sales[id]
	if !ok || s.BossID != bossID {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (m *memorySalesRepo) ListSales(_ context.Context, bossID int64, filter ListFilter) ([]Sale, error) {
	var out []Sale
	for _, s := range m.sales {
		if s.BossID != bossID {
			continue
		}
		if filter.SellerID != nil && s.SellerID != *filter.SellerID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memorySalesRepo) DeleteSale(_ context.Context, bossID, id int64) error {
	s, ok := m.sales[id]
	if !ok || s.BossID != bossID {
		return shared.ErrNotFound
	}
	delete(m.sales, id)
	return nil
}

func seller(id, bossID int64) shared.Identity {
	return shared.Identity{ID: id, Role: shared.RoleSeller, BossID: bossID}
}

func TestCreateSaleComputesTotalFromLines(t *testing.T) {
	repo := newMemorySalesRepo()
	a := repo.addProduct(1, "Pan", "1.20", true)
	b := repo.addProduct(1, "Queso", "12.00", true)
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	sale, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCash,
		Items: []SaleItemRequest{
			{ProductID: a.ID, Quantity: 3},
			{ProductID: b.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("15.60")),
		"total %s", sale.TotalAmount)
	require.Len(t, sale.Items, 2)
	require.True(t, sale.Items[0].UnitPrice.Equal(a.Price))
	require.True(t, sale.Items[0].Subtotal.Equal(decimal.RequireFromString("3.60")))
}

func TestCreateSalePriceSnapshotSurvivesPriceChange(t *testing.T) {
	repo := newMemorySalesRepo()
	p := repo.addProduct(1, "Leche", "5.00", true)
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	sale, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCash,
		Items:       []SaleItemRequest{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	changed := repo.products[p.ID]
	changed.Price = decimal.RequireFromString("9.99")
	repo.products[p.ID] = changed

	stored, err := svc.GetSale(context.Background(), seller(7, 1), sale.ID)
	require.NoError(t, err)
	require.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("10.00")))
}

func TestCreateCreditSaleWithoutCustomerFails(t *testing.T) {
	repo := newMemorySalesRepo()
	p := repo.addProduct(1, "Pan", "1.20", true)
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	_, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCredit,
		Items:       []SaleItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.sales)
	require.Empty(t, repo.credits)
}

func TestCreateCreditSaleSpawnsCredit(t *testing.T) {
	repo := newMemorySalesRepo()
	p := repo.addProduct(1, "Pan", "1.20", true)
	repo.customers[100] = 1
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	customerID := int64(100)
	sale, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCredit,
		CustomerID:  &customerID,
		Items:       []SaleItemRequest{{ProductID: p.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Len(t, repo.credits, 1)
	c := repo.credits[0]
	require.Equal(t, sale.ID, c.SaleID)
	require.True(t, c.Amount.Equal(sale.TotalAmount))
	require.True(t, c.AmountPaid.IsZero())
	require.False(t, c.IsPaid)
}

func TestCreateSaleRejectsInactiveProductAtomically(t *testing.T) {
	repo := newMemorySalesRepo()
	good := repo.addProduct(1, "Pan", "1.20", true)
	bad := repo.addProduct(1, "Viejo", "2.00", false)
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	_, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCash,
		Items: []SaleItemRequest{
			{ProductID: good.ID, Quantity: 1},
			{ProductID: bad.ID, Quantity: 1},
		},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.sales, "no partial sale may survive")
}

func TestCreateSaleRejectsForeignGuide(t *testing.T) {
	repo := newMemorySalesRepo()
	p := repo.addProduct(1, "Pan", "1.20", true)
	repo.guides[50] = 99 // owned by another seller
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	guideID := int64(50)
	_, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCash,
		GuideID:     &guideID,
		Items:       []SaleItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaleWithLocalIDStartsPending(t *testing.T) {
	repo := newMemorySalesRepo()
	p := repo.addProduct(1, "Pan", "1.20", true)
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)

	localID := "device-42-sale-1"
	sale, err := svc.CreateSale(context.Background(), seller(7, 1), CreateSaleRequest{
		PaymentType: PaymentCash,
		LocalID:     &localID,
		Items:       []SaleItemRequest{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, shared.SyncStatusPending, sale.SyncStatus)
}
