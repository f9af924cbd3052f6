package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/guide"
	"github.com/rotasales/rotasales/internal/sales"
	"github.com/rotasales/rotasales/internal/shared"
)

type memoryStore struct {
	nextID   int64
	logs     map[int64]*SyncLog
	sales    map[int64]sales.Sale
	credits  map[int64]credit.Credit
	payments map[int64]credit.CreditPayment
	guides   map[int64]guide.SalesGuide

	download DownloadData

	failCreditInsert bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		logs:     map[int64]*SyncLog{},
		sales:    map[int64]sales.Sale{},
		credits:  map[int64]credit.Credit{},
		payments: map[int64]credit.CreditPayment{},
		guides:   map[int64]guide.SalesGuide{},
	}
}

func (m *memoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryStore) OpenLog(_ context.Context, log *SyncLog) error {
	log.ID = m.id()
	cp := *log
	m.logs[log.ID] = &cp
	return nil
}

func (m *memoryStore) CloseLog(_ context.Context, logID int64, status LogStatus, success, failure int) error {
	log, ok := m.logs[logID]
	if !ok {
		return errors.New("unknown log")
	}
	log.Status = status
	log.SuccessCount = success
	log.FailureCount = failure
	return nil
}

func cloneMap[V any](src map[int64]V) map[int64]V {
	out := make(map[int64]V, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// WithOpTx snapshots all tables before fn and restores them when fn
// fails, giving each operation transaction semantics.
func (m *memoryStore) WithOpTx(_ context.Context, fn func(ctx context.Context, tx OpTx) error) error {
	salesBefore := cloneMap(m.sales)
	creditsBefore := cloneMap(m.credits)
	paymentsBefore := cloneMap(m.payments)
	guidesBefore := cloneMap(m.guides)
	idBefore := m.nextID

	if err := fn(context.Background(), &memOpTx{store: m}); err != nil {
		m.sales = salesBefore
		m.credits = creditsBefore
		m.payments = paymentsBefore
		m.guides = guidesBefore
		m.nextID = idBefore
		return err
	}
	return nil
}

func (m *memoryStore) DownloadData(_ context.Context, _, _ int64) (*DownloadData, error) {
	return &m.download, nil
}

type memOpTx struct {
	store *memoryStore
}

func (t *memOpTx) FindSaleIDByLocalID(_ context.Context, sellerID int64, localID string) (*int64, error) {
	for _, s := range t.store.sales {
		if s.SellerID == sellerID && s.LocalID != nil && *s.LocalID == localID {
			id := s.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (t *memOpTx) FindGuideIDByLocalID(_ context.Context, sellerID int64, localID string) (*int64, error) {
	for _, g := range t.store.guides {
		if g.SellerID == sellerID && g.LocalID != nil && *g.LocalID == localID {
			id := g.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (t *memOpTx) FindPaymentIDByLocalID(_ context.Context, sellerID int64, localID string) (*int64, error) {
	for _, p := range t.store.payments {
		c, ok := t.store.credits[p.CreditID]
		if ok && c.SellerID == sellerID && p.LocalID != nil && *p.LocalID == localID {
			id := p.ID
			return &id, nil
		}
	}
	return nil, nil
}

func (t *memOpTx) InsertSale(_ context.Context, sale *sales.Sale) error {
	sale.ID = t.store.id()
	t.store.sales[sale.ID] = *sale
	return nil
}

func (t *memOpTx) InsertSaleItems(_ context.Context, saleID int64, items []sales.SaleItem) error {
	s := t.store.sales[saleID]
	for i := range items {
		items[i].ID = t.store.id()
		items[i].SaleID = saleID
	}
	s.Items = append([]sales.SaleItem(nil), items...)
	t.store.sales[saleID] = s
	return nil
}

func (t *memOpTx) InsertCredit(_ context.Context, c credit.Credit) (int64, error) {
	if t.store.failCreditInsert {
		return 0, errors.New("credit insert failure injected")
	}
	c.ID = t.store.id()
	t.store.credits[c.ID] = c
	return c.ID, nil
}

func (t *memOpTx) GetCreditForUpdate(_ context.Context, bossID, creditID int64) (*credit.Credit, error) {
	c, ok := t.store.credits[creditID]
	if !ok || c.BossID != bossID {
		return nil, shared.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (t *memOpTx) UpdateCreditAmounts(_ context.Context, c *credit.Credit) error {
	stored := t.store.credits[c.ID]
	stored.AmountPaid = c.AmountPaid
	stored.IsPaid = c.IsPaid
	t.store.credits[c.ID] = stored
	return nil
}

func (t *memOpTx) InsertCreditPayment(_ context.Context, payment *credit.CreditPayment) error {
	payment.ID = t.store.id()
	t.store.payments[payment.ID] = *payment
	return nil
}

func (t *memOpTx) InsertGuide(_ context.Context, g *guide.SalesGuide) error {
	g.ID = t.store.id()
	t.store.guides[g.ID] = *g
	return nil
}

func (t *memOpTx) InsertGuideItems(_ context.Context, guideID int64, items []guide.GuideItem) error {
	g := t.store.guides[guideID]
	for i := range items {
		items[i].ID = t.store.id()
		items[i].GuideID = guideID
	}
	g.Items = append([]guide.GuideItem(nil), items...)
	t.store.guides[guideID] = g
	return nil
}

func (t *memOpTx) GetGuideBySeller(_ context.Context, guideID, sellerID int64) (*guide.SalesGuide, error) {
	g, ok := t.store.guides[guideID]
	if !ok || g.SellerID != sellerID {
		return nil, shared.ErrNotFound
	}
	cp := g
	cp.Items = append([]guide.GuideItem(nil), g.Items...)
	return &cp, nil
}

func (t *memOpTx) UpdateGuideItem(_ context.Context, item guide.GuideItem) error {
	g := t.store.guides[item.GuideID]
	for i := range g.Items {
		if g.Items[i].ID == item.ID {
			g.Items[i] = item
		}
	}
	t.store.guides[item.GuideID] = g
	return nil
}

func (t *memOpTx) UpdateGuide(_ context.Context, g *guide.SalesGuide) error {
	stored := t.store.guides[g.ID]
	stored.Status = g.Status
	stored.ClosedAt = g.ClosedAt
	stored.SyncStatus = g.SyncStatus
	stored.TotalTakenValue = g.TotalTakenValue
	stored.TotalSoldValue = g.TotalSoldValue
	stored.TotalRemainingValue = g.TotalRemainingValue
	t.store.guides[g.ID] = stored
	return nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func testSeller() shared.Identity {
	return shared.Identity{ID: 7, Role: shared.RoleSeller, BossID: 1}
}

func newEngine(store *memoryStore) *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)), store, nil)
}

func salePayload(t *testing.T) json.RawMessage {
	return mustJSON(t, SalePayload{
		PaymentType: "cash",
		SaleDate:    shared.NewDate(2024, 5, 10),
		TotalAmount: decimal.RequireFromString("15.60"),
		Items: []SaleItemPayload{
			{ProductID: 1, Quantity: 3, UnitPrice: decimal.RequireFromString("1.20"), Subtotal: decimal.RequireFromString("3.60")},
			{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("12.00"), Subtotal: decimal.RequireFromString("12.00")},
		},
	})
}

func TestUploadBatchPartialFailure(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	ops := []Operation{
		{Type: OpCreateSale, LocalID: "s-1", Payload: salePayload(t)},
		{Type: OpCreateCreditPayment, LocalID: "p-1", Payload: mustJSON(t, CreditPaymentPayload{
			CreditID: 999, Amount: decimal.RequireFromString("5.00"), PaymentDate: shared.NewDate(2024, 5, 10),
		})},
		{Type: OpCreateGuide, LocalID: "g-1", Payload: mustJSON(t, GuidePayload{
			GuideDate:       shared.NewDate(2024, 5, 10),
			TotalTakenValue: decimal.RequireFromString("24.00"),
			Items: []GuideItemPayload{{
				ProductID: 1, QuantityTaken: 20,
				UnitPrice:       decimal.RequireFromString("1.20"),
				TotalTakenValue: decimal.RequireFromString("24.00"),
			}},
		})},
	}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err, "the batch envelope itself never fails")
	require.Len(t, resp.Results, 3)

	require.Equal(t, ResultSuccess, resp.Results[0].Status)
	require.NotNil(t, resp.Results[0].ServerID)
	require.Equal(t, ResultFailed, resp.Results[1].Status)
	require.NotEmpty(t, resp.Results[1].Error)
	require.Equal(t, ResultSuccess, resp.Results[2].Status)

	require.Len(t, store.sales, 1)
	require.Len(t, store.guides, 1)
	require.Empty(t, store.payments)

	require.Len(t, store.logs, 1)
	for _, log := range store.logs {
		require.Equal(t, LogCompleted, log.Status)
		require.Equal(t, 3, log.ProcessedCount)
		require.Equal(t, 2, log.SuccessCount)
		require.Equal(t, 1, log.FailureCount)
	}
}

func TestUploadOperationRollsBackItsOwnWrites(t *testing.T) {
	store := newMemoryStore()
	store.failCreditInsert = true
	engine := newEngine(store)

	customerID := int64(5)
	ops := []Operation{{Type: OpCreateSale, LocalID: "s-credit", Payload: mustJSON(t, SalePayload{
		CustomerID:  &customerID,
		PaymentType: "credit",
		SaleDate:    shared.NewDate(2024, 5, 10),
		TotalAmount: decimal.RequireFromString("10.00"),
		Items: []SaleItemPayload{{
			ProductID: 1, Quantity: 2,
			UnitPrice: decimal.RequireFromString("5.00"),
			Subtotal:  decimal.RequireFromString("10.00"),
		}},
	})}}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultFailed, resp.Results[0].Status)
	require.Empty(t, store.sales, "the sale insert must roll back with the credit failure")
	require.Empty(t, store.credits)
}

func TestUploadSaleTrustsPayloadFigures(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	// Deliberately inconsistent total; replay stores it verbatim.
	ops := []Operation{{Type: OpCreateSale, LocalID: "s-odd", Payload: mustJSON(t, SalePayload{
		PaymentType: "cash",
		SaleDate:    shared.NewDate(2024, 5, 10),
		TotalAmount: decimal.RequireFromString("99.99"),
		Items: []SaleItemPayload{{
			ProductID: 1, Quantity: 1,
			UnitPrice: decimal.RequireFromString("1.00"),
			Subtotal:  decimal.RequireFromString("1.00"),
		}},
	})}}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Results[0].Status)

	stored := store.sales[*resp.Results[0].ServerID]
	require.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("99.99")))
	require.Equal(t, shared.SyncStatusSynced, stored.SyncStatus)
}

func TestUploadReplayReturnsExistingServerID(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	ops := []Operation{{Type: OpCreateSale, LocalID: "s-dup", Payload: salePayload(t)}}

	first, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	second, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)

	require.Equal(t, ResultSuccess, second.Results[0].Status)
	require.Equal(t, *first.Results[0].ServerID, *second.Results[0].ServerID)
	require.Len(t, store.sales, 1, "replaying a batch must not duplicate the sale")
}

func TestUploadCreditPaymentClampsLikeLedger(t *testing.T) {
	store := newMemoryStore()
	store.credits[100] = credit.Credit{
		ID: 100, BossID: 1, SellerID: 7, SaleID: 50, CustomerID: 5,
		Amount: decimal.RequireFromString("50.00"), AmountPaid: decimal.Zero,
	}
	engine := newEngine(store)

	ops := []Operation{{Type: OpCreateCreditPayment, LocalID: "p-over", Payload: mustJSON(t, CreditPaymentPayload{
		CreditID: 100, Amount: decimal.RequireFromString("70.00"), PaymentDate: shared.NewDate(2024, 5, 10),
	})}}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Results[0].Status)

	stored := store.credits[100]
	require.True(t, stored.IsPaid)
	require.True(t, stored.AmountPaid.Equal(decimal.RequireFromString("50.00")))
	payment := store.payments[*resp.Results[0].ServerID]
	require.True(t, payment.Amount.Equal(decimal.RequireFromString("50.00")))
}

func TestUploadCloseGuideOverwritesFromPayload(t *testing.T) {
	store := newMemoryStore()
	five := 5
	store.guides[200] = guide.SalesGuide{
		ID: 200, BossID: 1, SellerID: 7, Status: guide.StatusOpen,
		SyncStatus:      shared.SyncStatusPending,
		TotalTakenValue: decimal.RequireFromString("24.00"),
		Items: []guide.GuideItem{{
			ID: 201, GuideID: 200, ProductID: 1, QuantityTaken: 20,
			UnitPrice:       decimal.RequireFromString("1.20"),
			TotalTakenValue: decimal.RequireFromString("24.00"),
		}},
	}
	engine := newEngine(store)

	ops := []Operation{{Type: OpCloseGuide, LocalID: "c-1", Payload: mustJSON(t, CloseGuidePayload{
		GuideID:             200,
		TotalTakenValue:     decimal.RequireFromString("24.00"),
		TotalSoldValue:      decimal.RequireFromString("18.00"),
		TotalRemainingValue: decimal.RequireFromString("6.00"),
		Items: []GuideItemPayload{{
			ServerID: 201, ProductID: 1, QuantityTaken: 20, QuantityRemaining: &five, QuantitySold: 15,
			UnitPrice:           decimal.RequireFromString("1.20"),
			TotalTakenValue:     decimal.RequireFromString("24.00"),
			TotalSoldValue:      decimal.RequireFromString("18.00"),
			TotalRemainingValue: decimal.RequireFromString("6.00"),
		}},
	})}}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Results[0].Status)

	stored := store.guides[200]
	require.Equal(t, guide.StatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	require.Equal(t, shared.SyncStatusSynced, stored.SyncStatus)
	require.True(t, stored.TotalSoldValue.Equal(decimal.RequireFromString("18.00")))
	require.Equal(t, 15, stored.Items[0].QuantitySold)
	require.Equal(t, 5, *stored.Items[0].QuantityRemaining)
}

func TestUploadCloseGuideMatchesItemsByServerID(t *testing.T) {
	store := newMemoryStore()
	// Same product on two lines; only the item named by server_id changes.
	store.guides[300] = guide.SalesGuide{
		ID: 300, BossID: 1, SellerID: 7, Status: guide.StatusOpen,
		Items: []guide.GuideItem{
			{ID: 301, GuideID: 300, ProductID: 1, QuantityTaken: 10,
				UnitPrice: decimal.RequireFromString("1.20")},
			{ID: 302, GuideID: 300, ProductID: 1, QuantityTaken: 4,
				UnitPrice: decimal.RequireFromString("1.20")},
		},
	}
	engine := newEngine(store)

	zero := 0
	ops := []Operation{{Type: OpCloseGuide, Payload: mustJSON(t, CloseGuidePayload{
		GuideID: 300,
		Items: []GuideItemPayload{{
			ServerID: 302, ProductID: 1, QuantityTaken: 4,
			QuantityRemaining: &zero, QuantitySold: 4,
			TotalSoldValue: decimal.RequireFromString("4.80"),
		}},
	})}}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Results[0].Status)

	stored := store.guides[300]
	require.Nil(t, stored.Items[0].QuantityRemaining, "the untargeted line must stay unreconciled")
	require.Equal(t, 0, stored.Items[0].QuantitySold)
	require.Equal(t, 4, stored.Items[1].QuantitySold)
	require.Equal(t, 0, *stored.Items[1].QuantityRemaining)
}

func TestUploadWithoutLocalIDStoresNull(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	ops := []Operation{
		{Type: OpCreateSale, Payload: salePayload(t)},
		{Type: OpCreateSale, Payload: salePayload(t)},
	}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Results[0].Status)
	require.Equal(t, ResultSuccess, resp.Results[1].Status)
	require.Len(t, store.sales, 2, "operations without a local_id never dedup against each other")
	for _, s := range store.sales {
		require.Nil(t, s.LocalID, "an absent local_id must persist as NULL, not empty string")
	}
}

func TestUploadRejectsMissingDates(t *testing.T) {
	store := newMemoryStore()
	store.credits[100] = credit.Credit{
		ID: 100, BossID: 1, SellerID: 7,
		Amount: decimal.RequireFromString("50.00"), AmountPaid: decimal.Zero,
	}
	engine := newEngine(store)

	ops := []Operation{
		{Type: OpCreateSale, LocalID: "s-nodate", Payload: mustJSON(t, SalePayload{
			PaymentType: "cash",
			TotalAmount: decimal.RequireFromString("1.00"),
			Items: []SaleItemPayload{{
				ProductID: 1, Quantity: 1,
				UnitPrice: decimal.RequireFromString("1.00"),
				Subtotal:  decimal.RequireFromString("1.00"),
			}},
		})},
		{Type: OpCreateCreditPayment, LocalID: "p-nodate", Payload: mustJSON(t, CreditPaymentPayload{
			CreditID: 100, Amount: decimal.RequireFromString("5.00"),
		})},
		{Type: OpCreateGuide, LocalID: "g-nodate", Payload: mustJSON(t, GuidePayload{
			Items: []GuideItemPayload{{ProductID: 1, QuantityTaken: 2,
				UnitPrice: decimal.RequireFromString("1.20")}},
		})},
	}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	for i, res := range resp.Results {
		require.Equal(t, ResultFailed, res.Status, "operation %d must fail without its date", i)
	}
	require.Empty(t, store.sales)
	require.Empty(t, store.payments)
	require.Empty(t, store.guides)
}

func TestUploadGuideCarriesNotes(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	notes := "route south, returns Friday"
	ops := []Operation{{Type: OpCreateGuide, LocalID: "g-notes", Payload: mustJSON(t, GuidePayload{
		GuideDate: shared.NewDate(2024, 5, 10),
		Notes:     &notes,
		Items: []GuideItemPayload{{ProductID: 1, QuantityTaken: 2,
			UnitPrice: decimal.RequireFromString("1.20")}},
	})}}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultSuccess, resp.Results[0].Status)

	stored := store.guides[*resp.Results[0].ServerID]
	require.NotNil(t, stored.Notes)
	require.Equal(t, notes, *stored.Notes)
}

func TestUploadUnknownOperationTypeFailsThatOperationOnly(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	ops := []Operation{
		{Type: "UPDATE_SALE", LocalID: "u-1", Payload: json.RawMessage(`{}`)},
		{Type: OpCreateSale, LocalID: "s-1", Payload: salePayload(t)},
	}

	resp, err := engine.ProcessUpload(context.Background(), testSeller(), ops)
	require.NoError(t, err)
	require.Equal(t, ResultFailed, resp.Results[0].Status)
	require.Equal(t, ResultSuccess, resp.Results[1].Status)
	require.Len(t, store.sales, 1)
}

func TestUploadRejectsNonSeller(t *testing.T) {
	store := newMemoryStore()
	engine := newEngine(store)

	_, err := engine.ProcessUpload(context.Background(),
		shared.Identity{ID: 1, Role: shared.RoleBoss}, nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, store.logs)
}

func TestDownloadWritesCompletedLog(t *testing.T) {
	store := newMemoryStore()
	store.download = DownloadData{
		Sales: []sales.Sale{{ID: 1}, {ID: 2}},
		Guides: []guide.SalesGuide{
			{ID: 3},
		},
	}
	engine := newEngine(store)

	data, err := engine.GetDownloadData(context.Background(), testSeller())
	require.NoError(t, err)
	require.Equal(t, 3, data.RecordCount())

	require.Len(t, store.logs, 1)
	for _, log := range store.logs {
		require.Equal(t, LogDownload, log.Type)
		require.Equal(t, LogCompleted, log.Status)
		require.Equal(t, 3, log.ProcessedCount)
		require.Equal(t, 3, log.SuccessCount)
		require.Equal(t, 0, log.FailureCount)
	}
}
