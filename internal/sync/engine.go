package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/guide"
	"github.com/rotasales/rotasales/internal/observability"
	"github.com/rotasales/rotasales/internal/sales"
	"github.com/rotasales/rotasales/internal/shared"
)

// OpTx is the write surface of one operation's transaction. Every upload
// operation runs against its own OpTx; when the engine returns an error
// the transaction rolls back and only that operation's writes vanish.
type OpTx interface {
	FindSaleIDByLocalID(ctx context.Context, sellerID int64, localID string) (*int64, error)
	FindGuideIDByLocalID(ctx context.Context, sellerID int64, localID string) (*int64, error)
	FindPaymentIDByLocalID(ctx context.Context, sellerID int64, localID string) (*int64, error)

	InsertSale(ctx context.Context, sale *sales.Sale) error
	InsertSaleItems(ctx context.Context, saleID int64, items []sales.SaleItem) error
	InsertCredit(ctx context.Context, c credit.Credit) (int64, error)

	GetCreditForUpdate(ctx context.Context, bossID, creditID int64) (*credit.Credit, error)
	UpdateCreditAmounts(ctx context.Context, c *credit.Credit) error
	InsertCreditPayment(ctx context.Context, payment *credit.CreditPayment) error

	InsertGuide(ctx context.Context, g *guide.SalesGuide) error
	InsertGuideItems(ctx context.Context, guideID int64, items []guide.GuideItem) error
	GetGuideBySeller(ctx context.Context, guideID, sellerID int64) (*guide.SalesGuide, error)
	UpdateGuideItem(ctx context.Context, item guide.GuideItem) error
	UpdateGuide(ctx context.Context, g *guide.SalesGuide) error
}

// StorePort abstracts persistence for the sync engine.
type StorePort interface {
	OpenLog(ctx context.Context, log *SyncLog) error
	CloseLog(ctx context.Context, logID int64, status LogStatus, success, failure int) error
	WithOpTx(ctx context.Context, fn func(ctx context.Context, tx OpTx) error) error
	DownloadData(ctx context.Context, bossID, sellerID int64) (*DownloadData, error)
}

// Engine replays upload batches and assembles download snapshots.
type Engine struct {
	logger  *slog.Logger
	store   StorePort
	metrics *observability.Metrics
	now     func() time.Time
}

// NewEngine constructs an Engine. metrics may be nil.
func NewEngine(logger *slog.Logger, store StorePort, metrics *observability.Metrics) *Engine {
	return &Engine{logger: logger, store: store, metrics: metrics, now: time.Now}
}

// ProcessUpload replays an ordered batch of client operations. Each
// operation commits or rolls back on its own; a failure is recorded in
// that operation's result and never aborts the rest of the batch. The
// batch log is opened before the first operation and closed after the
// last one regardless of how many failed.
func (e *Engine) ProcessUpload(ctx context.Context, ident shared.Identity, operations []Operation) (*UploadResponse, error) {
	if ident.Role != shared.RoleSeller {
		return nil, fmt.Errorf("%w: uploads come from seller devices", shared.ErrForbidden)
	}

	log := &SyncLog{
		SellerID:       ident.ID,
		Type:           LogUpload,
		Status:         LogInProgress,
		ProcessedCount: len(operations),
		StartedAt:      e.now().UTC(),
	}
	if err := e.store.OpenLog(ctx, log); err != nil {
		return nil, err
	}

	results := make([]OperationResult, 0, len(operations))
	success, failure := 0, 0
	for _, op := range operations {
		serverID, err := e.applyOperation(ctx, ident, op)
		if err != nil {
			failure++
			results = append(results, OperationResult{
				LocalID: op.LocalID,
				Status:  ResultFailed,
				Error:   err.Error(),
			})
			e.observeOp(op.Type, ResultFailed)
			e.logger.Warn("sync operation failed",
				"seller_id", ident.ID, "operation", string(op.Type),
				"local_id", op.LocalID, "error", err)
			continue
		}
		success++
		results = append(results, OperationResult{
			LocalID:  op.LocalID,
			Status:   ResultSuccess,
			ServerID: serverID,
		})
		e.observeOp(op.Type, ResultSuccess)
	}

	if err := e.store.CloseLog(ctx, log.ID, LogCompleted, success, failure); err != nil {
		// The batch already committed operation by operation; a log close
		// failure must not un-succeed it.
		e.logger.Error("failed to close sync log", "log_id", log.ID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.ObserveSyncBatch(string(LogUpload), len(operations))
	}
	e.logger.Info("upload batch processed",
		"seller_id", ident.ID, "operations", len(operations),
		"succeeded", success, "failed", failure)

	return &UploadResponse{Results: results}, nil
}

func (e *Engine) observeOp(op OperationType, status string) {
	if e.metrics != nil {
		e.metrics.ObserveSyncOperation(string(op), status)
	}
}

// applyOperation dispatches one operation inside its own transaction and
// returns the server id of the touched entity.
func (e *Engine) applyOperation(ctx context.Context, ident shared.Identity, op Operation) (*int64, error) {
	var serverID *int64
	err := e.store.WithOpTx(ctx, func(ctx context.Context, tx OpTx) error {
		var err error
		switch op.Type {
		case OpCreateSale:
			serverID, err = e.createSale(ctx, tx, ident, op)
		case OpCreateCreditPayment:
			serverID, err = e.createCreditPayment(ctx, tx, ident, op)
		case OpCreateGuide:
			serverID, err = e.createGuide(ctx, tx, ident, op)
		case OpCloseGuide:
			serverID, err = e.closeGuide(ctx, tx, ident, op)
		default:
			err = fmt.Errorf("%w: unsupported operation type %q", shared.ErrValidation, op.Type)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return serverID, nil
}

func decodePayload[T any](op Operation) (*T, error) {
	var payload T
	if err := json.Unmarshal(op.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed %s payload: %v", shared.ErrValidation, op.Type, err)
	}
	return &payload, nil
}

// optionalLocalID maps an absent local_id to NULL so the partial unique
// indexes never collide two no-local_id operations from the same seller.
func optionalLocalID(localID string) *string {
	if localID == "" {
		return nil
	}
	return &localID
}

// createSale persists a sale verbatim from the payload: quantities, unit
// prices, subtotals and the total are trusted as the client computed them
// offline. Replaying the same local_id returns the existing server id.
func (e *Engine) createSale(ctx context.Context, tx OpTx, ident shared.Identity, op Operation) (*int64, error) {
	payload, err := decodePayload[SalePayload](op)
	if err != nil {
		return nil, err
	}
	paymentType := sales.PaymentType(payload.PaymentType)
	if !paymentType.Valid() {
		return nil, fmt.Errorf("%w: unknown payment type %q", shared.ErrValidation, payload.PaymentType)
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("%w: a sale needs at least one item", shared.ErrValidation)
	}
	if paymentType == sales.PaymentCredit && payload.CustomerID == nil {
		return nil, fmt.Errorf("%w: a credit sale requires a customer", shared.ErrValidation)
	}
	if payload.SaleDate.IsZero() {
		return nil, fmt.Errorf("%w: sale_date is required", shared.ErrValidation)
	}

	if op.LocalID != "" {
		existing, err := tx.FindSaleIDByLocalID(ctx, ident.ID, op.LocalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	sale := &sales.Sale{
		BossID:      ident.TenantID(),
		SellerID:    ident.ID,
		CustomerID:  payload.CustomerID,
		GuideID:     payload.GuideID,
		PaymentType: paymentType,
		TotalAmount: payload.TotalAmount,
		SaleDate:    payload.SaleDate,
		LocalID:     optionalLocalID(op.LocalID),
		SyncStatus:  shared.SyncStatusSynced,
	}
	items := make([]sales.SaleItem, 0, len(payload.Items))
	for _, line := range payload.Items {
		items = append(items, sales.SaleItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  line.Subtotal,
		})
	}
	sale.Items = items

	if err := tx.InsertSale(ctx, sale); err != nil {
		return nil, err
	}
	if err := tx.InsertSaleItems(ctx, sale.ID, sale.Items); err != nil {
		return nil, err
	}

	if paymentType == sales.PaymentCredit {
		_, err := tx.InsertCredit(ctx, credit.Credit{
			BossID:     ident.TenantID(),
			SellerID:   ident.ID,
			SaleID:     sale.ID,
			CustomerID: *payload.CustomerID,
			Amount:     payload.TotalAmount,
			LocalID:    optionalLocalID(op.LocalID),
			SyncStatus: shared.SyncStatusSynced,
		})
		if err != nil {
			return nil, err
		}
	}
	return &sale.ID, nil
}

// createCreditPayment applies a replayed payment using the same saturation
// arithmetic as the synchronous ledger: the stored payment carries the
// clamped amount, so the payments always sum to amount_paid.
func (e *Engine) createCreditPayment(ctx context.Context, tx OpTx, ident shared.Identity, op Operation) (*int64, error) {
	payload, err := decodePayload[CreditPaymentPayload](op)
	if err != nil {
		return nil, err
	}
	if payload.PaymentDate.IsZero() {
		return nil, fmt.Errorf("%w: payment_date is required", shared.ErrValidation)
	}

	if op.LocalID != "" {
		existing, err := tx.FindPaymentIDByLocalID(ctx, ident.ID, op.LocalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	c, err := tx.GetCreditForUpdate(ctx, ident.TenantID(), payload.CreditID)
	if err != nil {
		return nil, err
	}
	if c.SellerID != ident.ID {
		return nil, fmt.Errorf("%w: credit belongs to another seller", shared.ErrForbidden)
	}

	applied, err := c.ApplyPayment(payload.Amount)
	if err != nil {
		return nil, err
	}
	if err := tx.UpdateCreditAmounts(ctx, c); err != nil {
		return nil, err
	}

	payment := &credit.CreditPayment{
		CreditID:    c.ID,
		Amount:      applied,
		PaymentDate: payload.PaymentDate,
		LocalID:     optionalLocalID(op.LocalID),
		SyncStatus:  shared.SyncStatusSynced,
	}
	if err := tx.InsertCreditPayment(ctx, payment); err != nil {
		return nil, err
	}
	return &payment.ID, nil
}

// createGuide persists a guide and its items verbatim from the payload,
// derived totals included.
func (e *Engine) createGuide(ctx context.Context, tx OpTx, ident shared.Identity, op Operation) (*int64, error) {
	payload, err := decodePayload[GuidePayload](op)
	if err != nil {
		return nil, err
	}
	if len(payload.Items) == 0 {
		return nil, fmt.Errorf("%w: a guide needs at least one item", shared.ErrValidation)
	}
	if payload.GuideDate.IsZero() {
		return nil, fmt.Errorf("%w: guide_date is required", shared.ErrValidation)
	}

	if op.LocalID != "" {
		existing, err := tx.FindGuideIDByLocalID(ctx, ident.ID, op.LocalID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	g := &guide.SalesGuide{
		BossID:              ident.TenantID(),
		SellerID:            ident.ID,
		GuideDate:           payload.GuideDate,
		Status:              guide.StatusOpen,
		Notes:               payload.Notes,
		TotalTakenValue:     payload.TotalTakenValue,
		TotalSoldValue:      payload.TotalSoldValue,
		TotalRemainingValue: payload.TotalRemainingValue,
		LocalID:             optionalLocalID(op.LocalID),
		SyncStatus:          shared.SyncStatusSynced,
	}
	items := make([]guide.GuideItem, 0, len(payload.Items))
	for _, line := range payload.Items {
		items = append(items, guide.GuideItem{
			ProductID:           line.ProductID,
			QuantityTaken:       line.QuantityTaken,
			QuantityRemaining:   line.QuantityRemaining,
			QuantitySold:        line.QuantitySold,
			UnitPrice:           line.UnitPrice,
			TotalTakenValue:     line.TotalTakenValue,
			TotalSoldValue:      line.TotalSoldValue,
			TotalRemainingValue: line.TotalRemainingValue,
		})
	}
	g.Items = items

	if err := tx.InsertGuide(ctx, g); err != nil {
		return nil, err
	}
	if err := tx.InsertGuideItems(ctx, g.ID, g.Items); err != nil {
		return nil, err
	}
	return &g.ID, nil
}

// closeGuide marks a guide CLOSED and overwrites its totals and matching
// item values straight from the payload. The device already reconciled
// offline; the server records that outcome rather than re-deriving it.
func (e *Engine) closeGuide(ctx context.Context, tx OpTx, ident shared.Identity, op Operation) (*int64, error) {
	payload, err := decodePayload[CloseGuidePayload](op)
	if err != nil {
		return nil, err
	}

	g, err := tx.GetGuideBySeller(ctx, payload.GuideID, ident.ID)
	if err != nil {
		return nil, err
	}
	if g.Status == guide.StatusClosed {
		return nil, fmt.Errorf("%w: guide is already closed", shared.ErrInvalidState)
	}

	byItemID := make(map[int64]*GuideItemPayload, len(payload.Items))
	for idx := range payload.Items {
		byItemID[payload.Items[idx].ServerID] = &payload.Items[idx]
	}
	for idx := range g.Items {
		line, ok := byItemID[g.Items[idx].ID]
		if !ok {
			continue
		}
		item := &g.Items[idx]
		item.QuantityRemaining = line.QuantityRemaining
		item.QuantitySold = line.QuantitySold
		item.TotalTakenValue = line.TotalTakenValue
		item.TotalSoldValue = line.TotalSoldValue
		item.TotalRemainingValue = line.TotalRemainingValue
		if err := tx.UpdateGuideItem(ctx, *item); err != nil {
			return nil, err
		}
	}

	now := e.now().UTC()
	g.Status = guide.StatusClosed
	g.ClosedAt = &now
	g.SyncStatus = shared.SyncStatusSynced
	g.TotalTakenValue = payload.TotalTakenValue
	g.TotalSoldValue = payload.TotalSoldValue
	g.TotalRemainingValue = payload.TotalRemainingValue
	if err := tx.UpdateGuide(ctx, g); err != nil {
		return nil, err
	}
	return &g.ID, nil
}

// GetDownloadData assembles the seller's snapshot and records a DOWNLOAD
// log whose counts equal the total number of returned records.
func (e *Engine) GetDownloadData(ctx context.Context, ident shared.Identity) (*DownloadData, error) {
	if ident.Role != shared.RoleSeller {
		return nil, fmt.Errorf("%w: downloads go to seller devices", shared.ErrForbidden)
	}

	data, err := e.store.DownloadData(ctx, ident.TenantID(), ident.ID)
	if err != nil {
		return nil, err
	}

	count := data.RecordCount()
	log := &SyncLog{
		SellerID:       ident.ID,
		Type:           LogDownload,
		Status:         LogInProgress,
		ProcessedCount: count,
		StartedAt:      e.now().UTC(),
	}
	if err := e.store.OpenLog(ctx, log); err != nil {
		return nil, err
	}
	if err := e.store.CloseLog(ctx, log.ID, LogCompleted, count, 0); err != nil {
		e.logger.Error("failed to close sync log", "log_id", log.ID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.ObserveSyncBatch(string(LogDownload), count)
	}
	e.logger.Info("download snapshot served", "seller_id", ident.ID, "records", count)
	return data, nil
}
