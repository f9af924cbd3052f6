package sync

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rotasales/rotasales/internal/credit"
	"github.com/rotasales/rotasales/internal/guide"
	"github.com/rotasales/rotasales/internal/masterdata"
	"github.com/rotasales/rotasales/internal/sales"
	"github.com/rotasales/rotasales/internal/shared"
)

// OperationType tags one client operation in an upload batch.
type OperationType string

const (
	OpCreateSale          OperationType = "CREATE_SALE"
	OpCreateCreditPayment OperationType = "CREATE_CREDIT_PAYMENT"
	OpCreateGuide         OperationType = "CREATE_GUIDE"
	OpCloseGuide          OperationType = "CLOSE_GUIDE"

	// Reserved by the protocol, not implemented. Uploading one of these
	// fails that operation, nothing else.
	OpUpdateSale  OperationType = "UPDATE_SALE"
	OpUpdateGuide OperationType = "UPDATE_GUIDE"
)

// Operation is one entry of an upload batch. The payload stays raw until
// the type dispatch decodes it into its schema.
type Operation struct {
	Type    OperationType   `json:"operation_type"`
	LocalID string          `json:"local_id"`
	Payload json.RawMessage `json:"payload"`
}

// SaleItemPayload carries one sale line exactly as the client computed it.
type SaleItemPayload struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SalePayload is the CREATE_SALE schema. Totals are taken verbatim, the
// client already computed them offline against the catalog it had.
type SalePayload struct {
	CustomerID  *int64            `json:"customer_id"`
	GuideID     *int64            `json:"guide_id"`
	PaymentType string            `json:"payment_type"`
	SaleDate    shared.Date       `json:"sale_date"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Items       []SaleItemPayload `json:"items"`
}

// CreditPaymentPayload is the CREATE_CREDIT_PAYMENT schema. CreditID is
// the server id obtained from a previous download.
type CreditPaymentPayload struct {
	CreditID    int64           `json:"credit_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate shared.Date     `json:"payment_date"`
}

// GuideItemPayload carries one guide line with the client's derived values.
// ServerID is only set on CLOSE_GUIDE, where it names the stored row.
type GuideItemPayload struct {
	ServerID            int64           `json:"server_id,omitempty"`
	ProductID           int64           `json:"product_id"`
	QuantityTaken       int             `json:"quantity_taken"`
	QuantityRemaining   *int            `json:"quantity_remaining"`
	QuantitySold        int             `json:"quantity_sold"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalTakenValue     decimal.Decimal `json:"total_taken_value"`
	TotalSoldValue      decimal.Decimal `json:"total_sold_value"`
	TotalRemainingValue decimal.Decimal `json:"total_remaining_value"`
}

// GuidePayload is the CREATE_GUIDE schema.
type GuidePayload struct {
	GuideDate           shared.Date        `json:"guide_date"`
	Notes               *string            `json:"notes,omitempty"`
	TotalTakenValue     decimal.Decimal    `json:"total_taken_value"`
	TotalSoldValue      decimal.Decimal    `json:"total_sold_value"`
	TotalRemainingValue decimal.Decimal    `json:"total_remaining_value"`
	Items               []GuideItemPayload `json:"items"`
}

// CloseGuidePayload is the CLOSE_GUIDE schema. GuideID is the server id;
// items are matched to stored rows by their item server_id and their
// derived values overwritten from here.
type CloseGuidePayload struct {
	GuideID             int64              `json:"guide_id"`
	TotalTakenValue     decimal.Decimal    `json:"total_taken_value"`
	TotalSoldValue      decimal.Decimal    `json:"total_sold_value"`
	TotalRemainingValue decimal.Decimal    `json:"total_remaining_value"`
	Items               []GuideItemPayload `json:"items"`
}

// OperationResult is the per-operation outcome echoed back to the client.
type OperationResult struct {
	LocalID  string `json:"local_id"`
	Status   string `json:"status"`
	ServerID *int64 `json:"server_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// UploadRequest is the sync upload envelope.
type UploadRequest struct {
	Operations []Operation `json:"operations" validate:"required"`
}

// UploadResponse carries one result per uploaded operation, in order.
type UploadResponse struct {
	Results []OperationResult `json:"results"`
}

// LogType discriminates upload batches from download snapshots.
type LogType string

const (
	LogUpload   LogType = "UPLOAD"
	LogDownload LogType = "DOWNLOAD"
)

// LogStatus is the terminal state of a sync log entry.
type LogStatus string

const (
	LogInProgress LogStatus = "IN_PROGRESS"
	LogCompleted  LogStatus = "COMPLETED"
	LogFailed     LogStatus = "FAILED"
)

// SyncLog is the audit record of one upload batch or download snapshot.
type SyncLog struct {
	ID             int64      `json:"id"`
	SellerID       int64      `json:"seller_id"`
	Type           LogType    `json:"type"`
	Status         LogStatus  `json:"status"`
	ProcessedCount int        `json:"processed_count"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// DownloadData is the snapshot handed to a seller device: the tenant's
// shared catalog plus everything the seller owns.
type DownloadData struct {
	Products  []masterdata.Product  `json:"products"`
	Customers []masterdata.Customer `json:"customers"`
	Sales     []sales.Sale          `json:"sales"`
	Credits   []credit.Credit       `json:"credits"`
	Guides    []guide.SalesGuide    `json:"guides"`
}

// RecordCount is the total number of entities across all collections.
func (d *DownloadData) RecordCount() int {
	return len(d.Products) + len(d.Customers) + len(d.Sales) + len(d.Credits) + len(d.Guides)
}
