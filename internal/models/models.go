package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SourceSystem identifies which upstream origin produced a record
type SourceSystem string

const (
	SourceHistorical SourceSystem = "HISTORICAL"
	SourcePlatform   SourceSystem = "EXTERNAL_PLATFORM"
)

func (s SourceSystem) Valid() bool {
	return s == SourceHistorical || s == SourcePlatform
}

// Platform record types (data_source column of platform_transactions)
const (
	DataSourceIncomingPayment   = "INCOMING_PAYMENT"
	DataSourceBatchPayment      = "BATCH_PAYMENT"
	DataSourceCommissionPayment = "COMMISSION_PAYMENT"
	DataSourceExpensePayment    = "EXPENSE_PAYMENT"
)

// DateLayout is the calendar date format used on the wire and in queries
const DateLayout = "2006-01-02"

// Links holds the weak relationship references of a canonical transaction.
// Every link is optional and may be back-filled after the initial insert.
type Links struct {
	PropertyID     sql.NullInt64  `db:"property_id" json:"property_id"`
	InvoiceID      sql.NullInt64  `db:"invoice_id" json:"invoice_id"`
	TenantID       sql.NullInt64  `db:"tenant_id" json:"tenant_id"`
	OwnerID        sql.NullInt64  `db:"owner_id" json:"owner_id"`
	BeneficiaryID  sql.NullInt64  `db:"beneficiary_id" json:"beneficiary_id"`
	PaymentBatchID sql.NullString `db:"payment_batch_id" json:"payment_batch_id"`
}

// Empty reports whether no link is set
func (l Links) Empty() bool {
	return !l.PropertyID.Valid && !l.InvoiceID.Valid && !l.TenantID.Valid &&
		!l.OwnerID.Valid && !l.BeneficiaryID.Valid && !l.PaymentBatchID.Valid
}

// FeeBreakdown carries commission and service fee values exactly as the source supplied them.
// Absent values are zero.
type FeeBreakdown struct {
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commission_rate"`
	CommissionAmount decimal.Decimal `db:"commission_amount" json:"commission_amount"`
	ServiceFeeRate   decimal.Decimal `db:"service_fee_rate" json:"service_fee_rate"`
	ServiceFeeAmount decimal.Decimal `db:"service_fee_amount" json:"service_fee_amount"`
	NetToOwnerAmount decimal.Decimal `db:"net_to_owner_amount" json:"net_to_owner_amount"`
}

// Transaction is the canonical ledger record. Amount and date are never rewritten;
// only links and reconciliation fields may change after insert.
type Transaction struct {
	ID                  int64           `db:"id" json:"id"`
	SourceSystem        SourceSystem    `db:"source_system" json:"source_system"`
	SourceTransactionID string          `db:"source_transaction_id" json:"source_transaction_id,omitempty"`
	AccountSource       string          `db:"account_source" json:"account_source"`
	DataSource          string          `db:"data_source" json:"data_source,omitempty"`
	TransactionDate     time.Time       `db:"transaction_date" json:"transaction_date"`
	Amount              decimal.Decimal `db:"amount" json:"amount"`
	Description         string          `db:"description" json:"description"`
	TransactionType     string          `db:"transaction_type" json:"transaction_type"`
	Category            string          `db:"category" json:"category"`
	Subcategory         string          `db:"subcategory" json:"subcategory"`
	CounterpartyRole    string          `db:"counterparty_role" json:"counterparty_role"`
	PropertyReference   string          `db:"property_reference" json:"property_reference,omitempty"`
	Links
	FeeBreakdown
	Reconciled         bool         `db:"reconciled" json:"reconciled"`
	ReconciliationDate sql.NullTime `db:"reconciliation_date" json:"reconciliation_date"`
	CreatedAt          time.Time    `db:"created_at" json:"-"`
	UpdatedAt          time.Time    `db:"updated_at" json:"-"`
}

// AbsAmount is derived from Amount and never stored
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// SourceRecord is a source-specific row handed to the normalizer.
// Amount is nullable so that an unmappable row can be detected and skipped.
type SourceRecord struct {
	RowID             int64
	SourceSystem      SourceSystem
	SourceID          string
	AccountSource     string
	DataSource        string
	TransactionDate   sql.NullTime
	Amount            decimal.NullDecimal
	Description       string
	TransactionType   string
	Category          string
	Subcategory       string
	CounterpartyRole  string
	PropertyReference string
	Links
	FeeBreakdown
	Reconciled         bool
	ReconciliationDate sql.NullTime
	UpdatedAt          time.Time
}

// RebuildMode constants
type RebuildMode string

const (
	RebuildIncremental RebuildMode = "incremental"
	RebuildFull        RebuildMode = "full"
)

// RebuildResult summarises one rebuild run
type RebuildResult struct {
	ID               int64       `json:"id,omitempty"`
	BatchID          string      `json:"batch_id"`
	Mode             RebuildMode `json:"mode"`
	Since            *time.Time  `json:"since,omitempty"`
	Status           string      `json:"status"`
	RecordsProcessed int         `json:"records_processed"`
	RecordsInserted  int         `json:"records_inserted"`
	RecordsSkipped   int         `json:"records_skipped"`
	RecordsFailed    int         `json:"records_failed"`
	RecordsLinked    int         `json:"records_linked"`
	DurationSeconds  float64     `json:"duration_seconds"`
	Error            string      `json:"error,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
}

// RebuildRun is the persisted audit row of a rebuild
type RebuildRun struct {
	ID        int64           `db:"id" json:"id"`
	BatchID   string          `db:"batch_id" json:"batch_id"`
	Mode      string          `db:"mode" json:"mode"`
	Status    string          `db:"status" json:"status"`
	Details   json.RawMessage `db:"details" json:"details"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SourceStatistics aggregates canonical rows for one source system
type SourceStatistics struct {
	SourceSystem SourceSystem    `json:"source_system"`
	Count        int64           `json:"count"`
	Earliest     sql.NullTime    `json:"earliest"`
	Latest       sql.NullTime    `json:"latest"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// RebuildStatus constants
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Property is the weak-reference view of a property used for link resolution
type Property struct {
	ID         int64          `db:"id" json:"id"`
	ExternalID sql.NullString `db:"external_id" json:"external_id"`
	OwnerID    sql.NullInt64  `db:"owner_id" json:"owner_id"`
	Name       string         `db:"name" json:"name"`
}
