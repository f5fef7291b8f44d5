package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledger-service/internal/events"
	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
)

// NotificationPublisher hands notifications to the rebuild worker
type NotificationPublisher interface {
	Publish(ctx context.Context, n events.Notification) error
}

// DataIngestionService stores source batches and announces them. It never waits for
// the rebuild a batch triggers.
type DataIngestionService struct {
	db             *sql.DB
	historicalRepo repositories.HistoricalRepository
	platformRepo   repositories.PlatformRepository
	publisher      NotificationPublisher
	log            zerolog.Logger
	now            func() time.Time
}

func NewDataIngestionService(
	db *sql.DB,
	historicalRepo repositories.HistoricalRepository,
	platformRepo repositories.PlatformRepository,
	publisher NotificationPublisher,
	log zerolog.Logger,
) *DataIngestionService {
	return &DataIngestionService{
		db:             db,
		historicalRepo: historicalRepo,
		platformRepo:   platformRepo,
		publisher:      publisher,
		log:            log.With().Str("component", "ingestion").Logger(),
		now:            time.Now,
	}
}

// TransactionInput holds the fields shared by both sources
type TransactionInput struct {
	AccountSource      string              `json:"account_source"`
	TransactionDate    string              `json:"transaction_date"`
	Amount             decimal.NullDecimal `json:"amount"`
	Description        string              `json:"description,omitempty"`
	TransactionType    string              `json:"transaction_type"`
	Category           string              `json:"category,omitempty"`
	Subcategory        string              `json:"subcategory,omitempty"`
	CounterpartyRole   string              `json:"counterparty_role,omitempty"`
	InvoiceID          *int64              `json:"invoice_id,omitempty"`
	TenantID           *int64              `json:"tenant_id,omitempty"`
	OwnerID            *int64              `json:"owner_id,omitempty"`
	BeneficiaryID      *int64              `json:"beneficiary_id,omitempty"`
	PaymentBatchID     string              `json:"payment_batch_id,omitempty"`
	CommissionRate     decimal.NullDecimal `json:"commission_rate"`
	CommissionAmount   decimal.NullDecimal `json:"commission_amount"`
	ServiceFeeRate     decimal.NullDecimal `json:"service_fee_rate"`
	ServiceFeeAmount   decimal.NullDecimal `json:"service_fee_amount"`
	NetToOwnerAmount   decimal.NullDecimal `json:"net_to_owner_amount"`
	Reconciled         bool                `json:"reconciled"`
	ReconciliationDate string              `json:"reconciliation_date,omitempty"`
}

type HistoricalTransactionInput struct {
	TransactionInput
	SourceReference string `json:"source_reference,omitempty"`
	PropertyID      *int64 `json:"property_id,omitempty"`
}

type PlatformTransactionInput struct {
	TransactionInput
	PlatformTransactionID string `json:"platform_transaction_id"`
	DataSource            string `json:"data_source"`
	PropertyReference     string `json:"property_reference,omitempty"`
}

type HistoricalImportRequest struct {
	DataSourceLabel string                       `json:"data_source_label"`
	Transactions    []HistoricalTransactionInput `json:"transactions"`
}

type PlatformSyncRequest struct {
	SyncType string `json:"sync_type"`
	// Success defaults to true when omitted
	Success      *bool                      `json:"success,omitempty"`
	Transactions []PlatformTransactionInput `json:"transactions"`
}

type IngestionResult struct {
	Success      bool                   `json:"success"`
	RecordsCount int                    `json:"records_count"`
	Errors       []string               `json:"errors,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// IngestHistorical stores valid rows in one transaction and publishes a historical
// import notification stamped with the time the import started.
func (s *DataIngestionService) IngestHistorical(ctx context.Context, req HistoricalImportRequest) (*IngestionResult, error) {
	started := s.now()
	result := newIngestionResult()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, input := range req.Transactions {
		rec, err := input.toSourceRecord()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid transaction %d (%s): %v", i, input.SourceReference, err))
			continue
		}
		if err := s.historicalRepo.InsertHistoricalTransaction(tx, rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to insert transaction %d (%s): %v", i, input.SourceReference, err))
			continue
		}
		result.RecordsCount++
	}

	if err := s.finish(tx, result, len(req.Transactions)); err != nil {
		return nil, err
	}

	if result.RecordsCount > 0 {
		s.publish(ctx, events.NewHistoricalImported(result.RecordsCount, started, req.DataSourceLabel))
	}
	return result, nil
}

// IngestPlatform stores a platform sync batch and publishes a sync notification.
// The notification reports success when the caller did and the batch was not rejected outright.
func (s *DataIngestionService) IngestPlatform(ctx context.Context, req PlatformSyncRequest) (*IngestionResult, error) {
	started := s.now()
	result := newIngestionResult()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, input := range req.Transactions {
		rec, err := input.toSourceRecord()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid transaction %d (%s): %v", i, input.PlatformTransactionID, err))
			continue
		}
		if err := s.platformRepo.InsertPlatformTransaction(tx, rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to insert transaction %d (%s): %v", i, input.PlatformTransactionID, err))
			continue
		}
		result.RecordsCount++
	}

	if err := s.finish(tx, result, len(req.Transactions)); err != nil {
		return nil, err
	}

	success := req.Success == nil || *req.Success
	success = success && (result.RecordsCount > 0 || len(result.Errors) == 0)
	s.publish(ctx, events.NewPlatformSynced(result.RecordsCount, started, req.SyncType, success))
	return result, nil
}

func newIngestionResult() *IngestionResult {
	return &IngestionResult{
		Success: true,
		Details: make(map[string]interface{}),
	}
}

// finish commits when at least one row was stored and fills in the summary
func (s *DataIngestionService) finish(tx *sql.Tx, result *IngestionResult, total int) error {
	result.Success = len(result.Errors) == 0
	result.Details["total_records"] = total
	result.Details["successful"] = result.RecordsCount
	result.Details["failed"] = len(result.Errors)

	if result.RecordsCount == 0 {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *DataIngestionService) publish(ctx context.Context, n events.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		details, _ := json.Marshal(n)
		s.log.Warn().Err(err).RawJSON("notification", details).Msg("Failed to publish notification")
	}
}

func (in TransactionInput) validate() (sql.NullTime, error) {
	if in.TransactionDate == "" {
		return sql.NullTime{}, fmt.Errorf("transaction_date is required")
	}
	date, err := models.ParseDate(in.TransactionDate)
	if err != nil {
		return sql.NullTime{}, fmt.Errorf("transaction_date must be YYYY-MM-DD: %w", err)
	}
	if !in.Amount.Valid {
		return sql.NullTime{}, fmt.Errorf("amount is required")
	}
	return sql.NullTime{Time: date, Valid: true}, nil
}

func (in TransactionInput) sourceRecord(system models.SourceSystem) (*models.SourceRecord, error) {
	date, err := in.validate()
	if err != nil {
		return nil, err
	}
	reconciledOn := sql.NullTime{}
	if in.ReconciliationDate != "" {
		d, err := models.ParseDate(in.ReconciliationDate)
		if err != nil {
			return nil, fmt.Errorf("reconciliation_date must be YYYY-MM-DD: %w", err)
		}
		reconciledOn = sql.NullTime{Time: d, Valid: true}
	}

	return &models.SourceRecord{
		SourceSystem:     system,
		AccountSource:    in.AccountSource,
		TransactionDate:  date,
		Amount:           in.Amount,
		Description:      in.Description,
		TransactionType:  in.TransactionType,
		Category:         in.Category,
		Subcategory:      in.Subcategory,
		CounterpartyRole: in.CounterpartyRole,
		Links: models.Links{
			InvoiceID:      nullInt64(in.InvoiceID),
			TenantID:       nullInt64(in.TenantID),
			OwnerID:        nullInt64(in.OwnerID),
			BeneficiaryID:  nullInt64(in.BeneficiaryID),
			PaymentBatchID: sql.NullString{String: in.PaymentBatchID, Valid: in.PaymentBatchID != ""},
		},
		FeeBreakdown: models.FeeBreakdown{
			CommissionRate:   in.CommissionRate.Decimal,
			CommissionAmount: in.CommissionAmount.Decimal,
			ServiceFeeRate:   in.ServiceFeeRate.Decimal,
			ServiceFeeAmount: in.ServiceFeeAmount.Decimal,
			NetToOwnerAmount: in.NetToOwnerAmount.Decimal,
		},
		Reconciled:         in.Reconciled,
		ReconciliationDate: reconciledOn,
	}, nil
}

func (in HistoricalTransactionInput) toSourceRecord() (*models.SourceRecord, error) {
	rec, err := in.sourceRecord(models.SourceHistorical)
	if err != nil {
		return nil, err
	}
	rec.SourceID = in.SourceReference
	rec.PropertyID = nullInt64(in.PropertyID)
	return rec, nil
}

func (in PlatformTransactionInput) toSourceRecord() (*models.SourceRecord, error) {
	rec, err := in.sourceRecord(models.SourcePlatform)
	if err != nil {
		return nil, err
	}
	if in.DataSource == "" {
		return nil, fmt.Errorf("data_source is required")
	}
	rec.SourceID = in.PlatformTransactionID
	rec.DataSource = in.DataSource
	rec.PropertyReference = in.PropertyReference
	return rec, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
