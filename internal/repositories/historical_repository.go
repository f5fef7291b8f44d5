package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/models"
)

// SourceReader lists the rows of one source system for normalization
type SourceReader interface {
	SourceSystem() models.SourceSystem
	// ListUpdatedSince returns rows whose updated_at is at or after since, or every row when since is nil
	ListUpdatedSince(ctx context.Context, since *time.Time) ([]*models.SourceRecord, error)
}

type HistoricalRepository interface {
	SourceReader
	InsertHistoricalTransaction(tx *sql.Tx, rec *models.SourceRecord) error
}

type historicalRepository struct {
	db *sql.DB
}

func NewHistoricalRepository(db *sql.DB) HistoricalRepository {
	return &historicalRepository{db: db}
}

func (r *historicalRepository) SourceSystem() models.SourceSystem {
	return models.SourceHistorical
}

func (r *historicalRepository) InsertHistoricalTransaction(tx *sql.Tx, rec *models.SourceRecord) error {
	query := `
		INSERT INTO historical_transactions (
			source_reference, account_source, transaction_date, amount,
			description, transaction_type, category, subcategory, counterparty_role,
			property_id, invoice_id, tenant_id, owner_id, beneficiary_id, payment_batch_id,
			commission_rate, commission_amount, service_fee_rate, service_fee_amount,
			net_to_owner_amount, reconciled, reconciliation_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.Exec(query,
		nullString(rec.SourceID),
		rec.AccountSource,
		nullDate(rec.TransactionDate),
		rec.Amount,
		rec.Description,
		rec.TransactionType,
		rec.Category,
		rec.Subcategory,
		rec.CounterpartyRole,
		rec.PropertyID,
		rec.InvoiceID,
		rec.TenantID,
		rec.OwnerID,
		rec.BeneficiaryID,
		rec.PaymentBatchID,
		rec.CommissionRate,
		rec.CommissionAmount,
		rec.ServiceFeeRate,
		rec.ServiceFeeAmount,
		rec.NetToOwnerAmount,
		rec.Reconciled,
		nullDate(rec.ReconciliationDate),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.RowID = id
	rec.SourceSystem = models.SourceHistorical
	return nil
}

// ListUpdatedSince identifies each row by its source_reference, falling back to the row id.
func (r *historicalRepository) ListUpdatedSince(ctx context.Context, since *time.Time) ([]*models.SourceRecord, error) {
	query := `
		SELECT id, source_reference, account_source, transaction_date, amount,
		       description, transaction_type, category, subcategory, counterparty_role,
		       property_id, invoice_id, tenant_id, owner_id, beneficiary_id, payment_batch_id,
		       commission_rate, commission_amount, service_fee_rate, service_fee_amount,
		       net_to_owner_amount, reconciled, reconciliation_date, updated_at
		FROM historical_transactions
	`
	var args []interface{}
	if since != nil {
		query += ` WHERE updated_at >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.SourceRecord
	for rows.Next() {
		rec := &models.SourceRecord{SourceSystem: models.SourceHistorical}
		var reference sql.NullString
		var fees nullFees
		err := rows.Scan(
			&rec.RowID,
			&reference,
			&rec.AccountSource,
			&rec.TransactionDate,
			&rec.Amount,
			&rec.Description,
			&rec.TransactionType,
			&rec.Category,
			&rec.Subcategory,
			&rec.CounterpartyRole,
			&rec.PropertyID,
			&rec.InvoiceID,
			&rec.TenantID,
			&rec.OwnerID,
			&rec.BeneficiaryID,
			&rec.PaymentBatchID,
			&fees.commissionRate,
			&fees.commissionAmount,
			&fees.serviceFeeRate,
			&fees.serviceFeeAmount,
			&fees.netToOwnerAmount,
			&rec.Reconciled,
			&rec.ReconciliationDate,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if reference.Valid && reference.String != "" {
			rec.SourceID = reference.String
		} else {
			rec.SourceID = strconv.FormatInt(rec.RowID, 10)
		}
		rec.FeeBreakdown = fees.breakdown()
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// nullFees scans the nullable fee columns of the source tables
type nullFees struct {
	commissionRate   decimal.NullDecimal
	commissionAmount decimal.NullDecimal
	serviceFeeRate   decimal.NullDecimal
	serviceFeeAmount decimal.NullDecimal
	netToOwnerAmount decimal.NullDecimal
}

func (f nullFees) breakdown() models.FeeBreakdown {
	return models.FeeBreakdown{
		CommissionRate:   f.commissionRate.Decimal,
		CommissionAmount: f.commissionAmount.Decimal,
		ServiceFeeRate:   f.serviceFeeRate.Decimal,
		ServiceFeeAmount: f.serviceFeeAmount.Decimal,
		NetToOwnerAmount: f.netToOwnerAmount.Decimal,
	}
}

func nullDate(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return t.Time.Format(models.DateLayout)
}
