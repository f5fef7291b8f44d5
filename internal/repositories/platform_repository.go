package repositories

import (
	"context"
	"database/sql"
	"time"

	"ledger-service/internal/models"
)

type PlatformRepository interface {
	SourceReader
	InsertPlatformTransaction(tx *sql.Tx, rec *models.SourceRecord) error
}

type platformRepository struct {
	db *sql.DB
}

func NewPlatformRepository(db *sql.DB) PlatformRepository {
	return &platformRepository{db: db}
}

func (r *platformRepository) SourceSystem() models.SourceSystem {
	return models.SourcePlatform
}

func (r *platformRepository) InsertPlatformTransaction(tx *sql.Tx, rec *models.SourceRecord) error {
	query := `
		INSERT INTO platform_transactions (
			platform_transaction_id, account_source, data_source, transaction_date, amount,
			description, transaction_type, category, subcategory, counterparty_role,
			property_reference, invoice_id, tenant_id, owner_id, beneficiary_id, payment_batch_id,
			commission_rate, commission_amount, service_fee_rate, service_fee_amount,
			net_to_owner_amount, reconciled, reconciliation_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := tx.Exec(query,
		nullString(rec.SourceID),
		rec.AccountSource,
		rec.DataSource,
		nullDate(rec.TransactionDate),
		rec.Amount,
		rec.Description,
		rec.TransactionType,
		rec.Category,
		rec.Subcategory,
		rec.CounterpartyRole,
		rec.PropertyReference,
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
	rec.SourceSystem = models.SourcePlatform
	return nil
}

// ListUpdatedSince identifies each row by its platform transaction id. Rows without one
// carry an empty SourceID and are never deduplicated.
func (r *platformRepository) ListUpdatedSince(ctx context.Context, since *time.Time) ([]*models.SourceRecord, error) {
	query := `
		SELECT id, platform_transaction_id, account_source, data_source, transaction_date, amount,
		       description, transaction_type, category, subcategory, counterparty_role,
		       property_reference, invoice_id, tenant_id, owner_id, beneficiary_id, payment_batch_id,
		       commission_rate, commission_amount, service_fee_rate, service_fee_amount,
		       net_to_owner_amount, reconciled, reconciliation_date, updated_at
		FROM platform_transactions
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
		rec := &models.SourceRecord{SourceSystem: models.SourcePlatform}
		var platformID sql.NullString
		var fees nullFees
		err := rows.Scan(
			&rec.RowID,
			&platformID,
			&rec.AccountSource,
			&rec.DataSource,
			&rec.TransactionDate,
			&rec.Amount,
			&rec.Description,
			&rec.TransactionType,
			&rec.Category,
			&rec.Subcategory,
			&rec.CounterpartyRole,
			&rec.PropertyReference,
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
		rec.SourceID = platformID.String
		rec.FeeBreakdown = fees.breakdown()
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
