package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"ledger-service/internal/models"
)

var (
	// ErrDuplicateSource is returned when (source_system, source_transaction_id) already exists
	ErrDuplicateSource = errors.New("canonical transaction already exists for source identifier")
	ErrNotFound        = errors.New("record not found")
)

const mysqlDuplicateEntry = 1062

// TransactionRepository is the canonical store. Rows are append-only: amount, date and
// classification inputs are written once, links may be back-filled where empty.
type TransactionRepository interface {
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	ExistsBySource(ctx context.Context, system models.SourceSystem, sourceID string) (bool, error)
	BackfillLinksBySource(ctx context.Context, system models.SourceSystem, sourceID string, links models.Links) (bool, error)
	BackfillLinksByID(ctx context.Context, id int64, links models.Links) (bool, error)
	GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error)
	ListByScope(ctx context.Context, scope models.Scope, through time.Time) ([]*models.Transaction, error)
	ListScopeIDs(ctx context.Context, kind models.ScopeKind) ([]int64, error)
	ListPropertyIDsForOwner(ctx context.Context, ownerID int64) ([]int64, error)
	GetStatistics(ctx context.Context) ([]models.SourceStatistics, error)
}

type transactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `
	id, source_system, source_transaction_id, account_source, data_source,
	transaction_date, amount, description, transaction_type, category,
	subcategory, counterparty_role, property_reference,
	property_id, invoice_id, tenant_id, owner_id, beneficiary_id, payment_batch_id,
	commission_rate, commission_amount, service_fee_rate, service_fee_amount,
	net_to_owner_amount, reconciled, reconciliation_date, created_at, updated_at`

func (r *transactionRepository) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO unified_transactions (
			source_system, source_transaction_id, account_source, data_source,
			transaction_date, amount, description, transaction_type, category,
			subcategory, counterparty_role, property_reference,
			property_id, invoice_id, tenant_id, owner_id, beneficiary_id, payment_batch_id,
			commission_rate, commission_amount, service_fee_rate, service_fee_amount,
			net_to_owner_amount, reconciled, reconciliation_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		string(t.SourceSystem),
		nullString(t.SourceTransactionID),
		t.AccountSource,
		t.DataSource,
		t.TransactionDate.Format(models.DateLayout),
		t.Amount,
		t.Description,
		t.TransactionType,
		t.Category,
		t.Subcategory,
		t.CounterpartyRole,
		t.PropertyReference,
		t.PropertyID,
		t.InvoiceID,
		t.TenantID,
		t.OwnerID,
		t.BeneficiaryID,
		t.PaymentBatchID,
		t.CommissionRate,
		t.CommissionAmount,
		t.ServiceFeeRate,
		t.ServiceFeeAmount,
		t.NetToOwnerAmount,
		t.Reconciled,
		t.ReconciliationDate,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateSource
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

func (r *transactionRepository) ExistsBySource(ctx context.Context, system models.SourceSystem, sourceID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM unified_transactions
			WHERE source_system = ? AND source_transaction_id = ?
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, string(system), sourceID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

const backfillSet = `
	SET property_id = COALESCE(property_id, ?),
	    invoice_id = COALESCE(invoice_id, ?),
	    tenant_id = COALESCE(tenant_id, ?),
	    owner_id = COALESCE(owner_id, ?),
	    beneficiary_id = COALESCE(beneficiary_id, ?),
	    payment_batch_id = COALESCE(payment_batch_id, ?)`

func linkArgs(links models.Links) []interface{} {
	return []interface{}{
		links.PropertyID,
		links.InvoiceID,
		links.TenantID,
		links.OwnerID,
		links.BeneficiaryID,
		links.PaymentBatchID,
	}
}

// BackfillLinksBySource fills only the links that are still NULL. It reports whether any row changed;
// updated_at moves only when a link was actually filled.
func (r *transactionRepository) BackfillLinksBySource(ctx context.Context, system models.SourceSystem, sourceID string, links models.Links) (bool, error) {
	if links.Empty() {
		return false, nil
	}
	query := `UPDATE unified_transactions` + backfillSet + `
		WHERE source_system = ? AND source_transaction_id = ?
	`
	args := append(linkArgs(links), string(system), sourceID)
	return r.execBackfill(ctx, query, args)
}

func (r *transactionRepository) BackfillLinksByID(ctx context.Context, id int64, links models.Links) (bool, error) {
	if links.Empty() {
		return false, nil
	}
	query := `UPDATE unified_transactions` + backfillSet + `
		WHERE id = ?
	`
	args := append(linkArgs(links), id)
	return r.execBackfill(ctx, query, args)
}

func (r *transactionRepository) execBackfill(ctx context.Context, query string, args []interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (r *transactionRepository) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM unified_transactions
		WHERE id = ?
	`
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scopeColumn(kind models.ScopeKind) (string, error) {
	switch kind {
	case models.ScopeLease:
		return "invoice_id", nil
	case models.ScopeProperty:
		return "property_id", nil
	case models.ScopeOwner:
		return "owner_id", nil
	}
	return "", fmt.Errorf("unknown scope kind %q", kind)
}

// ListByScope returns every transaction for the scope dated on or before through,
// ordered by date and then insertion order.
func (r *transactionRepository) ListByScope(ctx context.Context, scope models.Scope, through time.Time) ([]*models.Transaction, error) {
	column, err := scopeColumn(scope.Kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + transactionColumns + `
		FROM unified_transactions
		WHERE ` + column + ` = ?
		AND transaction_date <= ?
		ORDER BY transaction_date, id
	`
	rows, err := r.db.QueryContext(ctx, query, scope.ID, through.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *transactionRepository) ListScopeIDs(ctx context.Context, kind models.ScopeKind) ([]int64, error) {
	column, err := scopeColumn(kind)
	if err != nil {
		return nil, err
	}
	query := `SELECT DISTINCT ` + column + `
		FROM unified_transactions
		WHERE ` + column + ` IS NOT NULL
		ORDER BY ` + column
	return r.queryIDs(ctx, query)
}

func (r *transactionRepository) ListPropertyIDsForOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT property_id
		FROM unified_transactions
		WHERE owner_id = ? AND property_id IS NOT NULL
		ORDER BY property_id
	`
	return r.queryIDs(ctx, query, ownerID)
}

func (r *transactionRepository) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *transactionRepository) GetStatistics(ctx context.Context) ([]models.SourceStatistics, error) {
	query := `
		SELECT source_system, COUNT(*), MIN(transaction_date), MAX(transaction_date),
		       COALESCE(SUM(amount), 0)
		FROM unified_transactions
		GROUP BY source_system
		ORDER BY source_system
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.SourceStatistics
	for rows.Next() {
		var s models.SourceStatistics
		var system string
		if err := rows.Scan(&system, &s.Count, &s.Earliest, &s.Latest, &s.TotalAmount); err != nil {
			return nil, err
		}
		s.SourceSystem = models.SourceSystem(system)
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	var system string
	var sourceID sql.NullString
	err := row.Scan(
		&t.ID,
		&system,
		&sourceID,
		&t.AccountSource,
		&t.DataSource,
		&t.TransactionDate,
		&t.Amount,
		&t.Description,
		&t.TransactionType,
		&t.Category,
		&t.Subcategory,
		&t.CounterpartyRole,
		&t.PropertyReference,
		&t.PropertyID,
		&t.InvoiceID,
		&t.TenantID,
		&t.OwnerID,
		&t.BeneficiaryID,
		&t.PaymentBatchID,
		&t.CommissionRate,
		&t.CommissionAmount,
		&t.ServiceFeeRate,
		&t.ServiceFeeAmount,
		&t.NetToOwnerAmount,
		&t.Reconciled,
		&t.ReconciliationDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.SourceSystem = models.SourceSystem(system)
	t.SourceTransactionID = sourceID.String
	return t, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
