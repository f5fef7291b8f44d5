package statement

import (
	"strings"

	"ledger-service/internal/models"
)

// internalTransferMarker is the dashed tag the bank export puts on account-to-account
// withdrawals. Plain mentions of a property account in free text are not transfers.
const internalTransferMarker = "- property account -"

// IsIncomeQualifying reports whether t may appear in a statement's income column.
// Historical rows qualify; platform rows qualify only as incoming payments.
// Internal transfers between accounts never count as income.
func IsIncomeQualifying(t *models.Transaction) bool {
	switch {
	case t.SourceSystem == models.SourceHistorical:
	case t.SourceSystem == models.SourcePlatform && strings.EqualFold(t.DataSource, models.DataSourceIncomingPayment):
	default:
		return false
	}
	return !strings.Contains(strings.ToLower(t.Description), internalTransferMarker)
}

// IsExpenseQualifying reports whether t may appear in a statement's outflow column.
// Owner payouts and commission are settlement outputs, not service costs.
func IsExpenseQualifying(t *models.Transaction) bool {
	if t.Amount.IsZero() {
		return false
	}
	category := strings.ToLower(strings.TrimSpace(t.Category))
	if category == "owner" || category == "commission" || strings.Contains(category, "owner_payment") {
		return false
	}
	if category == "" && isAgencyPayment(t) {
		return false
	}
	return true
}

func isAgencyPayment(t *models.Transaction) bool {
	return strings.EqualFold(strings.TrimSpace(t.TransactionType), "payment_to_agency")
}
