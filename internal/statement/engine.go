// Package statement derives balance snapshots from canonical transactions.
// Everything here is a pure function of its input; callers load the transactions.
package statement

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/classification"
	"ledger-service/internal/models"
)

// Policy decides whether a transaction is a line and in which direction
type Policy struct {
	Name     string
	classify func(t *models.Transaction) (models.Direction, bool)
}

// Direction returns the line direction for t, or false when t is not a line under p
func (p Policy) Direction(t *models.Transaction) (models.Direction, bool) {
	return p.classify(t)
}

// Statement is the tenant/landlord statement view: rent receipts in, qualifying
// service costs out. Owner payouts and commission are left out.
var Statement = Policy{Name: "statement", classify: statementDirection}

// Settlement is the owner account view: the same income, but every outgoing
// classified line reduces the balance, including owner payouts and fees.
var Settlement = Policy{Name: "settlement", classify: settlementDirection}

func input(t *models.Transaction) classification.Input {
	return classification.Input{
		TransactionType:  t.TransactionType,
		Category:         t.Category,
		CounterpartyRole: t.CounterpartyRole,
	}
}

// isOutgoing checks the outflow roles. They take precedence over the rent receipt
// check, which also matches the generic "payment" type.
func isOutgoing(in classification.Input) bool {
	return classification.IsExpense(in) || classification.IsAgencyFee(in) || classification.IsOwnerPayment(in)
}

func statementDirection(t *models.Transaction) (models.Direction, bool) {
	in := input(t)
	if isOutgoing(in) {
		return models.DirectionOutflow, IsExpenseQualifying(t)
	}
	if classification.IsRentReceipt(in) && IsIncomeQualifying(t) {
		return models.DirectionIncome, true
	}
	return "", false
}

func settlementDirection(t *models.Transaction) (models.Direction, bool) {
	in := input(t)
	if isOutgoing(in) {
		return models.DirectionOutflow, !t.Amount.IsZero()
	}
	if classification.IsRentReceipt(in) && IsIncomeQualifying(t) {
		return models.DirectionIncome, true
	}
	return "", false
}

type entry struct {
	tx        *models.Transaction
	day       time.Time
	direction models.Direction
}

// Build computes the snapshot of scope for [start, end] from transactions.
// Transactions after end are ignored; those before start only feed the opening balance.
// Ordering is by date, with ties kept in input order.
func Build(scope models.Scope, start, end time.Time, transactions []*models.Transaction, policy Policy) *models.BalanceSnapshot {
	start = models.TruncateDate(start)
	end = models.TruncateDate(end)

	entries := make([]entry, 0, len(transactions))
	for _, t := range transactions {
		direction, ok := policy.Direction(t)
		if !ok {
			continue
		}
		day := models.TruncateDate(t.TransactionDate)
		if day.After(end) {
			continue
		}
		entries = append(entries, entry{tx: t, day: day, direction: direction})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].day.Before(entries[j].day)
	})

	snapshot := &models.BalanceSnapshot{
		Scope:          scope,
		PeriodStart:    models.FormatDate(start),
		PeriodEnd:      models.FormatDate(end),
		OpeningBalance: decimal.Zero,
		TotalIncome:    decimal.Zero,
		TotalOutflow:   decimal.Zero,
		Lines:          []models.StatementLine{},
	}

	i := 0
	for ; i < len(entries) && entries[i].day.Before(start); i++ {
		snapshot.OpeningBalance = apply(snapshot.OpeningBalance, entries[i].direction, entries[i].tx.AbsAmount())
	}

	running := snapshot.OpeningBalance
	for _, e := range entries[i:] {
		amount := e.tx.AbsAmount()
		running = apply(running, e.direction, amount)
		if e.direction == models.DirectionIncome {
			snapshot.TotalIncome = snapshot.TotalIncome.Add(amount)
		} else {
			snapshot.TotalOutflow = snapshot.TotalOutflow.Add(amount)
		}
		snapshot.Lines = append(snapshot.Lines, models.StatementLine{
			TransactionID:  e.tx.ID,
			Date:           models.FormatDate(e.day),
			Description:    e.tx.Description,
			Category:       e.tx.Category,
			SourceSystem:   e.tx.SourceSystem,
			Direction:      e.direction,
			Amount:         amount,
			RunningBalance: running,
		})
	}
	snapshot.ClosingBalance = running

	return snapshot
}

func apply(balance decimal.Decimal, direction models.Direction, amount decimal.Decimal) decimal.Decimal {
	if direction == models.DirectionIncome {
		return balance.Add(amount)
	}
	return balance.Sub(amount)
}
