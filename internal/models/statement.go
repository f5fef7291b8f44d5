package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ScopeKind selects which relationship a statement is computed over
type ScopeKind string

const (
	ScopeLease    ScopeKind = "lease"
	ScopeProperty ScopeKind = "property"
	ScopeOwner    ScopeKind = "owner"
)

// ParseScopeKind accepts the lower-case scope names used in URLs
func ParseScopeKind(s string) (ScopeKind, error) {
	switch ScopeKind(s) {
	case ScopeLease, ScopeProperty, ScopeOwner:
		return ScopeKind(s), nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Scope is exactly one of lease, property or owner
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   int64     `json:"id"`
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// Direction of a statement line
type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionOutflow Direction = "outflow"
)

// StatementLine is one qualifying transaction with the running balance after it
type StatementLine struct {
	TransactionID  int64           `json:"transaction_id"`
	Date           string          `json:"date"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	SourceSystem   SourceSystem    `json:"source_system"`
	Direction      Direction       `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// BalanceSnapshot is derived on demand from the canonical store and never persisted
type BalanceSnapshot struct {
	Scope          Scope           `json:"scope"`
	PeriodStart    string          `json:"period_start"`
	PeriodEnd      string          `json:"period_end"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalOutflow   decimal.Decimal `json:"total_outflow"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Lines          []StatementLine `json:"lines"`
}

// DashboardSummary totals settlement balances across all property accounts
type DashboardSummary struct {
	AsOf                string          `json:"as_of"`
	TotalOwedToOwners   decimal.Decimal `json:"total_owed_to_owners"`
	TotalOwedByOwners   decimal.Decimal `json:"total_owed_by_owners"`
	NetPosition         decimal.Decimal `json:"net_position"`
	AccountsWithBalance int             `json:"accounts_with_balance"`
	OverdrawnAccounts   int             `json:"overdrawn_accounts"`
	ZeroBalanceAccounts int             `json:"zero_balance_accounts"`
}

// PropertyBalance is the settlement position of one property account
type PropertyBalance struct {
	PropertyID     int64           `json:"property_id"`
	OwnerID        *int64          `json:"owner_id,omitempty"`
	Balance        decimal.Decimal `json:"balance"`
	TotalIncome    decimal.Decimal `json:"total_income"`
	TotalOutflow   decimal.Decimal `json:"total_outflow"`
	LastActivityOn string          `json:"last_activity_on,omitempty"`
}

// OwnerBalanceSummary groups property balances for one owner
type OwnerBalanceSummary struct {
	OwnerID          int64             `json:"owner_id"`
	AsOf             string            `json:"as_of"`
	PropertyBalances []PropertyBalance `json:"property_balances"`
	TotalBalance     decimal.Decimal   `json:"total_balance"`
	PropertyCount    int               `json:"property_count"`
}

// FormatDate renders a calendar date
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a calendar date in UTC
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// TruncateDate drops the time component of t
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
