// Package classification maps the raw type, category and counterparty role strings of a
// transaction to an accounting role. Every rule is a pure function; nothing here holds state.
//
// Role checks match case-insensitively and exactly, because roles come from a small
// upstream vocabulary. Some category checks match on substrings to absorb vocabulary
// drift between source systems.
package classification

import "strings"

// Role is an accounting role
type Role string

const (
	RentReceipt  Role = "RENT_RECEIPT"
	Expense      Role = "EXPENSE"
	OwnerPayment Role = "OWNER_PAYMENT"
	AgencyFee    Role = "AGENCY_FEE"
	Unclassified Role = "UNCLASSIFIED"
)

// Input holds the raw classification fields of a transaction
type Input struct {
	TransactionType  string
	Category         string
	CounterpartyRole string
}

var (
	rentReceiptTypes = []string{"invoice", "payment", "incoming_payment", "rent_received", "tenant_payment"}
	expenseTypes     = []string{"expense", "maintenance", "payment_to_contractor"}
	agencyFeeTypes   = []string{"fee", "commission_payment", "payment_to_agency"}
)

// IsRentReceipt matches tenant-payment transaction types or the "rent" category
func IsRentReceipt(in Input) bool {
	return equalsAny(in.TransactionType, rentReceiptTypes) ||
		equalFold(in.Category, "rent")
}

// IsExpense matches expense transaction types, or a payment whose counterparty is a contractor
func IsExpense(in Input) bool {
	return equalsAny(in.TransactionType, expenseTypes) ||
		equalFold(in.CounterpartyRole, "contractor")
}

// IsOwnerPayment matches payments to the owner beneficiary only
func IsOwnerPayment(in Input) bool {
	return equalFold(in.CounterpartyRole, "beneficiary")
}

// IsAgencyFee matches fee and commission lines. The commission category check is a substring match.
func IsAgencyFee(in Input) bool {
	return equalsAny(in.TransactionType, agencyFeeTypes) ||
		equalFold(in.CounterpartyRole, "agency") ||
		equalFold(in.Category, "management_fee") ||
		containsFold(in.Category, "commission")
}

var checks = []struct {
	role  Role
	match func(Input) bool
}{
	{RentReceipt, IsRentReceipt},
	{Expense, IsExpense},
	{OwnerPayment, IsOwnerPayment},
	{AgencyFee, IsAgencyFee},
}

// Classify returns the first role whose check matches, in the order rent receipt,
// expense, owner payment, agency fee. Callers that care about a specific role should
// call that role's check directly, since a transaction may satisfy several.
func Classify(in Input) Role {
	for _, c := range checks {
		if c.match(in) {
			return c.role
		}
	}
	return Unclassified
}

// Roles returns every role whose check matches, in precedence order
func Roles(in Input) []Role {
	var roles []Role
	for _, c := range checks {
		if c.match(in) {
			roles = append(roles, c.role)
		}
	}
	return roles
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func equalFold(s, want string) bool {
	return normalize(s) == want
}

func containsFold(s, sub string) bool {
	return strings.Contains(normalize(s), sub)
}

func equalsAny(s string, set []string) bool {
	n := normalize(s)
	if n == "" {
		return false
	}
	for _, v := range set {
		if n == v {
			return true
		}
	}
	return false
}
