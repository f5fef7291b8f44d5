package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
	"ledger-service/internal/statement"
)

var ErrInvalidPeriod = errors.New("period start is after period end")

// StatementService computes balance snapshots on demand. It never writes.
type StatementService struct {
	transactionRepo repositories.TransactionRepository
}

func NewStatementService(transactionRepo repositories.TransactionRepository) *StatementService {
	return &StatementService{transactionRepo: transactionRepo}
}

// ComputeStatement returns the statement snapshot for scope over [start, end].
// A scope with no transactions yields zero balances and no lines.
func (s *StatementService) ComputeStatement(ctx context.Context, scope models.Scope, start, end time.Time) (*models.BalanceSnapshot, error) {
	return s.compute(ctx, scope, start, end, statement.Statement)
}

// ComputeSettlement is ComputeStatement under the owner account view
func (s *StatementService) ComputeSettlement(ctx context.Context, scope models.Scope, start, end time.Time) (*models.BalanceSnapshot, error) {
	return s.compute(ctx, scope, start, end, statement.Settlement)
}

func (s *StatementService) compute(ctx context.Context, scope models.Scope, start, end time.Time, policy statement.Policy) (*models.BalanceSnapshot, error) {
	start = models.TruncateDate(start)
	end = models.TruncateDate(end)
	if start.After(end) {
		return nil, ErrInvalidPeriod
	}

	transactions, err := s.transactionRepo.ListByScope(ctx, scope, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for %s: %w", scope, err)
	}
	return statement.Build(scope, start, end, transactions, policy), nil
}
