package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
)

// BalanceReportService projects settlement snapshots of property accounts into rollups
type BalanceReportService struct {
	statements      *StatementService
	transactionRepo repositories.TransactionRepository
	propertyRepo    repositories.PropertyRepository
	log             zerolog.Logger
}

func NewBalanceReportService(
	statements *StatementService,
	transactionRepo repositories.TransactionRepository,
	propertyRepo repositories.PropertyRepository,
	log zerolog.Logger,
) *BalanceReportService {
	return &BalanceReportService{
		statements:      statements,
		transactionRepo: transactionRepo,
		propertyRepo:    propertyRepo,
		log:             log.With().Str("component", "balance_report").Logger(),
	}
}

// ledgerStart is the earliest date a settlement balance is accumulated from
var ledgerStart = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// PropertyBalance returns the settlement position of one property account as of asOf
func (s *BalanceReportService) PropertyBalance(ctx context.Context, propertyID int64, asOf time.Time) (*models.PropertyBalance, error) {
	scope := models.Scope{Kind: models.ScopeProperty, ID: propertyID}
	snap, err := s.statements.ComputeSettlement(ctx, scope, ledgerStart, asOf)
	if err != nil {
		return nil, err
	}

	balance := &models.PropertyBalance{
		PropertyID:   propertyID,
		Balance:      snap.ClosingBalance,
		TotalIncome:  snap.TotalIncome,
		TotalOutflow: snap.TotalOutflow,
	}
	if n := len(snap.Lines); n > 0 {
		balance.LastActivityOn = snap.Lines[n-1].Date
	}

	property, err := s.propertyRepo.FindByID(ctx, propertyID)
	switch {
	case err == nil:
		if property.OwnerID.Valid {
			owner := property.OwnerID.Int64
			balance.OwnerID = &owner
		}
	case errors.Is(err, repositories.ErrNotFound):
	default:
		s.log.Warn().Err(err).Int64("property_id", propertyID).Msg("Property lookup failed")
	}
	return balance, nil
}

// PropertySettlement returns the full settlement snapshot of one property for a period
func (s *BalanceReportService) PropertySettlement(ctx context.Context, propertyID int64, start, end time.Time) (*models.BalanceSnapshot, error) {
	return s.statements.ComputeSettlement(ctx, models.Scope{Kind: models.ScopeProperty, ID: propertyID}, start, end)
}

func (s *BalanceReportService) allPropertyBalances(ctx context.Context, asOf time.Time) ([]models.PropertyBalance, error) {
	ids, err := s.transactionRepo.ListScopeIDs(ctx, models.ScopeProperty)
	if err != nil {
		return nil, fmt.Errorf("failed to list property accounts: %w", err)
	}
	return s.propertyBalances(ctx, ids, asOf)
}

func (s *BalanceReportService) propertyBalances(ctx context.Context, ids []int64, asOf time.Time) ([]models.PropertyBalance, error) {
	balances := make([]models.PropertyBalance, 0, len(ids))
	for _, id := range ids {
		b, err := s.PropertyBalance(ctx, id, asOf)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}
	return balances, nil
}

// Dashboard totals what is held for owners against what owners owe back
func (s *BalanceReportService) Dashboard(ctx context.Context, asOf time.Time) (*models.DashboardSummary, error) {
	balances, err := s.allPropertyBalances(ctx, asOf)
	if err != nil {
		return nil, err
	}

	summary := &models.DashboardSummary{
		AsOf:              models.FormatDate(asOf),
		TotalOwedToOwners: decimal.Zero,
		TotalOwedByOwners: decimal.Zero,
		NetPosition:       decimal.Zero,
	}
	for _, b := range balances {
		switch b.Balance.Sign() {
		case 1:
			summary.TotalOwedToOwners = summary.TotalOwedToOwners.Add(b.Balance)
			summary.AccountsWithBalance++
		case -1:
			summary.TotalOwedByOwners = summary.TotalOwedByOwners.Add(b.Balance.Abs())
			summary.OverdrawnAccounts++
		default:
			summary.ZeroBalanceAccounts++
		}
	}
	summary.NetPosition = summary.TotalOwedToOwners.Sub(summary.TotalOwedByOwners)
	return summary, nil
}

// Overdrawn lists property accounts below zero, most overdrawn first
func (s *BalanceReportService) Overdrawn(ctx context.Context, asOf time.Time) ([]models.PropertyBalance, error) {
	balances, err := s.allPropertyBalances(ctx, asOf)
	if err != nil {
		return nil, err
	}
	overdrawn := []models.PropertyBalance{}
	for _, b := range balances {
		if b.Balance.IsNegative() {
			overdrawn = append(overdrawn, b)
		}
	}
	sort.SliceStable(overdrawn, func(i, j int) bool {
		return overdrawn[i].Balance.LessThan(overdrawn[j].Balance)
	})
	return overdrawn, nil
}

// BalancesDue lists positive balances at or above threshold, largest first
func (s *BalanceReportService) BalancesDue(ctx context.Context, asOf time.Time, threshold decimal.Decimal) ([]models.PropertyBalance, error) {
	balances, err := s.allPropertyBalances(ctx, asOf)
	if err != nil {
		return nil, err
	}
	due := []models.PropertyBalance{}
	for _, b := range balances {
		if b.Balance.IsPositive() && b.Balance.GreaterThanOrEqual(threshold) {
			due = append(due, b)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Balance.GreaterThan(due[j].Balance)
	})
	return due, nil
}

// OwnerSummary groups the property balances of one owner
func (s *BalanceReportService) OwnerSummary(ctx context.Context, ownerID int64, asOf time.Time) (*models.OwnerBalanceSummary, error) {
	ids, err := s.transactionRepo.ListPropertyIDsForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties for owner %d: %w", ownerID, err)
	}
	balances, err := s.propertyBalances(ctx, ids, asOf)
	if err != nil {
		return nil, err
	}

	summary := &models.OwnerBalanceSummary{
		OwnerID:          ownerID,
		AsOf:             models.FormatDate(asOf),
		PropertyBalances: balances,
		TotalBalance:     decimal.Zero,
		PropertyCount:    len(balances),
	}
	for _, b := range balances {
		summary.TotalBalance = summary.TotalBalance.Add(b.Balance)
	}
	return summary, nil
}
