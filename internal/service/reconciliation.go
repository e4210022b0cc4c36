package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/upi-wallet/internal/domain"
	"github.com/ayo6706/upi-wallet/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationReport is the outcome of one ledger check.
type ReconciliationReport struct {
	Accounts         int64
	TotalBalance     domain.Money
	TotalOpening     domain.Money
	NegativeBalances int64
}

// Balanced reports whether money was neither created nor destroyed.
func (r ReconciliationReport) Balanced() bool {
	return r.TotalBalance == r.TotalOpening && r.NegativeBalances == 0
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store LedgerStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store LedgerStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that balances still sum to the opening balances and none is negative.
func (s *ReconciliationService) Run(ctx context.Context) (ReconciliationReport, error) {
	totals, err := s.store.Queries().GetLedgerTotals(ctx)
	if err != nil {
		return ReconciliationReport{}, fmt.Errorf("run ledger totals query: %w", err)
	}
	report := ReconciliationReport{
		Accounts:         totals.Accounts,
		TotalBalance:     totals.TotalBalance,
		TotalOpening:     totals.TotalOpening,
		NegativeBalances: totals.NegativeBalances,
	}

	if report.TotalBalance != report.TotalOpening {
		observability.IncrementLedgerImbalance("conservation")
		zap.L().Error("CRITICAL: ledger imbalance detected",
			zap.String("total_balance", report.TotalBalance.String()),
			zap.String("total_opening", report.TotalOpening.String()),
		)
	}
	if report.NegativeBalances > 0 {
		observability.IncrementLedgerImbalance("negative_balance")
		zap.L().Error("CRITICAL: negative balances detected", zap.Int64("accounts", report.NegativeBalances))
	}
	if report.Balanced() {
		zap.L().Info("Ledger Balanced", zap.Int64("accounts", report.Accounts))
	}
	return report, nil
}
