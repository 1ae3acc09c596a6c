package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService verifies that every stored balance is explained by the ledger.
type ReconciliationService struct {
	store QueryStore
}

func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run compares each balance with its opening balance plus the completed ledger net.
// Settlement entries only count on the receiving side.
func (s *ReconciliationService) Run(ctx context.Context) ([]models.BalanceMismatch, error) {
	mismatches, err := s.store.Queries().ListBalanceMismatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("run balance reconciliation query: %w", err)
	}
	observability.SetMismatchedAccounts(len(mismatches))

	if len(mismatches) == 0 {
		zap.L().Info("ledger balanced")
		return nil, nil
	}

	for _, m := range mismatches {
		observability.IncrementLedgerImbalance()
		zap.L().Error("CRITICAL: balance does not match ledger",
			zap.String("account_id", m.AccountID.String()),
			zap.Int64("balance", int64(m.Balance)),
			zap.Int64("expected", int64(m.Expected)))
	}
	return mismatches, nil
}
