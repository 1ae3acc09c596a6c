package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/gateway"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const staleWithdrawalRecoveryWindow = 2 * time.Minute

const noteWithdrawalReversal = "withdrawal reversal"

// WithdrawalService moves wallet funds out to an external payout gateway.
type WithdrawalService struct {
	store   QueryStore
	gateway gateway.Gateway
	ledger  *LedgerService
	events  EventPublisher
	retries int
}

func NewWithdrawalService(store QueryStore, gw gateway.Gateway) *WithdrawalService {
	return &WithdrawalService{
		store:   store,
		gateway: gw,
		ledger:  NewLedgerService(store),
		retries: defaultConflictRetries,
	}
}

func (s *WithdrawalService) WithEvents(p EventPublisher) *WithdrawalService {
	s.events = p
	return s
}

func (s *WithdrawalService) WithConflictRetries(n int) *WithdrawalService {
	if n > 0 {
		s.retries = n
	}
	return s
}

type WithdrawalRequest struct {
	AccountID    uuid.UUID
	Amount       domain.Money
	Destination  string
	OperationKey string
}

func withdrawalOperationKey(accountID uuid.UUID, key string) string {
	return fmt.Sprintf("%s:%s:%s", domain.TxTypeWithdrawal, accountID, key)
}

// RequestWithdrawal debits the wallet and queues a pending payout in one unit.
// The gateway is called later by the withdrawal worker.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	withdrawal, err := s.requestWithdrawal(ctx, req)
	recordOutcome(domain.TxTypeWithdrawal, err)
	return withdrawal, err
}

func (s *WithdrawalService) requestWithdrawal(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" {
		return nil, fmt.Errorf("%w: destination is required", domain.ErrValidation)
	}
	req.OperationKey = strings.TrimSpace(req.OperationKey)
	if req.OperationKey == "" {
		return nil, fmt.Errorf("%w: operation key is required", domain.ErrValidation)
	}
	opKey := withdrawalOperationKey(req.AccountID, req.OperationKey)

	if existing, err := s.ledger.FindByOperationKey(ctx, opKey); err != nil {
		return nil, err
	} else if existing != nil {
		return s.replayWithdrawal(ctx, existing, req)
	}

	var (
		withdrawal models.Withdrawal
		entry      models.Transaction
	)
	err := retryOnConflict(ctx, domain.TxTypeWithdrawal, s.retries, func() error {
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			locked, err := lockAccounts(ctx, qtx, req.AccountID)
			if err != nil {
				return err
			}
			account := locked[req.AccountID]
			if !account.IsActive {
				return domain.ErrAccountInactive
			}
			if account.Balance < req.Amount {
				return domain.ErrInsufficientFunds
			}
			if err := Debit(ctx, qtx, account.ID, req.Amount); err != nil {
				return err
			}

			var created bool
			entry, created, err = s.ledger.Append(ctx, qtx, LedgerEntry{
				OperationKey: opKey,
				From:         &account.ID,
				Amount:       req.Amount,
				Type:         domain.TxTypeWithdrawal,
				Status:       domain.TxStatusCompleted,
			})
			if err != nil {
				return err
			}
			if !created {
				return errReplayed
			}

			withdrawal, err = qtx.CreateWithdrawal(ctx, repository.CreateWithdrawalParams{
				ID:            uuid.New(),
				TransactionID: entry.ID,
				AccountID:     account.ID,
				Amount:        req.Amount,
				Destination:   req.Destination,
			})
			if err != nil {
				return fmt.Errorf("create withdrawal: %w", err)
			}
			return nil
		})
	})
	if errors.Is(err, errReplayed) {
		return s.replayWithdrawal(ctx, &entry, req)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("withdrawal queued",
		zap.String("withdrawal_id", withdrawal.ID.String()),
		zap.String("account_id", withdrawal.AccountID.String()),
		zap.Int64("amount", int64(withdrawal.Amount)))
	publish(s.events, domain.EventWalletWithdrawal, withdrawal.AccountID.String(), withdrawal)
	return &withdrawal, nil
}

func (s *WithdrawalService) replayWithdrawal(ctx context.Context, existing *models.Transaction, req WithdrawalRequest) (*models.Withdrawal, error) {
	if existing.Type != domain.TxTypeWithdrawal || existing.From == nil || *existing.From != req.AccountID || existing.Amount != req.Amount {
		return nil, fmt.Errorf("%w: operation key was already used for a different withdrawal", domain.ErrValidation)
	}
	withdrawal, err := s.store.Queries().GetWithdrawalByTransactionID(ctx, existing.ID)
	if err != nil {
		return nil, notFound(err, "withdrawal")
	}
	return &withdrawal, nil
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	withdrawal, err := s.store.Queries().GetWithdrawal(ctx, id)
	if err != nil {
		return nil, notFound(err, "withdrawal")
	}
	return &withdrawal, nil
}

// ProcessWithdrawals claims up to batchSize pending withdrawals, calls the gateway for each
// and settles the outcome. Safe to run from several instances.
func (s *WithdrawalService) ProcessWithdrawals(ctx context.Context, batchSize int32) error {
	queries := s.store.Queries()

	requeued, err := queries.RequeueStaleWithdrawals(ctx, time.Now().Add(-staleWithdrawalRecoveryWindow))
	if err != nil {
		return fmt.Errorf("requeue stale withdrawals: %w", err)
	}
	if requeued > 0 {
		zap.L().Warn("recovered stale processing withdrawals", zap.Int64("count", requeued))
	}

	claimed, err := queries.ClaimPendingWithdrawals(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("claim pending withdrawals: %w", err)
	}

	for i, w := range claimed {
		if err := ctx.Err(); err != nil {
			s.requeue(claimed[i:])
			return err
		}

		ref, err := s.gateway.SendPayout(ctx, w.ID.String(), w.Destination, w.Amount)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.requeue(claimed[i:])
				return err
			}
			if failErr := s.failWithdrawal(ctx, w, err.Error()); failErr != nil {
				zap.L().Error("handle withdrawal failure failed", zap.Error(failErr), zap.String("withdrawal_id", w.ID.String()))
			}
			continue
		}

		if err := s.markSent(ctx, w, ref); err != nil {
			zap.L().Error("withdrawal sent at gateway but local update failed",
				zap.Error(err),
				zap.String("withdrawal_id", w.ID.String()),
				zap.String("gateway_ref", ref))
		}
	}
	return nil
}

func (s *WithdrawalService) markSent(ctx context.Context, w models.Withdrawal, ref string) error {
	rows, err := s.store.Queries().UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
		ID:         w.ID,
		FromStatus: domain.WithdrawalStatusProcessing,
		Status:     domain.WithdrawalStatusSent,
		GatewayRef: &ref,
	})
	if err != nil {
		return fmt.Errorf("mark withdrawal sent: %w", err)
	}
	if err := requireExactlyOne(rows, "mark withdrawal sent"); err != nil {
		return err
	}
	w.Status = domain.WithdrawalStatusSent
	w.GatewayRef = &ref
	zap.L().Info("withdrawal sent", zap.String("withdrawal_id", w.ID.String()), zap.String("gateway_ref", ref))
	publish(s.events, domain.EventWithdrawalSent, w.AccountID.String(), w)
	return nil
}

// failWithdrawal refunds the account, records the compensating deposit and the failed
// withdrawal entry, and marks the row failed. A row no longer processing is left alone.
func (s *WithdrawalService) failWithdrawal(ctx context.Context, w models.Withdrawal, reason string) error {
	applied := false
	err := retryOnConflict(ctx, "withdrawal_failure", s.retries, func() error {
		applied = false
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			rows, err := qtx.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
				ID:         w.ID,
				FromStatus: domain.WithdrawalStatusProcessing,
				Status:     domain.WithdrawalStatusFailed,
			})
			if err != nil {
				return fmt.Errorf("mark withdrawal failed: %w", err)
			}
			if rows == 0 {
				return nil
			}

			rows, err = qtx.RefundAccount(ctx, repository.AdjustBalanceParams{ID: w.AccountID, Amount: w.Amount})
			if err != nil {
				return fmt.Errorf("refund account: %w", err)
			}
			if err := requireExactlyOne(rows, "refund withdrawal"); err != nil {
				return err
			}

			if _, _, err := s.ledger.Append(ctx, qtx, LedgerEntry{
				OperationKey: fmt.Sprintf("withdrawal_reversal:%s", w.ID),
				To:           &w.AccountID,
				Amount:       w.Amount,
				Type:         domain.TxTypeDeposit,
				Status:       domain.TxStatusCompleted,
				Note:         noteWithdrawalReversal,
			}); err != nil {
				return err
			}
			if _, _, err := s.ledger.Append(ctx, qtx, LedgerEntry{
				OperationKey: fmt.Sprintf("withdrawal_failed:%s", w.ID),
				From:         &w.AccountID,
				Amount:       w.Amount,
				Type:         domain.TxTypeWithdrawal,
				Status:       domain.TxStatusFailed,
				Note:         reason,
			}); err != nil {
				return err
			}
			applied = true
			return nil
		})
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	w.Status = domain.WithdrawalStatusFailed
	zap.L().Warn("withdrawal failed and refunded", zap.String("withdrawal_id", w.ID.String()), zap.String("reason", reason))
	publish(s.events, domain.EventWithdrawalFailed, w.AccountID.String(), w)
	return nil
}

// requeue returns claimed rows to pending after cancellation. It uses a fresh context
// because ctx is already done.
func (s *WithdrawalService) requeue(withdrawals []models.Withdrawal) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries := s.store.Queries()
	for _, w := range withdrawals {
		if _, err := queries.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
			ID:         w.ID,
			FromStatus: domain.WithdrawalStatusProcessing,
			Status:     domain.WithdrawalStatusPending,
		}); err != nil {
			zap.L().Error("requeue withdrawal failed", zap.Error(err), zap.String("withdrawal_id", w.ID.String()))
		}
	}
}
