package memstore

import (
	"context"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (t *tx) withdrawal(id uuid.UUID) (models.Withdrawal, bool) {
	if w, ok := t.withdrawals[id]; ok {
		return w, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	w, ok := t.s.withdrawals[id]
	return w, ok
}

func (t *tx) withdrawalQueue() []uuid.UUID {
	t.s.mu.RLock()
	ids := append([]uuid.UUID(nil), t.s.withdrawalQ...)
	t.s.mu.RUnlock()
	return append(ids, t.newWithdrawals...)
}

func (t *tx) CreateWithdrawal(ctx context.Context, arg repository.CreateWithdrawalParams) (models.Withdrawal, error) {
	if err := t.lock(ctx, withdrawalKey(arg.ID)); err != nil {
		return models.Withdrawal{}, err
	}
	if _, exists := t.withdrawal(arg.ID); exists {
		return models.Withdrawal{}, uniqueViolation("withdrawals_pkey")
	}
	now := t.s.now()
	w := models.Withdrawal{
		ID:            arg.ID,
		TransactionID: arg.TransactionID,
		AccountID:     arg.AccountID,
		Amount:        arg.Amount,
		Destination:   arg.Destination,
		Status:        domain.WithdrawalStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.withdrawals[w.ID] = w
	t.newWithdrawals = append(t.newWithdrawals, w.ID)
	return w, nil
}

func (t *tx) GetWithdrawal(_ context.Context, id uuid.UUID) (models.Withdrawal, error) {
	w, ok := t.withdrawal(id)
	if !ok {
		return models.Withdrawal{}, pgx.ErrNoRows
	}
	return w, nil
}

func (t *tx) GetWithdrawalByTransactionID(_ context.Context, transactionID uuid.UUID) (models.Withdrawal, error) {
	for _, id := range t.withdrawalQueue() {
		if w, ok := t.withdrawal(id); ok && w.TransactionID == transactionID {
			return w, nil
		}
	}
	return models.Withdrawal{}, pgx.ErrNoRows
}

// ClaimPendingWithdrawals skips rows locked by other units.
func (t *tx) ClaimPendingWithdrawals(_ context.Context, limit int32) ([]models.Withdrawal, error) {
	out := []models.Withdrawal{}
	for _, id := range t.withdrawalQueue() {
		if int32(len(out)) >= limit {
			break
		}
		if w, ok := t.withdrawal(id); !ok || w.Status != domain.WithdrawalStatusPending {
			continue
		}
		if !t.tryLock(withdrawalKey(id)) {
			continue
		}
		w, _ := t.withdrawal(id)
		if w.Status != domain.WithdrawalStatusPending {
			continue
		}
		w.Status = domain.WithdrawalStatusProcessing
		w.UpdatedAt = t.s.now()
		t.withdrawals[id] = w
		out = append(out, w)
	}
	return out, nil
}

func (t *tx) UpdateWithdrawalStatus(ctx context.Context, arg repository.UpdateWithdrawalStatusParams) (int64, error) {
	if err := t.lock(ctx, withdrawalKey(arg.ID)); err != nil {
		return 0, err
	}
	w, ok := t.withdrawal(arg.ID)
	if !ok || w.Status != arg.FromStatus {
		return 0, nil
	}
	w.Status = arg.Status
	if arg.GatewayRef != nil {
		ref := *arg.GatewayRef
		w.GatewayRef = &ref
	}
	w.UpdatedAt = t.s.now()
	t.withdrawals[w.ID] = w
	return 1, nil
}

func (t *tx) RequeueStaleWithdrawals(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	for _, id := range t.withdrawalQueue() {
		if w, ok := t.withdrawal(id); !ok || w.Status != domain.WithdrawalStatusProcessing || !w.UpdatedAt.Before(olderThan) {
			continue
		}
		if err := t.lock(ctx, withdrawalKey(id)); err != nil {
			return n, err
		}
		w, _ := t.withdrawal(id)
		if w.Status != domain.WithdrawalStatusProcessing || !w.UpdatedAt.Before(olderThan) {
			continue
		}
		w.Status = domain.WithdrawalStatusPending
		w.UpdatedAt = t.s.now()
		t.withdrawals[id] = w
		n++
	}
	return n, nil
}
