package memstore

import (
	"context"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// allTransactions returns committed entries followed by this unit's staged ones, oldest first.
func (t *tx) allTransactions() []models.Transaction {
	t.s.mu.RLock()
	out := make([]models.Transaction, 0, len(t.s.transactions)+len(t.transactions))
	out = append(out, t.s.transactions...)
	t.s.mu.RUnlock()
	return append(out, t.transactions...)
}

func (t *tx) transactionByKey(key string) (models.Transaction, bool) {
	for _, entry := range t.transactions {
		if entry.OperationKey == key {
			return entry, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	idx, ok := t.s.txByKey[key]
	if !ok {
		return models.Transaction{}, false
	}
	return t.s.transactions[idx], true
}

// InsertTransaction holds the operation key lock until the unit ends, so a concurrent
// insert of the same key waits and then observes the committed entry.
func (t *tx) InsertTransaction(ctx context.Context, arg repository.InsertTransactionParams) (models.Transaction, error) {
	if err := t.lock(ctx, operationKey(arg.OperationKey)); err != nil {
		return models.Transaction{}, err
	}
	if _, exists := t.transactionByKey(arg.OperationKey); exists {
		return models.Transaction{}, pgx.ErrNoRows
	}
	if arg.Amount <= 0 {
		return models.Transaction{}, checkViolation("transactions_amount_check")
	}
	if arg.FromAccountID == nil && arg.ToAccountID == nil {
		return models.Transaction{}, checkViolation("transactions_has_party")
	}

	entry := models.Transaction{
		ID:           arg.ID,
		OperationKey: arg.OperationKey,
		From:         arg.FromAccountID,
		To:           arg.ToAccountID,
		Amount:       arg.Amount,
		Type:         arg.Type,
		Status:       arg.Status,
		RelatedOrder: arg.RelatedOrderID,
		Note:         arg.Note,
		CreatedAt:    t.s.now(),
	}
	t.transactions = append(t.transactions, entry)
	return entry, nil
}

func (t *tx) GetTransactionByOperationKey(_ context.Context, key string) (models.Transaction, error) {
	entry, ok := t.transactionByKey(key)
	if !ok {
		return models.Transaction{}, pgx.ErrNoRows
	}
	return entry, nil
}

// accountEntries returns entries touching accountID, newest first.
func (t *tx) accountEntries(accountID uuid.UUID) []models.Transaction {
	all := t.allTransactions()
	out := []models.Transaction{}
	for i := len(all) - 1; i >= 0; i-- {
		entry := all[i]
		if (entry.From != nil && *entry.From == accountID) || (entry.To != nil && *entry.To == accountID) {
			out = append(out, entry)
		}
	}
	return out
}

func (t *tx) ListTransactionsByAccount(_ context.Context, arg repository.ListTransactionsByAccountParams) ([]models.Transaction, error) {
	return page(t.accountEntries(arg.AccountID), arg.Limit, arg.Offset), nil
}

func (t *tx) CountTransactionsByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	return int64(len(t.accountEntries(accountID))), nil
}

func (t *tx) ListTransactionsByOrder(_ context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	out := []models.Transaction{}
	for _, entry := range t.allTransactions() {
		if entry.RelatedOrder != nil && *entry.RelatedOrder == orderID {
			out = append(out, entry)
		}
	}
	return out, nil
}
