package memstore

import (
	"context"
	"time"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
)

// autocommit runs each call in its own single-statement unit.
type autocommit struct {
	s *Store
}

func run[T any](s *Store, fn func(t *tx) (T, error)) (T, error) {
	t := s.begin()
	defer t.rollback()
	out, err := fn(t)
	if err != nil {
		var zero T
		return zero, err
	}
	t.commit()
	return out, nil
}

func (a autocommit) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	return run(a.s, func(t *tx) (models.Account, error) { return t.CreateAccount(ctx, arg) })
}

func (a autocommit) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return run(a.s, func(t *tx) (models.Account, error) { return t.GetAccount(ctx, id) })
}

func (a autocommit) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return run(a.s, func(t *tx) (models.Account, error) { return t.GetAccountForUpdate(ctx, id) })
}

func (a autocommit) DebitAccount(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.DebitAccount(ctx, arg) })
}

func (a autocommit) CreditAccount(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.CreditAccount(ctx, arg) })
}

func (a autocommit) RefundAccount(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.RefundAccount(ctx, arg) })
}

func (a autocommit) SetAccountActive(ctx context.Context, arg repository.SetAccountActiveParams) (models.Account, error) {
	return run(a.s, func(t *tx) (models.Account, error) { return t.SetAccountActive(ctx, arg) })
}

func (a autocommit) ListLinkedFulfillers(ctx context.Context, originatorID uuid.UUID) ([]models.Account, error) {
	return run(a.s, func(t *tx) ([]models.Account, error) { return t.ListLinkedFulfillers(ctx, originatorID) })
}

func (a autocommit) ListBalanceMismatches(ctx context.Context) ([]models.BalanceMismatch, error) {
	return run(a.s, func(t *tx) ([]models.BalanceMismatch, error) { return t.ListBalanceMismatches(ctx) })
}

func (a autocommit) CreateOrder(ctx context.Context, arg repository.CreateOrderParams) (models.Order, error) {
	return run(a.s, func(t *tx) (models.Order, error) { return t.CreateOrder(ctx, arg) })
}

func (a autocommit) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return run(a.s, func(t *tx) (models.Order, error) { return t.GetOrder(ctx, id) })
}

func (a autocommit) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return run(a.s, func(t *tx) (models.Order, error) { return t.GetOrderForUpdate(ctx, id) })
}

func (a autocommit) CompleteOrder(ctx context.Context, arg repository.CompleteOrderParams) (models.Order, error) {
	return run(a.s, func(t *tx) (models.Order, error) { return t.CompleteOrder(ctx, arg) })
}

func (a autocommit) CancelOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return run(a.s, func(t *tx) (models.Order, error) { return t.CancelOrder(ctx, id) })
}

func (a autocommit) ListOrders(ctx context.Context, arg repository.ListOrdersParams) ([]models.Order, error) {
	return run(a.s, func(t *tx) ([]models.Order, error) { return t.ListOrders(ctx, arg) })
}

func (a autocommit) CountOrders(ctx context.Context, arg repository.OrderFilter) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.CountOrders(ctx, arg) })
}

func (a autocommit) CountOrdersByStatus(ctx context.Context, createdBy uuid.UUID) ([]repository.OrderStatusCount, error) {
	return run(a.s, func(t *tx) ([]repository.OrderStatusCount, error) { return t.CountOrdersByStatus(ctx, createdBy) })
}

func (a autocommit) InsertTransaction(ctx context.Context, arg repository.InsertTransactionParams) (models.Transaction, error) {
	return run(a.s, func(t *tx) (models.Transaction, error) { return t.InsertTransaction(ctx, arg) })
}

func (a autocommit) GetTransactionByOperationKey(ctx context.Context, key string) (models.Transaction, error) {
	return run(a.s, func(t *tx) (models.Transaction, error) { return t.GetTransactionByOperationKey(ctx, key) })
}

func (a autocommit) ListTransactionsByAccount(ctx context.Context, arg repository.ListTransactionsByAccountParams) ([]models.Transaction, error) {
	return run(a.s, func(t *tx) ([]models.Transaction, error) { return t.ListTransactionsByAccount(ctx, arg) })
}

func (a autocommit) CountTransactionsByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.CountTransactionsByAccount(ctx, accountID) })
}

func (a autocommit) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	return run(a.s, func(t *tx) ([]models.Transaction, error) { return t.ListTransactionsByOrder(ctx, orderID) })
}

func (a autocommit) CreateWithdrawal(ctx context.Context, arg repository.CreateWithdrawalParams) (models.Withdrawal, error) {
	return run(a.s, func(t *tx) (models.Withdrawal, error) { return t.CreateWithdrawal(ctx, arg) })
}

func (a autocommit) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return run(a.s, func(t *tx) (models.Withdrawal, error) { return t.GetWithdrawal(ctx, id) })
}

func (a autocommit) GetWithdrawalByTransactionID(ctx context.Context, transactionID uuid.UUID) (models.Withdrawal, error) {
	return run(a.s, func(t *tx) (models.Withdrawal, error) { return t.GetWithdrawalByTransactionID(ctx, transactionID) })
}

func (a autocommit) ClaimPendingWithdrawals(ctx context.Context, limit int32) ([]models.Withdrawal, error) {
	return run(a.s, func(t *tx) ([]models.Withdrawal, error) { return t.ClaimPendingWithdrawals(ctx, limit) })
}

func (a autocommit) UpdateWithdrawalStatus(ctx context.Context, arg repository.UpdateWithdrawalStatusParams) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.UpdateWithdrawalStatus(ctx, arg) })
}

func (a autocommit) RequeueStaleWithdrawals(ctx context.Context, olderThan time.Time) (int64, error) {
	return run(a.s, func(t *tx) (int64, error) { return t.RequeueStaleWithdrawals(ctx, olderThan) })
}

func (a autocommit) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (models.AuditLog, error) {
	return run(a.s, func(t *tx) (models.AuditLog, error) { return t.InsertAuditLog(ctx, arg) })
}

func (a autocommit) ListAuditLogByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	return run(a.s, func(t *tx) ([]models.AuditLog, error) { return t.ListAuditLogByEntity(ctx, entityType, entityID) })
}

func (a autocommit) ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	return run(a.s, func(t *tx) (repository.IdempotencyKey, error) { return t.ReserveIdempotencyKey(ctx, arg) })
}

func (a autocommit) GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error) {
	return run(a.s, func(t *tx) (repository.IdempotencyKey, error) { return t.GetIdempotencyKey(ctx, key) })
}

func (a autocommit) FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	return run(a.s, func(t *tx) (repository.IdempotencyKey, error) { return t.FinalizeIdempotencyKey(ctx, arg) })
}

func (a autocommit) DeleteIdempotencyKey(ctx context.Context, key string) error {
	_, err := run(a.s, func(t *tx) (struct{}, error) { return struct{}{}, t.DeleteIdempotencyKey(ctx, key) })
	return err
}

var _ repository.Querier = autocommit{}
