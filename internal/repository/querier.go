package repository

import (
	"context"
	"time"

	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
)

// Querier is the data access contract shared by the Postgres and in-memory backends.
// Single-row lookups return pgx.ErrNoRows when nothing matches. Balance adjustments and
// status updates return the number of affected rows so callers can require exactly one.
type Querier interface {
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error)
	// DebitAccount only matches an active account holding at least arg.Amount.
	DebitAccount(ctx context.Context, arg AdjustBalanceParams) (int64, error)
	// CreditAccount only matches an active account.
	CreditAccount(ctx context.Context, arg AdjustBalanceParams) (int64, error)
	// RefundAccount credits regardless of the active flag.
	RefundAccount(ctx context.Context, arg AdjustBalanceParams) (int64, error)
	SetAccountActive(ctx context.Context, arg SetAccountActiveParams) (models.Account, error)
	ListLinkedFulfillers(ctx context.Context, originatorID uuid.UUID) ([]models.Account, error)
	ListBalanceMismatches(ctx context.Context) ([]models.BalanceMismatch, error)

	CreateOrder(ctx context.Context, arg CreateOrderParams) (models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (models.Order, error)
	// CompleteOrder and CancelOrder only match pending orders.
	CompleteOrder(ctx context.Context, arg CompleteOrderParams) (models.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	ListOrders(ctx context.Context, arg ListOrdersParams) ([]models.Order, error)
	CountOrders(ctx context.Context, arg OrderFilter) (int64, error)
	CountOrdersByStatus(ctx context.Context, createdBy uuid.UUID) ([]OrderStatusCount, error)

	// InsertTransaction returns pgx.ErrNoRows when the operation key already exists.
	InsertTransaction(ctx context.Context, arg InsertTransactionParams) (models.Transaction, error)
	GetTransactionByOperationKey(ctx context.Context, operationKey string) (models.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, arg ListTransactionsByAccountParams) ([]models.Transaction, error)
	CountTransactionsByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)

	CreateWithdrawal(ctx context.Context, arg CreateWithdrawalParams) (models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)
	GetWithdrawalByTransactionID(ctx context.Context, transactionID uuid.UUID) (models.Withdrawal, error)
	ClaimPendingWithdrawals(ctx context.Context, limit int32) ([]models.Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error)
	RequeueStaleWithdrawals(ctx context.Context, olderThan time.Time) (int64, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (models.AuditLog, error)
	ListAuditLogByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error)

	ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error)
	GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error)
	FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}
