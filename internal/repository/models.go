package repository

import (
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/google/uuid"
)

type CreateAccountParams struct {
	ID                 uuid.UUID
	Role               string
	OpeningBalance     domain.Money
	LinkedOriginatorID *uuid.UUID
}

type AdjustBalanceParams struct {
	ID     uuid.UUID
	Amount domain.Money
}

type SetAccountActiveParams struct {
	ID       uuid.UUID
	IsActive bool
}

type CreateOrderParams struct {
	ID            uuid.UUID
	CreatedBy     uuid.UUID
	AssignedTo    uuid.UUID
	Amount        domain.Money
	CommissionBps int32
	Items         []byte
	PickupCode    string
}

type CompleteOrderParams struct {
	ID          uuid.UUID
	CompletedBy uuid.UUID
	ProofRef    *string
}

// OrderFilter narrows ListOrders/CountOrders. Nil fields match everything.
type OrderFilter struct {
	CreatedBy  *uuid.UUID
	AssignedTo *uuid.UUID
	Status     *string
}

type ListOrdersParams struct {
	OrderFilter
	Limit  int32
	Offset int32
}

type OrderStatusCount struct {
	Status string
	Count  int64
}

type InsertTransactionParams struct {
	ID             uuid.UUID
	OperationKey   string
	FromAccountID  *uuid.UUID
	ToAccountID    *uuid.UUID
	Amount         domain.Money
	Type           string
	Status         string
	RelatedOrderID *uuid.UUID
	Note           string
}

type ListTransactionsByAccountParams struct {
	AccountID uuid.UUID
	Limit     int32
	Offset    int32
}

type CreateWithdrawalParams struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	Amount        domain.Money
	Destination   string
}

type UpdateWithdrawalStatusParams struct {
	ID         uuid.UUID
	FromStatus string
	Status     string
	GatewayRef *string
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

// IdempotencyKey is a stored HTTP response keyed by the client's Idempotency-Key.
type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
}
