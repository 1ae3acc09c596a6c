package models

import (
	"encoding/json"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a wallet holder. Fulfillers carry the originator they work for.
type Account struct {
	ID                 uuid.UUID    `json:"id"`
	Role               string       `json:"role"`
	Balance            domain.Money `json:"balance"`
	OpeningBalance     domain.Money `json:"-"`
	IsActive           bool         `json:"is_active"`
	LinkedOriginatorID *uuid.UUID   `json:"linked_originator_id,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

type OrderItem struct {
	Name     string       `json:"name"`
	Quantity int          `json:"quantity"`
	Price    domain.Money `json:"price"`
}

// Order is one delivery/pickup job. PickupCode is empty once consumed.
type Order struct {
	ID            uuid.UUID    `json:"id"`
	CreatedBy     uuid.UUID    `json:"created_by"`
	AssignedTo    uuid.UUID    `json:"assigned_to"`
	Amount        domain.Money `json:"amount"`
	CommissionBps int32        `json:"-"`
	Items         []OrderItem  `json:"items"`
	PickupCode    string       `json:"pickup_code,omitempty"`
	Status        string       `json:"status"`
	ProofRef      *string      `json:"proof_ref,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	CompletedBy   *uuid.UUID   `json:"completed_by,omitempty"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// CommissionRate returns the fractional commission (0.1 for 1000 bps).
func (o Order) CommissionRate() decimal.Decimal {
	return domain.BpsToCommissionRate(o.CommissionBps)
}

func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		CommissionRate decimal.Decimal `json:"commission_rate"`
	}{order: order(o), CommissionRate: o.CommissionRate()})
}

// Transaction is an immutable ledger entry. From is nil for deposits, To is nil for withdrawals.
type Transaction struct {
	ID           uuid.UUID    `json:"id"`
	OperationKey string       `json:"operation_key"`
	From         *uuid.UUID   `json:"from,omitempty"`
	To           *uuid.UUID   `json:"to,omitempty"`
	Amount       domain.Money `json:"amount"`
	Type         string       `json:"type"`
	Status       string       `json:"status"`
	RelatedOrder *uuid.UUID   `json:"related_order,omitempty"`
	Note         string       `json:"note,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Withdrawal tracks the external payout behind a withdrawal ledger entry.
type Withdrawal struct {
	ID            uuid.UUID    `json:"id"`
	TransactionID uuid.UUID    `json:"transaction_id"`
	AccountID     uuid.UUID    `json:"account_id"`
	Amount        domain.Money `json:"amount"`
	Destination   string       `json:"destination"`
	Status        string       `json:"status"`
	GatewayRef    *string      `json:"gateway_ref,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// AuditLog records one state transition of an entity.
type AuditLog struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  *string    `json:"prev_state,omitempty"`
	NextState  *string    `json:"next_state,omitempty"`
	Metadata   []byte     `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	Pages    int   `json:"pages"`
	PageSize int   `json:"page_size"`
}

func NewPagination(total int64, page, pageSize int) Pagination {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{Total: total, Page: page, Pages: pages, PageSize: pageSize}
}

type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Pagination   Pagination    `json:"pagination"`
}

type OrderPage struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// PartnerSummary is the originator-facing view of a linked fulfiller.
type PartnerSummary struct {
	ID       uuid.UUID    `json:"id"`
	IsActive bool         `json:"is_active"`
	Balance  domain.Money `json:"balance"`
}

type Dashboard struct {
	Balance         domain.Money     `json:"balance"`
	Partners        []PartnerSummary `json:"partners"`
	TotalOrders     int64            `json:"total_orders"`
	PendingOrders   int64            `json:"pending_orders"`
	CompletedOrders int64            `json:"completed_orders"`
	CancelledOrders int64            `json:"cancelled_orders"`
}

// BalanceMismatch is an account whose stored balance disagrees with its ledger.
type BalanceMismatch struct {
	AccountID uuid.UUID    `json:"account_id"`
	Balance   domain.Money `json:"balance"`
	Expected  domain.Money `json:"expected"`
}
