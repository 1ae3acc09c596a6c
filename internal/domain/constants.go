package domain

// Account roles. Values match the role claim issued by the auth collaborator.
const (
	RoleOriginator = "mcp"
	RoleFulfiller  = "partner"
	RoleAdmin      = "admin"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"

	TxTypeTransfer        = "transfer"
	TxTypeOrderSettlement = "order_settlement"
	TxTypeWithdrawal      = "withdrawal"
	TxTypeDeposit         = "deposit"

	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"

	// Withdrawal statuses
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusSent       = "sent"
	WithdrawalStatusFailed     = "failed"
)

// DefaultCommissionBps is the commission retained when an order does not specify one (10%).
const DefaultCommissionBps int32 = 1000

// Event names published after commit.
const (
	EventOrderCreated     = "order.created"
	EventOrderCompleted   = "order.completed"
	EventOrderCancelled   = "order.cancelled"
	EventWalletTransfer   = "wallet.transfer"
	EventWalletDeposit    = "wallet.deposit"
	EventWalletWithdrawal = "wallet.withdrawal"
	EventWithdrawalFailed = "wallet.withdrawal_failed"
	EventWithdrawalSent   = "wallet.withdrawal_sent"
)

// IsValidRole reports whether role can own a wallet account.
func IsValidRole(role string) bool {
	return role == RoleOriginator || role == RoleFulfiller
}
