package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/observability"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultConflictRetries = 3

// errReplayed aborts a unit whose operation key was committed by a concurrent caller.
var errReplayed = errors.New("operation already applied")

type SettlementConfig struct {
	DefaultCommissionBps int32
	PickupCodeDigits     int
	ConflictRetries      int
}

// SettlementService is the only component that mutates more than one entity per call.
type SettlementService struct {
	store    QueryStore
	ledger   *LedgerService
	audit    *AuditService
	attempts AttemptLimiter
	events   EventPublisher
	cfg      SettlementConfig
}

func NewSettlementService(store QueryStore, cfg SettlementConfig) *SettlementService {
	if cfg.DefaultCommissionBps == 0 {
		cfg.DefaultCommissionBps = domain.DefaultCommissionBps
	}
	if cfg.PickupCodeDigits == 0 {
		cfg.PickupCodeDigits = DefaultPickupCodeDigits
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = defaultConflictRetries
	}
	return &SettlementService{
		store:    store,
		ledger:   NewLedgerService(store),
		audit:    NewAuditService(),
		attempts: NoopAttemptLimiter(),
		cfg:      cfg,
	}
}

// WithAttemptLimiter throttles wrong pickup codes per order.
func (s *SettlementService) WithAttemptLimiter(limiter AttemptLimiter) *SettlementService {
	if limiter != nil {
		s.attempts = limiter
	}
	return s
}

// WithEvents publishes committed changes to p.
func (s *SettlementService) WithEvents(p EventPublisher) *SettlementService {
	s.events = p
	return s
}

type TransferRequest struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        domain.Money
	Note          string
	OperationKey  string
}

func transferOperationKey(from uuid.UUID, key string) string {
	return fmt.Sprintf("%s:%s:%s", domain.TxTypeTransfer, from, key)
}

// Transfer moves amount between two wallets in one unit. A repeated operation key with the
// same parameters returns the original entry without moving money again.
func (s *SettlementService) Transfer(ctx context.Context, req TransferRequest) (*models.Transaction, error) {
	entry, err := s.transfer(ctx, req)
	recordOutcome(domain.TxTypeTransfer, err)
	return entry, err
}

func (s *SettlementService) transfer(ctx context.Context, req TransferRequest) (*models.Transaction, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", domain.ErrValidation)
	}
	req.OperationKey = strings.TrimSpace(req.OperationKey)
	if req.OperationKey == "" {
		return nil, fmt.Errorf("%w: operation key is required", domain.ErrValidation)
	}
	opKey := transferOperationKey(req.FromAccountID, req.OperationKey)

	if existing, err := s.ledger.FindByOperationKey(ctx, opKey); err != nil {
		return nil, err
	} else if existing != nil {
		return matchTransferReplay(existing, req)
	}

	var entry models.Transaction
	err := retryOnConflict(ctx, domain.TxTypeTransfer, s.cfg.ConflictRetries, func() error {
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			locked, err := lockAccounts(ctx, qtx, req.FromAccountID, req.ToAccountID)
			if err != nil {
				return err
			}
			from, to := locked[req.FromAccountID], locked[req.ToAccountID]
			if !from.IsActive || !to.IsActive {
				return domain.ErrAccountInactive
			}
			if from.Balance < req.Amount {
				return domain.ErrInsufficientFunds
			}

			if err := Debit(ctx, qtx, from.ID, req.Amount); err != nil {
				return err
			}
			if err := Credit(ctx, qtx, to.ID, req.Amount); err != nil {
				return err
			}
			var created bool
			entry, created, err = s.ledger.Append(ctx, qtx, LedgerEntry{
				OperationKey: opKey,
				From:         &from.ID,
				To:           &to.ID,
				Amount:       req.Amount,
				Type:         domain.TxTypeTransfer,
				Status:       domain.TxStatusCompleted,
				Note:         req.Note,
			})
			if err != nil {
				return err
			}
			if !created {
				return errReplayed
			}
			return nil
		})
	})
	if errors.Is(err, errReplayed) {
		return matchTransferReplay(&entry, req)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("transfer completed",
		zap.String("transaction_id", entry.ID.String()),
		zap.String("from", req.FromAccountID.String()),
		zap.String("to", req.ToAccountID.String()),
		zap.Int64("amount", int64(req.Amount)))
	publish(s.events, domain.EventWalletTransfer, req.FromAccountID.String(), entry)
	return &entry, nil
}

func matchTransferReplay(existing *models.Transaction, req TransferRequest) (*models.Transaction, error) {
	if existing.Type != domain.TxTypeTransfer ||
		existing.From == nil || *existing.From != req.FromAccountID ||
		existing.To == nil || *existing.To != req.ToAccountID ||
		existing.Amount != req.Amount {
		return nil, fmt.Errorf("%w: operation key was already used for a different transfer", domain.ErrValidation)
	}
	return existing, nil
}

type CreateOrderRequest struct {
	ActorID        uuid.UUID
	AssignedTo     uuid.UUID
	Amount         domain.Money
	CommissionRate *decimal.Decimal
	Items          []models.OrderItem
}

// CreateOrder opens a pending order from an active originator to one of its active fulfillers.
func (s *SettlementService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	order, err := s.createOrder(ctx, req)
	recordOutcome("create_order", err)
	return order, err
}

func (s *SettlementService) createOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	commissionBps := s.cfg.DefaultCommissionBps
	if req.CommissionRate != nil {
		bps, err := domain.CommissionRateToBps(*req.CommissionRate)
		if err != nil {
			return nil, err
		}
		commissionBps = bps
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	items, err := json.Marshal(req.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	var order models.Order
	err = retryOnConflict(ctx, "create_order", s.cfg.ConflictRetries, func() error {
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			locked, err := lockAccounts(ctx, qtx, req.ActorID, req.AssignedTo)
			if err != nil {
				return err
			}
			actor, assignee := locked[req.ActorID], locked[req.AssignedTo]
			if actor.Role != domain.RoleOriginator {
				return fmt.Errorf("%w: only originators create orders", domain.ErrForbidden)
			}
			if !actor.IsActive {
				return domain.ErrAccountInactive
			}
			if assignee.Role != domain.RoleFulfiller {
				return fmt.Errorf("%w: orders must be assigned to a partner", domain.ErrValidation)
			}
			if assignee.LinkedOriginatorID == nil || *assignee.LinkedOriginatorID != actor.ID {
				return fmt.Errorf("%w: partner is not linked to this originator", domain.ErrValidation)
			}
			if !assignee.IsActive {
				return domain.ErrAccountInactive
			}

			code, err := GeneratePickupCode(s.cfg.PickupCodeDigits)
			if err != nil {
				return err
			}
			order, err = qtx.CreateOrder(ctx, repository.CreateOrderParams{
				ID:            uuid.New(),
				CreatedBy:     actor.ID,
				AssignedTo:    assignee.ID,
				Amount:        req.Amount,
				CommissionBps: commissionBps,
				Items:         items,
				PickupCode:    code,
			})
			if err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			return s.audit.Write(ctx, qtx, entityOrder, order.ID, &actor.ID, "created", "", order.Status, nil)
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("created_by", order.CreatedBy.String()),
		zap.String("assigned_to", order.AssignedTo.String()))
	publish(s.events, domain.EventOrderCreated, order.ID.String(), orderEvent(order))
	return &order, nil
}

type CompleteOrderRequest struct {
	OrderID  uuid.UUID
	Code     string
	ProofRef string
	ActorID  uuid.UUID
}

// SettlementResult is a completed order and its settlement entry. Transaction is nil when the
// commission consumed the whole amount.
type SettlementResult struct {
	Order       models.Order        `json:"order"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

func settlementOperationKey(orderID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", domain.TxTypeOrderSettlement, orderID)
}

// CompleteOrder consumes the pickup code and credits the assignee with the order earnings.
// The order row is locked before the assignee so two completions serialize on the order.
func (s *SettlementService) CompleteOrder(ctx context.Context, req CompleteOrderRequest) (*SettlementResult, error) {
	result, err := s.completeOrder(ctx, req)
	recordOutcome("complete_order", err)
	return result, err
}

func (s *SettlementService) completeOrder(ctx context.Context, req CompleteOrderRequest) (*SettlementResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%w: pickup code is required", domain.ErrValidation)
	}

	allowed, err := s.attempts.Reserve(ctx, req.OrderID)
	if err != nil {
		zap.L().Warn("pickup attempt limiter unavailable", zap.String("order_id", req.OrderID.String()), zap.Error(err))
	}
	if !allowed {
		observability.IncrementPickupCodeRejection("throttled")
		return nil, domain.ErrTooManyAttempts
	}

	var result SettlementResult
	err = retryOnConflict(ctx, "complete_order", s.cfg.ConflictRetries, func() error {
		result = SettlementResult{}
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			current, err := qtx.GetOrderForUpdate(ctx, req.OrderID)
			if err != nil {
				return notFound(err, "order")
			}
			if current.Status != domain.OrderStatusPending {
				return fmt.Errorf("%w: order is %s", domain.ErrInvalidState, current.Status)
			}
			if !pickupCodeMatches(current.PickupCode, req.Code) {
				return domain.ErrInvalidCode
			}
			if _, err := qtx.GetAccount(ctx, req.ActorID); err != nil {
				return notFound(err, "account")
			}
			if _, err := lockAccounts(ctx, qtx, current.AssignedTo); err != nil {
				return err
			}

			completed, err := transitionOrderState(ctx, qtx, s.audit, current, orderTransition{
				next:     domain.OrderStatusCompleted,
				actorID:  req.ActorID,
				proofRef: textParam(strings.TrimSpace(req.ProofRef)),
			})
			if err != nil {
				return err
			}
			result.Order = completed

			earnings := domain.Earnings(current.Amount, current.CommissionBps)
			if earnings <= 0 {
				return nil
			}
			if err := Credit(ctx, qtx, current.AssignedTo, earnings); err != nil {
				return err
			}
			entry, created, err := s.ledger.Append(ctx, qtx, LedgerEntry{
				OperationKey: settlementOperationKey(current.ID),
				From:         &current.CreatedBy,
				To:           &current.AssignedTo,
				Amount:       earnings,
				Type:         domain.TxTypeOrderSettlement,
				Status:       domain.TxStatusCompleted,
				RelatedOrder: &current.ID,
			})
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("%w: order already has a settlement entry", domain.ErrInternal)
			}
			result.Transaction = &entry
			return nil
		})
	})
	if errors.Is(err, domain.ErrInvalidCode) {
		// The reservation stays counted against the order.
		observability.IncrementPickupCodeRejection("mismatch")
		return nil, err
	}
	if err != nil {
		if relErr := s.attempts.Release(ctx, req.OrderID); relErr != nil {
			zap.L().Warn("release pickup attempt failed", zap.String("order_id", req.OrderID.String()), zap.Error(relErr))
		}
		return nil, err
	}

	if err := s.attempts.Reset(ctx, req.OrderID); err != nil {
		zap.L().Warn("reset pickup attempts failed", zap.String("order_id", req.OrderID.String()), zap.Error(err))
	}
	zap.L().Info("order completed",
		zap.String("order_id", result.Order.ID.String()),
		zap.String("completed_by", req.ActorID.String()))
	publish(s.events, domain.EventOrderCompleted, result.Order.ID.String(), orderEvent(result.Order))
	return &result, nil
}

// CancelOrder closes a pending order without any balance effect. Only the creator or an
// admin may cancel.
func (s *SettlementService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.cancelOrder(ctx, orderID, actor)
	recordOutcome("cancel_order", err)
	return order, err
}

func (s *SettlementService) cancelOrder(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	var cancelled models.Order
	err := retryOnConflict(ctx, "cancel_order", s.cfg.ConflictRetries, func() error {
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			current, err := qtx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return notFound(err, "order")
			}
			if !actor.IsAdmin() && current.CreatedBy != actor.ID {
				return fmt.Errorf("%w: only the creator may cancel an order", domain.ErrForbidden)
			}
			cancelled, err = transitionOrderState(ctx, qtx, s.audit, current, orderTransition{
				next:    domain.OrderStatusCancelled,
				actorID: actor.ID,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("order cancelled", zap.String("order_id", orderID.String()), zap.String("actor_id", actor.ID.String()))
	publish(s.events, domain.EventOrderCancelled, cancelled.ID.String(), orderEvent(cancelled))
	return &cancelled, nil
}

// Dashboard summarizes an originator's wallet, partners and orders.
func (s *SettlementService) Dashboard(ctx context.Context, actorID uuid.UUID) (*models.Dashboard, error) {
	queries := s.store.Queries()
	actor, err := queries.GetAccount(ctx, actorID)
	if err != nil {
		return nil, notFound(err, "account")
	}
	if actor.Role != domain.RoleOriginator {
		return nil, fmt.Errorf("%w: dashboard is only available to originators", domain.ErrForbidden)
	}

	partners, err := queries.ListLinkedFulfillers(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	counts, err := queries.CountOrdersByStatus(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	dashboard := &models.Dashboard{
		Balance:  actor.Balance,
		Partners: make([]models.PartnerSummary, 0, len(partners)),
	}
	for _, p := range partners {
		dashboard.Partners = append(dashboard.Partners, models.PartnerSummary{ID: p.ID, IsActive: p.IsActive, Balance: p.Balance})
	}
	for _, c := range counts {
		dashboard.TotalOrders += c.Count
		switch c.Status {
		case domain.OrderStatusPending:
			dashboard.PendingOrders = c.Count
		case domain.OrderStatusCompleted:
			dashboard.CompletedOrders = c.Count
		case domain.OrderStatusCancelled:
			dashboard.CancelledOrders = c.Count
		}
	}
	return dashboard, nil
}

type orderEventPayload struct {
	OrderID    uuid.UUID    `json:"order_id"`
	CreatedBy  uuid.UUID    `json:"created_by"`
	AssignedTo uuid.UUID    `json:"assigned_to"`
	Amount     domain.Money `json:"amount"`
	Status     string       `json:"status"`
}

// orderEvent omits the pickup code.
func orderEvent(o models.Order) orderEventPayload {
	return orderEventPayload{OrderID: o.ID, CreatedBy: o.CreatedBy, AssignedTo: o.AssignedTo, Amount: o.Amount, Status: o.Status}
}
