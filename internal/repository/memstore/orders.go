package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (t *tx) order(id uuid.UUID) (models.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := t.s.orders[id]
	return o, ok
}

func (t *tx) CreateOrder(ctx context.Context, arg repository.CreateOrderParams) (models.Order, error) {
	if err := t.lock(ctx, orderKey(arg.ID)); err != nil {
		return models.Order{}, err
	}
	if _, exists := t.order(arg.ID); exists {
		return models.Order{}, uniqueViolation("orders_pkey")
	}
	if arg.Amount <= 0 {
		return models.Order{}, checkViolation("orders_amount_check")
	}
	if arg.CommissionBps < 0 || arg.CommissionBps > 10_000 {
		return models.Order{}, checkViolation("orders_commission_bps_check")
	}
	for _, id := range []uuid.UUID{arg.CreatedBy, arg.AssignedTo} {
		if _, ok := t.account(id); !ok {
			return models.Order{}, foreignKeyViolation("orders_account_fkey")
		}
	}

	items := []models.OrderItem{}
	if len(arg.Items) > 0 {
		if err := json.Unmarshal(arg.Items, &items); err != nil {
			return models.Order{}, fmt.Errorf("decode order items: %w", err)
		}
	}

	now := t.s.now()
	o := models.Order{
		ID:            arg.ID,
		CreatedBy:     arg.CreatedBy,
		AssignedTo:    arg.AssignedTo,
		Amount:        arg.Amount,
		CommissionBps: arg.CommissionBps,
		Items:         items,
		PickupCode:    arg.PickupCode,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.orders[o.ID] = o
	t.newOrders = append(t.newOrders, o.ID)
	return o, nil
}

func (t *tx) GetOrder(_ context.Context, id uuid.UUID) (models.Order, error) {
	o, ok := t.order(id)
	if !ok {
		return models.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (models.Order, error) {
	if err := t.lock(ctx, orderKey(id)); err != nil {
		return models.Order{}, err
	}
	return t.GetOrder(ctx, id)
}

// transition moves a locked pending order to a terminal state; non-pending rows do not match.
func (t *tx) transition(ctx context.Context, id uuid.UUID, apply func(*models.Order)) (models.Order, error) {
	if err := t.lock(ctx, orderKey(id)); err != nil {
		return models.Order{}, err
	}
	o, ok := t.order(id)
	if !ok || o.Status != domain.OrderStatusPending {
		return models.Order{}, pgx.ErrNoRows
	}
	now := t.s.now()
	apply(&o)
	o.PickupCode = ""
	o.UpdatedAt = now
	t.orders[id] = o
	return o, nil
}

func (t *tx) CompleteOrder(ctx context.Context, arg repository.CompleteOrderParams) (models.Order, error) {
	return t.transition(ctx, arg.ID, func(o *models.Order) {
		now := t.s.now()
		by := arg.CompletedBy
		o.Status = domain.OrderStatusCompleted
		o.ProofRef = arg.ProofRef
		o.CompletedBy = &by
		o.CompletedAt = &now
	})
}

func (t *tx) CancelOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return t.transition(ctx, id, func(o *models.Order) {
		now := t.s.now()
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &now
	})
}

// filteredOrders returns matching orders newest first.
func (t *tx) filteredOrders(f repository.OrderFilter) []models.Order {
	type ranked struct {
		order models.Order
		seq   int64
	}

	t.s.mu.RLock()
	merged := make(map[uuid.UUID]ranked, len(t.s.orders)+len(t.orders))
	for id, o := range t.s.orders {
		merged[id] = ranked{order: o, seq: t.s.orderSeq[id]}
	}
	pendingSeq := t.s.seq
	t.s.mu.RUnlock()
	for i, id := range t.newOrders {
		merged[id] = ranked{seq: pendingSeq + int64(i) + 1}
	}
	for id, o := range t.orders {
		r := merged[id]
		r.order = o
		merged[id] = r
	}

	list := make([]ranked, 0, len(merged))
	for _, r := range merged {
		o := r.order
		if f.CreatedBy != nil && o.CreatedBy != *f.CreatedBy {
			continue
		}
		if f.AssignedTo != nil && o.AssignedTo != *f.AssignedTo {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq > list[j].seq })

	out := make([]models.Order, len(list))
	for i, r := range list {
		out[i] = r.order
	}
	return out
}

func (t *tx) ListOrders(_ context.Context, arg repository.ListOrdersParams) ([]models.Order, error) {
	return page(t.filteredOrders(arg.OrderFilter), arg.Limit, arg.Offset), nil
}

func (t *tx) CountOrders(_ context.Context, arg repository.OrderFilter) (int64, error) {
	return int64(len(t.filteredOrders(arg))), nil
}

func (t *tx) CountOrdersByStatus(_ context.Context, createdBy uuid.UUID) ([]repository.OrderStatusCount, error) {
	counts := make(map[string]int64)
	for _, o := range t.filteredOrders(repository.OrderFilter{CreatedBy: &createdBy}) {
		counts[o.Status]++
	}
	out := make([]repository.OrderStatusCount, 0, len(counts))
	for status, n := range counts {
		out = append(out, repository.OrderStatusCount{Status: status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

// page applies LIMIT/OFFSET to an already ordered slice.
func page[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit >= 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}
