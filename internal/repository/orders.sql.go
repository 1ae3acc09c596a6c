package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, created_by, assigned_to, amount, commission_bps, items, pickup_code, status,
       proof_ref, completed_at, completed_by, cancelled_at, created_at, updated_at`

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o                             models.Order
		id, createdBy, assignedTo, by pgtype.UUID
		amount                        int64
		items                         []byte
		pickupCode                    *string
		completedAt, cancelledAt      pgtype.Timestamptz
	)
	err := row.Scan(&id, &createdBy, &assignedTo, &amount, &o.CommissionBps, &items, &pickupCode, &o.Status,
		&o.ProofRef, &completedAt, &by, &cancelledAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return models.Order{}, err
	}
	o.ID = FromPgUUID(id)
	o.CreatedBy = FromPgUUID(createdBy)
	o.AssignedTo = FromPgUUID(assignedTo)
	o.Amount = domain.Money(amount)
	if pickupCode != nil {
		o.PickupCode = *pickupCode
	}
	o.CompletedAt = fromPgTimePtr(completedAt)
	o.CompletedBy = FromPgUUIDPtr(by)
	o.CancelledAt = fromPgTimePtr(cancelledAt)
	o.Items = []models.OrderItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return models.Order{}, fmt.Errorf("decode order items: %w", err)
		}
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	items := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (id, created_by, assigned_to, amount, commission_bps, items, pickup_code)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (models.Order, error) {
	items := arg.Items
	if len(items) == 0 {
		items = []byte("[]")
	}
	row := q.db.QueryRow(ctx, createOrder,
		ToPgUUID(arg.ID),
		ToPgUUID(arg.CreatedBy),
		ToPgUUID(arg.AssignedTo),
		int64(arg.Amount),
		arg.CommissionBps,
		items,
		arg.PickupCode,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, ToPgUUID(id)))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, ToPgUUID(id)))
}

const completeOrder = `-- name: CompleteOrder :one
UPDATE orders
SET status = 'completed',
    pickup_code = NULL,
    proof_ref = $3,
    completed_by = $2,
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + orderColumns

func (q *Queries) CompleteOrder(ctx context.Context, arg CompleteOrderParams) (models.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, completeOrder, ToPgUUID(arg.ID), ToPgUUID(arg.CompletedBy), arg.ProofRef))
}

const cancelOrder = `-- name: CancelOrder :one
UPDATE orders
SET status = 'cancelled',
    pickup_code = NULL,
    cancelled_at = NOW(),
    updated_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + orderColumns

func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, ToPgUUID(id)))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::uuid IS NULL OR created_by = $1)
  AND ($2::uuid IS NULL OR assigned_to = $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY created_at DESC, seq DESC
LIMIT $4 OFFSET $5`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]models.Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		ToPgUUIDPtr(arg.CreatedBy),
		ToPgUUIDPtr(arg.AssignedTo),
		arg.Status,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const countOrders = `-- name: CountOrders :one
SELECT COUNT(*)
FROM orders
WHERE ($1::uuid IS NULL OR created_by = $1)
  AND ($2::uuid IS NULL OR assigned_to = $2)
  AND ($3::text IS NULL OR status = $3)`

func (q *Queries) CountOrders(ctx context.Context, arg OrderFilter) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countOrders,
		ToPgUUIDPtr(arg.CreatedBy),
		ToPgUUIDPtr(arg.AssignedTo),
		arg.Status,
	).Scan(&count)
	return count, err
}

const countOrdersByStatus = `-- name: CountOrdersByStatus :many
SELECT status, COUNT(*)
FROM orders
WHERE created_by = $1
GROUP BY status
ORDER BY status`

func (q *Queries) CountOrdersByStatus(ctx context.Context, createdBy uuid.UUID) ([]OrderStatusCount, error) {
	rows, err := q.db.Query(ctx, countOrdersByStatus, ToPgUUID(createdBy))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderStatusCount{}
	for rows.Next() {
		var i OrderStatusCount
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
