package repository

import (
	"context"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const transactionColumns = `id, operation_key, from_account_id, to_account_id, amount, type, status, related_order_id, note, created_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		t                     models.Transaction
		id, from, to, orderID pgtype.UUID
		amount                int64
	)
	err := row.Scan(&id, &t.OperationKey, &from, &to, &amount, &t.Type, &t.Status, &orderID, &t.Note, &t.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	t.ID = FromPgUUID(id)
	t.From = FromPgUUIDPtr(from)
	t.To = FromPgUUIDPtr(to)
	t.Amount = domain.Money(amount)
	t.RelatedOrder = FromPgUUIDPtr(orderID)
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	items := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const insertTransaction = `-- name: InsertTransaction :one
INSERT INTO transactions (id, operation_key, from_account_id, to_account_id, amount, type, status, related_order_id, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (operation_key) DO NOTHING
RETURNING ` + transactionColumns

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (models.Transaction, error) {
	row := q.db.QueryRow(ctx, insertTransaction,
		ToPgUUID(arg.ID),
		arg.OperationKey,
		ToPgUUIDPtr(arg.FromAccountID),
		ToPgUUIDPtr(arg.ToAccountID),
		int64(arg.Amount),
		arg.Type,
		arg.Status,
		ToPgUUIDPtr(arg.RelatedOrderID),
		arg.Note,
	)
	return scanTransaction(row)
}

const getTransactionByOperationKey = `-- name: GetTransactionByOperationKey :one
SELECT ` + transactionColumns + ` FROM transactions WHERE operation_key = $1`

func (q *Queries) GetTransactionByOperationKey(ctx context.Context, operationKey string) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionByOperationKey, operationKey))
}

const listTransactionsByAccount = `-- name: ListTransactionsByAccount :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE from_account_id = $1 OR to_account_id = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListTransactionsByAccount(ctx context.Context, arg ListTransactionsByAccountParams) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, listTransactionsByAccount, ToPgUUID(arg.AccountID), arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

const countTransactionsByAccount = `-- name: CountTransactionsByAccount :one
SELECT COUNT(*) FROM transactions WHERE from_account_id = $1 OR to_account_id = $1`

func (q *Queries) CountTransactionsByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countTransactionsByAccount, ToPgUUID(accountID)).Scan(&count)
	return count, err
}

const listTransactionsByOrder = `-- name: ListTransactionsByOrder :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE related_order_id = $1
ORDER BY created_at, seq`

func (q *Queries) ListTransactionsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, listTransactionsByOrder, ToPgUUID(orderID))
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
