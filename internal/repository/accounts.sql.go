package repository

import (
	"context"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const accountColumns = `id, role, balance, opening_balance, is_active, linked_originator_id, created_at, updated_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var (
		a                models.Account
		id, linked       pgtype.UUID
		balance, opening int64
	)
	err := row.Scan(&id, &a.Role, &balance, &opening, &a.IsActive, &linked, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Account{}, err
	}
	a.ID = FromPgUUID(id)
	a.Balance = domain.Money(balance)
	a.OpeningBalance = domain.Money(opening)
	a.LinkedOriginatorID = FromPgUUIDPtr(linked)
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]models.Account, error) {
	defer rows.Close()
	items := []models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (id, role, balance, opening_balance, linked_originator_id)
VALUES ($1, $2, $3, $3, $4)
RETURNING ` + accountColumns

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error) {
	row := q.db.QueryRow(ctx, createAccount,
		ToPgUUID(arg.ID),
		arg.Role,
		int64(arg.OpeningBalance),
		ToPgUUIDPtr(arg.LinkedOriginatorID),
	)
	return scanAccount(row)
}

const getAccount = `-- name: GetAccount :one
SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccount, ToPgUUID(id)))
}

const getAccountForUpdate = `-- name: GetAccountForUpdate :one
SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountForUpdate, ToPgUUID(id)))
}

const debitAccount = `-- name: DebitAccount :execrows
UPDATE accounts
SET balance = balance - $2, updated_at = NOW()
WHERE id = $1 AND is_active AND balance >= $2`

func (q *Queries) DebitAccount(ctx context.Context, arg AdjustBalanceParams) (int64, error) {
	result, err := q.db.Exec(ctx, debitAccount, ToPgUUID(arg.ID), int64(arg.Amount))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const creditAccount = `-- name: CreditAccount :execrows
UPDATE accounts
SET balance = balance + $2, updated_at = NOW()
WHERE id = $1 AND is_active`

func (q *Queries) CreditAccount(ctx context.Context, arg AdjustBalanceParams) (int64, error) {
	result, err := q.db.Exec(ctx, creditAccount, ToPgUUID(arg.ID), int64(arg.Amount))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const refundAccount = `-- name: RefundAccount :execrows
UPDATE accounts
SET balance = balance + $2, updated_at = NOW()
WHERE id = $1`

func (q *Queries) RefundAccount(ctx context.Context, arg AdjustBalanceParams) (int64, error) {
	result, err := q.db.Exec(ctx, refundAccount, ToPgUUID(arg.ID), int64(arg.Amount))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const setAccountActive = `-- name: SetAccountActive :one
UPDATE accounts
SET is_active = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + accountColumns

func (q *Queries) SetAccountActive(ctx context.Context, arg SetAccountActiveParams) (models.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, setAccountActive, ToPgUUID(arg.ID), arg.IsActive))
}

const listLinkedFulfillers = `-- name: ListLinkedFulfillers :many
SELECT ` + accountColumns + `
FROM accounts
WHERE linked_originator_id = $1
ORDER BY created_at, id`

func (q *Queries) ListLinkedFulfillers(ctx context.Context, originatorID uuid.UUID) ([]models.Account, error) {
	rows, err := q.db.Query(ctx, listLinkedFulfillers, ToPgUUID(originatorID))
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// Settlement entries credit the assignee only; their from side never debited a balance.
const listBalanceMismatches = `-- name: ListBalanceMismatches :many
WITH ledger AS (
    SELECT a.id,
           a.balance,
           a.opening_balance
             + COALESCE((SELECT SUM(t.amount) FROM transactions t
                         WHERE t.to_account_id = a.id AND t.status = 'completed'), 0)
             - COALESCE((SELECT SUM(t.amount) FROM transactions t
                         WHERE t.from_account_id = a.id AND t.status = 'completed'
                           AND t.type <> 'order_settlement'), 0) AS expected
    FROM accounts a
)
SELECT id, balance, expected::bigint
FROM ledger
WHERE balance <> expected
ORDER BY id`

func (q *Queries) ListBalanceMismatches(ctx context.Context) ([]models.BalanceMismatch, error) {
	rows, err := q.db.Query(ctx, listBalanceMismatches)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.BalanceMismatch{}
	for rows.Next() {
		var (
			id                pgtype.UUID
			balance, expected int64
		)
		if err := rows.Scan(&id, &balance, &expected); err != nil {
			return nil, err
		}
		items = append(items, models.BalanceMismatch{
			AccountID: FromPgUUID(id),
			Balance:   domain.Money(balance),
			Expected:  domain.Money(expected),
		})
	}
	return items, rows.Err()
}
