package repository

import (
	"context"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const withdrawalColumns = `id, transaction_id, account_id, amount, destination, status, gateway_ref, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (models.Withdrawal, error) {
	var (
		w                   models.Withdrawal
		id, txID, accountID pgtype.UUID
		amount              int64
	)
	err := row.Scan(&id, &txID, &accountID, &amount, &w.Destination, &w.Status, &w.GatewayRef, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return models.Withdrawal{}, err
	}
	w.ID = FromPgUUID(id)
	w.TransactionID = FromPgUUID(txID)
	w.AccountID = FromPgUUID(accountID)
	w.Amount = domain.Money(amount)
	return w, nil
}

const createWithdrawal = `-- name: CreateWithdrawal :one
INSERT INTO withdrawals (id, transaction_id, account_id, amount, destination, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
RETURNING ` + withdrawalColumns

func (q *Queries) CreateWithdrawal(ctx context.Context, arg CreateWithdrawalParams) (models.Withdrawal, error) {
	row := q.db.QueryRow(ctx, createWithdrawal,
		ToPgUUID(arg.ID),
		ToPgUUID(arg.TransactionID),
		ToPgUUID(arg.AccountID),
		int64(arg.Amount),
		arg.Destination,
	)
	return scanWithdrawal(row)
}

const getWithdrawal = `-- name: GetWithdrawal :one
SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

func (q *Queries) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, getWithdrawal, ToPgUUID(id)))
}

const getWithdrawalByTransactionID = `-- name: GetWithdrawalByTransactionID :one
SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE transaction_id = $1`

func (q *Queries) GetWithdrawalByTransactionID(ctx context.Context, transactionID uuid.UUID) (models.Withdrawal, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, getWithdrawalByTransactionID, ToPgUUID(transactionID)))
}

const claimPendingWithdrawals = `-- name: ClaimPendingWithdrawals :many
UPDATE withdrawals
SET status = 'processing', updated_at = NOW()
WHERE id IN (
    SELECT id FROM withdrawals
    WHERE status = 'pending'
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + withdrawalColumns

func (q *Queries) ClaimPendingWithdrawals(ctx context.Context, limit int32) ([]models.Withdrawal, error) {
	rows, err := q.db.Query(ctx, claimPendingWithdrawals, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Withdrawal{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

const updateWithdrawalStatus = `-- name: UpdateWithdrawalStatus :execrows
UPDATE withdrawals
SET status = $3, gateway_ref = COALESCE($4, gateway_ref), updated_at = NOW()
WHERE id = $1 AND status = $2`

func (q *Queries) UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateWithdrawalStatus, ToPgUUID(arg.ID), arg.FromStatus, arg.Status, arg.GatewayRef)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const requeueStaleWithdrawals = `-- name: RequeueStaleWithdrawals :execrows
UPDATE withdrawals
SET status = 'pending', updated_at = NOW()
WHERE status = 'processing' AND updated_at < $1`

func (q *Queries) RequeueStaleWithdrawals(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := q.db.Exec(ctx, requeueStaleWithdrawals, pgtype.Timestamptz{Time: olderThan, Valid: true})
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
