package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/partner-settlement/internal/db"
	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/testutil/dblock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env")
}

func TestMain(m *testing.M) {
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}

// setupTestDB connects to DATABASE_URL, applies the schema and truncates every table.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"), 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE withdrawals, transactions, audit_log, orders, accounts, idempotency_keys CASCADE")
	require.NoError(t, err)
	return pool
}

func seedPair(t *testing.T, q Querier, opening domain.Money) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	mcp, err := q.CreateAccount(ctx, CreateAccountParams{ID: uuid.New(), Role: domain.RoleOriginator, OpeningBalance: opening})
	require.NoError(t, err)
	partner, err := q.CreateAccount(ctx, CreateAccountParams{ID: uuid.New(), Role: domain.RoleFulfiller, LinkedOriginatorID: &mcp.ID})
	require.NoError(t, err)
	return mcp.ID, partner.ID
}

func TestAccountBalanceGuards(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool, time.Second)
	ctx := context.Background()
	q := store.Queries()

	mcpID, partnerID := seedPair(t, q, 10_000)

	rows, err := q.DebitAccount(ctx, AdjustBalanceParams{ID: mcpID, Amount: 10_001})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)

	rows, err = q.DebitAccount(ctx, AdjustBalanceParams{ID: mcpID, Amount: 4_000})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	_, err = q.SetAccountActive(ctx, SetAccountActiveParams{ID: partnerID, IsActive: false})
	require.NoError(t, err)
	rows, err = q.CreditAccount(ctx, AdjustBalanceParams{ID: partnerID, Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	rows, err = q.RefundAccount(ctx, AdjustBalanceParams{ID: partnerID, Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	acct, err := q.GetAccount(ctx, mcpID)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(6_000), acct.Balance)
	assert.Equal(t, domain.Money(10_000), acct.OpeningBalance)

	_, err = q.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestOrderLifecycleAndLedger(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool, time.Second)
	ctx := context.Background()
	mcpID, partnerID := seedPair(t, store.Queries(), 0)

	order, err := store.Queries().CreateOrder(ctx, CreateOrderParams{
		ID:            uuid.New(),
		CreatedBy:     mcpID,
		AssignedTo:    partnerID,
		Amount:        10_000,
		CommissionBps: domain.DefaultCommissionBps,
		Items:         []byte(`[{"name":"box","quantity":2,"price":"50.00"}]`),
		PickupCode:    "123456",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, domain.Money(5_000), order.Items[0].Price)

	err = store.RunInTx(ctx, func(q Querier) error {
		locked, err := q.GetOrderForUpdate(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, "123456", locked.PickupCode)

		done, err := q.CompleteOrder(ctx, CompleteOrderParams{ID: order.ID, CompletedBy: partnerID})
		require.NoError(t, err)
		assert.Empty(t, done.PickupCode)
		require.NotNil(t, done.CompletedAt)

		rows, err := q.CreditAccount(ctx, AdjustBalanceParams{ID: partnerID, Amount: 9_000})
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)

		_, err = q.InsertTransaction(ctx, InsertTransactionParams{
			ID:             uuid.New(),
			OperationKey:   "order_settlement:" + order.ID.String(),
			FromAccountID:  &mcpID,
			ToAccountID:    &partnerID,
			Amount:         9_000,
			Type:           domain.TxTypeOrderSettlement,
			Status:         domain.TxStatusCompleted,
			RelatedOrderID: &order.ID,
		})
		return err
	})
	require.NoError(t, err)

	q := store.Queries()
	_, err = q.CompleteOrder(ctx, CompleteOrderParams{ID: order.ID, CompletedBy: partnerID})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	_, err = q.InsertTransaction(ctx, InsertTransactionParams{
		ID:           uuid.New(),
		OperationKey: "order_settlement:" + order.ID.String(),
		ToAccountID:  &partnerID,
		Amount:       9_000,
		Type:         domain.TxTypeOrderSettlement,
		Status:       domain.TxStatusCompleted,
	})
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	entries, err := q.ListTransactionsByAccount(ctx, ListTransactionsByAccountParams{AccountID: mcpID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.Money(9_000), entries[0].Amount)

	byOrder, err := q.ListTransactionsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, byOrder, 1)

	mismatches, err := q.ListBalanceMismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	_, err = pool.Exec(ctx, "UPDATE transactions SET amount = 1")
	assert.Error(t, err)
}

func TestRunInTxLockTimeoutIsConflict(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool, 100*time.Millisecond)
	ctx := context.Background()
	mcpID, _ := seedPair(t, store.Queries(), 100)

	holder, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx)
	_, err = New(holder).GetAccountForUpdate(ctx, mcpID)
	require.NoError(t, err)

	err = store.RunInTx(ctx, func(q Querier) error {
		_, err := q.GetAccountForUpdate(ctx, mcpID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestClaimPendingWithdrawals(t *testing.T) {
	pool := setupTestDB(t)
	store := NewStore(pool, time.Second)
	ctx := context.Background()
	mcpID, _ := seedPair(t, store.Queries(), 5_000)
	q := store.Queries()

	entry, err := q.InsertTransaction(ctx, InsertTransactionParams{
		ID:            uuid.New(),
		OperationKey:  "wd-1",
		FromAccountID: &mcpID,
		Amount:        1_000,
		Type:          domain.TxTypeWithdrawal,
		Status:        domain.TxStatusCompleted,
	})
	require.NoError(t, err)
	wd, err := q.CreateWithdrawal(ctx, CreateWithdrawalParams{
		ID:            uuid.New(),
		TransactionID: entry.ID,
		AccountID:     mcpID,
		Amount:        1_000,
		Destination:   "bank:001",
	})
	require.NoError(t, err)

	claimed, err := q.ClaimPendingWithdrawals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, wd.ID, claimed[0].ID)
	assert.Equal(t, domain.WithdrawalStatusProcessing, claimed[0].Status)

	again, err := q.ClaimPendingWithdrawals(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	ref := "gw-1"
	rows, err := q.UpdateWithdrawalStatus(ctx, UpdateWithdrawalStatusParams{
		ID:         wd.ID,
		FromStatus: domain.WithdrawalStatusProcessing,
		Status:     domain.WithdrawalStatusSent,
		GatewayRef: &ref,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
}
