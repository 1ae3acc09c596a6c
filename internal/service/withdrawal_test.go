package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/gateway"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu         sync.Mutex
	ref        string
	err        error
	calls      int
	references []string
}

func (s *stubGateway) SendPayout(_ context.Context, reference, _ string, _ domain.Money) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.references = append(s.references, reference)
	return s.ref, s.err
}

// lostUpdateGateway pays through the mock gateway, then requeues the withdrawal on its first
// call so the sent transition matches no row, as if the local update had been lost.
type lostUpdateGateway struct {
	*gateway.MockGateway
	store QueryStore
	once  sync.Once
}

func (g *lostUpdateGateway) SendPayout(ctx context.Context, reference, destination string, amount domain.Money) (string, error) {
	ref, err := g.MockGateway.SendPayout(ctx, reference, destination, amount)
	g.once.Do(func() {
		_, _ = g.store.Queries().RequeueStaleWithdrawals(ctx, time.Now().Add(time.Hour))
	})
	return ref, err
}

func TestWithdrawalProcessSuccess(t *testing.T) {
	store := newTestStore(t)
	gw := &stubGateway{ref: "MOCK-REF"}
	events := &recordingPublisher{}
	svc := NewWithdrawalService(store, gw).WithEvents(events)
	ctx := context.Background()

	mcp := seedOriginator(t, store, 0)
	partner := seedPartner(t, store, mcp.ID, 20_000)

	w, err := svc.RequestWithdrawal(ctx, WithdrawalRequest{
		AccountID:    partner.ID,
		Amount:       5_000,
		Destination:  "GB29NWBK60161331926819",
		OperationKey: "req-success",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, w.Status)
	assert.Equal(t, domain.Money(15_000), balanceOf(t, store, partner.ID))

	replay, err := svc.RequestWithdrawal(ctx, WithdrawalRequest{AccountID: partner.ID, Amount: 5_000, Destination: "GB29NWBK60161331926819", OperationKey: "req-success"})
	require.NoError(t, err)
	assert.Equal(t, w.ID, replay.ID)
	assert.Equal(t, domain.Money(15_000), balanceOf(t, store, partner.ID))

	require.NoError(t, svc.ProcessWithdrawals(ctx, 5))
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, []string{w.ID.String()}, gw.references)

	stored, err := svc.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusSent, stored.Status)
	require.NotNil(t, stored.GatewayRef)
	assert.Equal(t, "MOCK-REF", *stored.GatewayRef)

	// Nothing left to claim.
	require.NoError(t, svc.ProcessWithdrawals(ctx, 5))
	assert.Equal(t, 1, gw.calls)

	assert.Equal(t, []string{domain.EventWalletWithdrawal, domain.EventWithdrawalSent}, events.types())
	requireReconciled(t, store)
}

func TestWithdrawalProcessFailureRefunds(t *testing.T) {
	store := newTestStore(t)
	gw := &stubGateway{err: errors.New("gateway timeout")}
	svc := NewWithdrawalService(store, gw)
	ctx := context.Background()

	mcp := seedOriginator(t, store, 0)
	partner := seedPartner(t, store, mcp.ID, 20_000)

	w, err := svc.RequestWithdrawal(ctx, WithdrawalRequest{AccountID: partner.ID, Amount: 5_000, Destination: "acct-1", OperationKey: "req-fail"})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessWithdrawals(ctx, 5))

	stored, err := svc.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusFailed, stored.Status)
	assert.Equal(t, domain.Money(20_000), balanceOf(t, store, partner.ID))

	page, err := NewLedgerService(store).ListByAccount(ctx, partner.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)

	byKind := map[string]models.Transaction{}
	for _, entry := range page.Transactions {
		byKind[entry.Type+"/"+entry.Status] = entry
	}
	reversal, ok := byKind[domain.TxTypeDeposit+"/"+domain.TxStatusCompleted]
	require.True(t, ok)
	assert.Equal(t, noteWithdrawalReversal, reversal.Note)
	_, ok = byKind[domain.TxTypeWithdrawal+"/"+domain.TxStatusFailed]
	assert.True(t, ok)
	_, ok = byKind[domain.TxTypeWithdrawal+"/"+domain.TxStatusCompleted]
	assert.True(t, ok)

	// A second worker pass does not refund again.
	require.NoError(t, svc.ProcessWithdrawals(ctx, 5))
	assert.Equal(t, domain.Money(20_000), balanceOf(t, store, partner.ID))
	requireReconciled(t, store)
}

func TestRequestWithdrawalRejections(t *testing.T) {
	store := newTestStore(t)
	svc := NewWithdrawalService(store, &stubGateway{})
	ctx := context.Background()

	mcp := seedOriginator(t, store, 1_000)

	cases := []struct {
		name string
		req  WithdrawalRequest
		want error
	}{
		{name: "zero_amount", req: WithdrawalRequest{AccountID: mcp.ID, Amount: 0, Destination: "d", OperationKey: "a"}, want: domain.ErrValidation},
		{name: "no_destination", req: WithdrawalRequest{AccountID: mcp.ID, Amount: 100, OperationKey: "b"}, want: domain.ErrValidation},
		{name: "no_key", req: WithdrawalRequest{AccountID: mcp.ID, Amount: 100, Destination: "d"}, want: domain.ErrValidation},
		{name: "insufficient", req: WithdrawalRequest{AccountID: mcp.ID, Amount: 1_001, Destination: "d", OperationKey: "c"}, want: domain.ErrInsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RequestWithdrawal(ctx, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := svc.RequestWithdrawal(ctx, WithdrawalRequest{AccountID: mcp.ID, Amount: 100, Destination: "d", OperationKey: "dup"})
	require.NoError(t, err)
	_, err = svc.RequestWithdrawal(ctx, WithdrawalRequest{AccountID: mcp.ID, Amount: 200, Destination: "d", OperationKey: "dup"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.Money(900), balanceOf(t, store, mcp.ID))
}

func TestProcessWithdrawalsRequeuesOnCancel(t *testing.T) {
	store := newTestStore(t)
	gw := &stubGateway{err: context.Canceled}
	svc := NewWithdrawalService(store, gw)
	ctx := context.Background()

	mcp := seedOriginator(t, store, 1_000)
	w, err := svc.RequestWithdrawal(ctx, WithdrawalRequest{AccountID: mcp.ID, Amount: 100, Destination: "d", OperationKey: "k"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.ProcessWithdrawals(ctx, 5), context.Canceled)

	stored, err := svc.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, stored.Status)
	assert.Equal(t, domain.Money(900), balanceOf(t, store, mcp.ID))
}

// A payout retried after its sent transition was lost reaches the gateway with the same
// reference and is paid once.
func TestWithdrawalRetryAfterLostUpdatePaysOnce(t *testing.T) {
	store := newTestStore(t)
	gw := &lostUpdateGateway{MockGateway: &gateway.MockGateway{}, store: store}
	svc := NewWithdrawalService(store, gw)
	ctx := context.Background()

	mcp := seedOriginator(t, store, 0)
	partner := seedPartner(t, store, mcp.ID, 20_000)
	w, err := svc.RequestWithdrawal(ctx, WithdrawalRequest{
		AccountID:    partner.ID,
		Amount:       5_000,
		Destination:  "GB29NWBK60161331926819",
		OperationKey: "req-lost-update",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ProcessWithdrawals(ctx, 5))
	stored, err := svc.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusPending, stored.Status)

	require.NoError(t, svc.ProcessWithdrawals(ctx, 5))
	stored, err = svc.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalStatusSent, stored.Status)
	assert.Equal(t, 1, gw.Payouts())
	assert.Equal(t, domain.Money(15_000), balanceOf(t, store, partner.ID))
}
