package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDepositWebhookUpdatesBalances(t *testing.T) {
	store := newTestStore(t)
	events := &recordingPublisher{}
	svc := NewWebhookService(store, "secret", false).WithEvents(events)
	ctx := context.Background()

	account := seedOriginator(t, store, 0)

	body, err := json.Marshal(DepositWebhookPayload{
		AccountID: account.ID.String(),
		Amount:    7_500,
		Reference: "dep-1",
	})
	require.NoError(t, err)

	resp, err := svc.HandleDepositWebhook(ctx, body, SignWebhookPayload("secret", body))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, resp.Status)
	require.Equal(t, domain.Money(7_500), balanceOf(t, store, account.ID))

	entry, err := store.Queries().GetTransactionByOperationKey(ctx, "deposit:dep-1")
	require.NoError(t, err)
	assert.Equal(t, resp.TransactionID, entry.ID)
	assert.Nil(t, entry.From)
	assert.Equal(t, account.ID, *entry.To)
	assert.Equal(t, domain.TxTypeDeposit, entry.Type)

	// Provider retries are absorbed by the reference.
	replay, err := svc.HandleDepositWebhook(ctx, body, SignWebhookPayload("secret", body))
	require.NoError(t, err)
	assert.Equal(t, resp.TransactionID, replay.TransactionID)
	assert.Equal(t, "Deposit already processed", replay.Message)
	assert.Equal(t, domain.Money(7_500), balanceOf(t, store, account.ID))
	assert.Equal(t, []string{domain.EventWalletDeposit}, events.types())

	requireReconciled(t, store)
}

func TestHandleDepositWebhookRejectsMismatchedReplay(t *testing.T) {
	store := newTestStore(t)
	svc := NewWebhookService(store, "secret", false)
	ctx := context.Background()

	account := seedOriginator(t, store, 0)

	first, _ := json.Marshal(DepositWebhookPayload{AccountID: account.ID.String(), Amount: 1_000, Reference: "dep-9"})
	_, err := svc.HandleDepositWebhook(ctx, first, SignWebhookPayload("secret", first))
	require.NoError(t, err)

	changed, _ := json.Marshal(DepositWebhookPayload{AccountID: account.ID.String(), Amount: 2_000, Reference: "dep-9"})
	_, err = svc.HandleDepositWebhook(ctx, changed, SignWebhookPayload("secret", changed))
	require.ErrorIs(t, err, ErrDepositPayloadMismatch)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, domain.Money(1_000), balanceOf(t, store, account.ID))
}

func TestHandleDepositWebhookRejectsBadSignature(t *testing.T) {
	store := newTestStore(t)
	svc := NewWebhookService(store, "secret", false)
	ctx := context.Background()

	account := seedOriginator(t, store, 0)
	body, err := json.Marshal(DepositWebhookPayload{AccountID: account.ID.String(), Amount: 1_000, Reference: "dep-2"})
	require.NoError(t, err)

	_, err = svc.HandleDepositWebhook(ctx, body, SignWebhookPayload("wrong", body))
	require.ErrorIs(t, err, ErrInvalidSignature)
	_, err = svc.HandleDepositWebhook(ctx, body, "")
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Zero(t, balanceOf(t, store, account.ID))

	unsigned := NewWebhookService(store, "", false)
	_, err = unsigned.HandleDepositWebhook(ctx, body, SignWebhookPayload("", body))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestHandleDepositWebhookValidation(t *testing.T) {
	store := newTestStore(t)
	svc := NewWebhookService(store, "", true)
	ctx := context.Background()
	account := seedOriginator(t, store, 0)

	cases := []struct {
		name string
		body string
		want error
	}{
		{name: "not_json", body: `{`, want: domain.ErrValidation},
		{name: "zero_amount", body: `{"account_id":"` + account.ID.String() + `","amount":"0","reference":"r1"}`, want: domain.ErrValidation},
		{name: "missing_reference", body: `{"account_id":"` + account.ID.String() + `","amount":"1.00"}`, want: domain.ErrValidation},
		{name: "bad_account", body: `{"account_id":"nope","amount":"1.00","reference":"r2"}`, want: domain.ErrValidation},
		{name: "unknown_account", body: `{"account_id":"6f1c8c1e-4f7e-4d7e-9a53-6c3f1f0f9d11","amount":"1.00","reference":"r3"}`, want: domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.HandleDepositWebhook(ctx, []byte(tc.body), "")
			require.ErrorIs(t, err, tc.want)
		})
	}
}
