package service

import (
	"context"
	"testing"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePickupCode(t *testing.T) {
	for digits := MinPickupCodeDigits; digits <= MaxPickupCodeDigits; digits++ {
		code, err := GeneratePickupCode(digits)
		require.NoError(t, err)
		assert.Len(t, code, digits)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code %q is not numeric", code)
		}
	}

	_, err := GeneratePickupCode(3)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = GeneratePickupCode(7)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestPickupCodeMatches(t *testing.T) {
	assert.True(t, pickupCodeMatches("012345", "012345"))
	assert.True(t, pickupCodeMatches("012345", " 012345 "))
	assert.False(t, pickupCodeMatches("012345", "12345"))
	assert.False(t, pickupCodeMatches("012345", "012346"))
	assert.False(t, pickupCodeMatches("", ""))
}

func TestOrderServiceVisibility(t *testing.T) {
	store := newTestStore(t)
	settlement := newSettlement(store)
	orders := NewOrderService(store)
	ctx := context.Background()

	mcp := seedOriginator(t, store, 0)
	partner := seedPartner(t, store, mcp.ID, 0)
	otherMCP := seedOriginator(t, store, 0)
	otherPartner := seedPartner(t, store, otherMCP.ID, 0)

	first := createOrder(t, settlement, mcp.ID, partner.ID, 1_000)
	second := createOrder(t, settlement, mcp.ID, partner.ID, 2_000)
	createOrder(t, settlement, otherMCP.ID, otherPartner.ID, 3_000)

	creator := Actor{ID: mcp.ID, Role: domain.RoleOriginator}
	assignee := Actor{ID: partner.ID, Role: domain.RoleFulfiller}

	got, err := orders.Get(ctx, first.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, first.PickupCode, got.PickupCode)

	got, err = orders.Get(ctx, first.ID, assignee)
	require.NoError(t, err)
	assert.Empty(t, got.PickupCode, "assignee never sees the code")

	_, err = orders.Get(ctx, first.ID, Actor{ID: otherPartner.ID, Role: domain.RoleFulfiller})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = orders.Get(ctx, uuid.New(), creator)
	require.ErrorIs(t, err, domain.ErrNotFound)

	page, err := orders.List(ctx, ListOrdersRequest{Actor: creator})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, second.ID, page.Orders[0].ID, "newest first")
	assert.Equal(t, int64(2), page.Pagination.Total)

	page, err = orders.List(ctx, ListOrdersRequest{Actor: assignee, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Empty(t, page.Orders[0].PickupCode)
	assert.Equal(t, 2, page.Pagination.Pages)

	page, err = orders.List(ctx, ListOrdersRequest{Actor: Actor{ID: uuid.New(), Role: domain.RoleAdmin}})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 3)

	_, err = settlement.CancelOrder(ctx, first.ID, creator)
	require.NoError(t, err)
	page, err = orders.List(ctx, ListOrdersRequest{Actor: creator, Status: domain.OrderStatusPending})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, second.ID, page.Orders[0].ID)

	_, err = orders.List(ctx, ListOrdersRequest{Actor: creator, Status: "shipped"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
