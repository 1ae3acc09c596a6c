package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/notify"
	"github.com/ayo6706/partner-settlement/internal/repository/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestStore returns an in-memory store with a short lock timeout so lost races surface quickly.
func newTestStore(t *testing.T) *memstore.Store {
	t.Helper()
	return memstore.New(2 * time.Second)
}

func newSettlement(store QueryStore) *SettlementService {
	return NewSettlementService(store, SettlementConfig{ConflictRetries: 5})
}

func seedOriginator(t *testing.T, store QueryStore, balance domain.Money) models.Account {
	t.Helper()
	account, err := NewAccountService(store).CreateAccount(context.Background(), CreateAccountRequest{
		Role:           domain.RoleOriginator,
		OpeningBalance: balance,
	})
	require.NoError(t, err)
	return *account
}

func seedPartner(t *testing.T, store QueryStore, originatorID uuid.UUID, balance domain.Money) models.Account {
	t.Helper()
	account, err := NewAccountService(store).CreateAccount(context.Background(), CreateAccountRequest{
		Role:               domain.RoleFulfiller,
		LinkedOriginatorID: &originatorID,
		OpeningBalance:     balance,
	})
	require.NoError(t, err)
	return *account
}

func balanceOf(t *testing.T, store QueryStore, id uuid.UUID) domain.Money {
	t.Helper()
	balance, err := NewAccountService(store).GetBalance(context.Background(), id)
	require.NoError(t, err)
	return balance
}

func oneItem(price domain.Money) []models.OrderItem {
	return []models.OrderItem{{Name: "parcel", Quantity: 1, Price: price}}
}

func createOrder(t *testing.T, svc *SettlementService, originator, partner uuid.UUID, amount domain.Money) models.Order {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		ActorID:    originator,
		AssignedTo: partner,
		Amount:     amount,
		Items:      oneItem(amount),
	})
	require.NoError(t, err)
	return *order
}

// requireReconciled asserts every balance is explained by the ledger.
func requireReconciled(t *testing.T, store QueryStore) {
	t.Helper()
	mismatches, err := NewReconciliationService(store).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(evt notify.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return true
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

// stubLimiter grants maxAttempts reservations per order under a mutex, like the Redis script.
// maxAttempts <= 0 means unlimited.
type stubLimiter struct {
	mu          sync.Mutex
	blocked     bool
	maxAttempts int
	reserved    map[uuid.UUID]int
	released    int
	resets      int
}

func newStubLimiter() *stubLimiter {
	return &stubLimiter{reserved: make(map[uuid.UUID]int)}
}

func (l *stubLimiter) Reserve(_ context.Context, orderID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.blocked || (l.maxAttempts > 0 && l.reserved[orderID] >= l.maxAttempts) {
		return false, nil
	}
	l.reserved[orderID]++
	return true, nil
}

func (l *stubLimiter) Release(_ context.Context, orderID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserved[orderID] > 0 {
		l.reserved[orderID]--
	}
	l.released++
	return nil
}

func (l *stubLimiter) Reset(_ context.Context, orderID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, orderID)
	l.resets++
	return nil
}
