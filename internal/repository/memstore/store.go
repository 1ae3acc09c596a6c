// Package memstore is an in-process implementation of repository.Querier with the same
// row locking and commit semantics the services rely on from Postgres: writes take an
// exclusive per-row lock held until commit or rollback, staged writes are invisible to
// other units until commit, and lock waits are bounded.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
)

const DefaultLockTimeout = 5 * time.Second

type Store struct {
	mu          sync.RWMutex
	locks       *lockTable
	lockTimeout time.Duration
	now         func() time.Time

	accounts     map[uuid.UUID]models.Account
	orders       map[uuid.UUID]models.Order
	orderSeq     map[uuid.UUID]int64
	transactions []models.Transaction
	txByKey      map[string]int
	withdrawals  map[uuid.UUID]models.Withdrawal
	withdrawalQ  []uuid.UUID
	audit        []models.AuditLog
	idempotency  map[string]repository.IdempotencyKey
	seq          int64
}

// New returns an empty store. lockTimeout <= 0 selects DefaultLockTimeout.
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		accounts:    make(map[uuid.UUID]models.Account),
		orders:      make(map[uuid.UUID]models.Order),
		orderSeq:    make(map[uuid.UUID]int64),
		txByKey:     make(map[string]int),
		withdrawals: make(map[uuid.UUID]models.Withdrawal),
		idempotency: make(map[string]repository.IdempotencyKey),
	}
}

// Queries returns a Querier where every call is its own unit.
func (s *Store) Queries() repository.Querier {
	return autocommit{s: s}
}

// RunInTx executes fn as one unit. A non-nil error or a panic from fn discards every staged
// write and releases its row locks.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	t := s.begin()
	defer t.rollback()
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.commit()
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) begin() *tx {
	return &tx{
		s:           s,
		held:        make(map[string]struct{}),
		accounts:    make(map[uuid.UUID]models.Account),
		orders:      make(map[uuid.UUID]models.Order),
		withdrawals: make(map[uuid.UUID]models.Withdrawal),
		idempotency: make(map[string]repository.IdempotencyKey),
		idemDeleted: make(map[string]struct{}),
	}
}

// tx is one unit of work. It is used from a single goroutine.
type tx struct {
	s    *Store
	held map[string]struct{}
	done bool

	accounts       map[uuid.UUID]models.Account
	orders         map[uuid.UUID]models.Order
	newOrders      []uuid.UUID
	transactions   []models.Transaction
	withdrawals    map[uuid.UUID]models.Withdrawal
	newWithdrawals []uuid.UUID
	audit          []models.AuditLog
	idempotency    map[string]repository.IdempotencyKey
	idemDeleted    map[string]struct{}
}

// lock takes the exclusive row lock for key, waiting at most the store's lock timeout.
func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	return nil
}

// tryLock is the SKIP LOCKED variant of lock.
func (t *tx) tryLock(key string) bool {
	if _, ok := t.held[key]; ok {
		return true
	}
	if !t.s.locks.tryAcquire(key) {
		return false
	}
	t.held[key] = struct{}{}
	return true
}

func (t *tx) commit() {
	if t.done {
		return
	}
	s := t.s
	s.mu.Lock()
	for id, a := range t.accounts {
		s.accounts[id] = a
	}
	for _, id := range t.newOrders {
		s.seq++
		s.orderSeq[id] = s.seq
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	for _, entry := range t.transactions {
		s.txByKey[entry.OperationKey] = len(s.transactions)
		s.transactions = append(s.transactions, entry)
	}
	for id, w := range t.withdrawals {
		s.withdrawals[id] = w
	}
	s.withdrawalQ = append(s.withdrawalQ, t.newWithdrawals...)
	for _, a := range t.audit {
		a.ID = int64(len(s.audit) + 1)
		s.audit = append(s.audit, a)
	}
	for key := range t.idemDeleted {
		delete(s.idempotency, key)
	}
	for key, rec := range t.idempotency {
		s.idempotency[key] = rec
	}
	s.mu.Unlock()
	t.release()
}

func (t *tx) rollback() {
	if t.done {
		return
	}
	t.release()
}

func (t *tx) release() {
	t.done = true
	for key := range t.held {
		t.s.locks.release(key)
	}
	t.held = nil
}

func accountKey(id uuid.UUID) string    { return "account:" + id.String() }
func orderKey(id uuid.UUID) string      { return "order:" + id.String() }
func withdrawalKey(id uuid.UUID) string { return "withdrawal:" + id.String() }
func operationKey(key string) string    { return "operation:" + key }
func idempotencyKey(key string) string  { return "idempotency:" + key }

// lockTable hands out one buffered channel per row key. Holding the token is holding the lock.
// A slot lives only while a holder or waiter references it.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]*lockSlot)}
}

func (l *lockTable) ref(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *lockTable) unref(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	slot := l.ref(key)
	select {
	case slot.ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case slot.ch <- struct{}{}:
		return nil
	case <-timer.C:
		l.unref(key, slot)
		return fmt.Errorf("%w: lock timeout on %s", domain.ErrConflict, key)
	case <-ctx.Done():
		l.unref(key, slot)
		return ctx.Err()
	}
}

func (l *lockTable) tryAcquire(key string) bool {
	slot := l.ref(key)
	select {
	case slot.ch <- struct{}{}:
		return true
	default:
		l.unref(key, slot)
		return false
	}
}

// release must only be called by the holder, whose reference keeps the slot alive.
func (l *lockTable) release(key string) {
	l.mu.Lock()
	slot := l.slots[key]
	l.mu.Unlock()
	<-slot.ch
	l.unref(key, slot)
}

func (l *lockTable) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

var _ repository.Querier = (*tx)(nil)
