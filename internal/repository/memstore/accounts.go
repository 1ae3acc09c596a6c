package memstore

import (
	"context"
	"sort"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint violations use the Postgres error type so callers map both backends alike.
func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint", ConstraintName: constraint}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", Message: "insert or update violates foreign key constraint", ConstraintName: constraint}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: "23514", Message: "new row violates check constraint", ConstraintName: constraint}
}

func (t *tx) account(id uuid.UUID) (models.Account, bool) {
	if a, ok := t.accounts[id]; ok {
		return a, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.accounts[id]
	return a, ok
}

func (t *tx) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	if err := t.lock(ctx, accountKey(arg.ID)); err != nil {
		return models.Account{}, err
	}
	if _, exists := t.account(arg.ID); exists {
		return models.Account{}, uniqueViolation("accounts_pkey")
	}
	if arg.OpeningBalance < 0 {
		return models.Account{}, checkViolation("accounts_balance_check")
	}
	if (arg.Role == domain.RoleFulfiller) != (arg.LinkedOriginatorID != nil) {
		return models.Account{}, checkViolation("accounts_partner_link")
	}
	if arg.LinkedOriginatorID != nil {
		if _, ok := t.account(*arg.LinkedOriginatorID); !ok {
			return models.Account{}, foreignKeyViolation("accounts_linked_originator_id_fkey")
		}
	}

	now := t.s.now()
	a := models.Account{
		ID:                 arg.ID,
		Role:               arg.Role,
		Balance:            arg.OpeningBalance,
		OpeningBalance:     arg.OpeningBalance,
		IsActive:           true,
		LinkedOriginatorID: arg.LinkedOriginatorID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t.accounts[a.ID] = a
	return a, nil
}

func (t *tx) GetAccount(_ context.Context, id uuid.UUID) (models.Account, error) {
	a, ok := t.account(id)
	if !ok {
		return models.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (t *tx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (models.Account, error) {
	if err := t.lock(ctx, accountKey(id)); err != nil {
		return models.Account{}, err
	}
	return t.GetAccount(ctx, id)
}

// adjust applies delta to a locked account when match accepts the current row.
func (t *tx) adjust(ctx context.Context, id uuid.UUID, delta domain.Money, match func(models.Account) bool) (int64, error) {
	if err := t.lock(ctx, accountKey(id)); err != nil {
		return 0, err
	}
	a, ok := t.account(id)
	if !ok || !match(a) {
		return 0, nil
	}
	a.Balance += delta
	a.UpdatedAt = t.s.now()
	t.accounts[id] = a
	return 1, nil
}

func (t *tx) DebitAccount(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	return t.adjust(ctx, arg.ID, -arg.Amount, func(a models.Account) bool {
		return a.IsActive && a.Balance >= arg.Amount
	})
}

func (t *tx) CreditAccount(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	return t.adjust(ctx, arg.ID, arg.Amount, func(a models.Account) bool {
		return a.IsActive
	})
}

func (t *tx) RefundAccount(ctx context.Context, arg repository.AdjustBalanceParams) (int64, error) {
	return t.adjust(ctx, arg.ID, arg.Amount, func(models.Account) bool {
		return true
	})
}

func (t *tx) SetAccountActive(ctx context.Context, arg repository.SetAccountActiveParams) (models.Account, error) {
	if err := t.lock(ctx, accountKey(arg.ID)); err != nil {
		return models.Account{}, err
	}
	a, ok := t.account(arg.ID)
	if !ok {
		return models.Account{}, pgx.ErrNoRows
	}
	a.IsActive = arg.IsActive
	a.UpdatedAt = t.s.now()
	t.accounts[a.ID] = a
	return a, nil
}

// allAccounts merges staged rows over committed ones, ordered by creation time then id.
func (t *tx) allAccounts() []models.Account {
	t.s.mu.RLock()
	merged := make(map[uuid.UUID]models.Account, len(t.s.accounts)+len(t.accounts))
	for id, a := range t.s.accounts {
		merged[id] = a
	}
	t.s.mu.RUnlock()
	for id, a := range t.accounts {
		merged[id] = a
	}

	out := make([]models.Account, 0, len(merged))
	for _, a := range merged {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (t *tx) ListLinkedFulfillers(_ context.Context, originatorID uuid.UUID) ([]models.Account, error) {
	out := []models.Account{}
	for _, a := range t.allAccounts() {
		if a.LinkedOriginatorID != nil && *a.LinkedOriginatorID == originatorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *tx) ListBalanceMismatches(_ context.Context) ([]models.BalanceMismatch, error) {
	expected := make(map[uuid.UUID]domain.Money)
	for _, a := range t.allAccounts() {
		expected[a.ID] = a.OpeningBalance
	}
	for _, entry := range t.allTransactions() {
		if entry.Status != domain.TxStatusCompleted {
			continue
		}
		if entry.To != nil {
			expected[*entry.To] += entry.Amount
		}
		if entry.From != nil && entry.Type != domain.TxTypeOrderSettlement {
			expected[*entry.From] -= entry.Amount
		}
	}

	out := []models.BalanceMismatch{}
	for _, a := range t.allAccounts() {
		if a.Balance != expected[a.ID] {
			out = append(out, models.BalanceMismatch{AccountID: a.ID, Balance: a.Balance, Expected: expected[a.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID.String() < out[j].AccountID.String() })
	return out, nil
}
