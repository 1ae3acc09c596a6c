package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// AccountService owns wallet balances. Debit and Credit are the only balance primitives;
// multi-account callers run them inside their own unit.
type AccountService struct {
	store QueryStore
	audit *AuditService
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{store: store, audit: NewAuditService()}
}

type CreateAccountRequest struct {
	ID                 *uuid.UUID
	Role               string
	LinkedOriginatorID *uuid.UUID
	OpeningBalance     domain.Money
}

// CreateAccount registers a wallet. Fulfillers must link to an existing originator.
func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	if !domain.IsValidRole(req.Role) {
		return nil, fmt.Errorf("%w: role must be %s or %s", domain.ErrValidation, domain.RoleOriginator, domain.RoleFulfiller)
	}
	if req.OpeningBalance < 0 {
		return nil, fmt.Errorf("%w: opening balance must not be negative", domain.ErrValidation)
	}
	switch req.Role {
	case domain.RoleFulfiller:
		if req.LinkedOriginatorID == nil {
			return nil, fmt.Errorf("%w: partner accounts require linked_originator_id", domain.ErrValidation)
		}
	case domain.RoleOriginator:
		if req.LinkedOriginatorID != nil {
			return nil, fmt.Errorf("%w: only partner accounts may be linked", domain.ErrValidation)
		}
	}

	id := uuid.New()
	if req.ID != nil {
		id = *req.ID
	}

	var account models.Account
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if req.LinkedOriginatorID != nil {
			originator, err := qtx.GetAccount(ctx, *req.LinkedOriginatorID)
			if err != nil {
				return notFound(err, "linked originator")
			}
			if originator.Role != domain.RoleOriginator {
				return fmt.Errorf("%w: linked account is not an originator", domain.ErrValidation)
			}
		}
		var err error
		account, err = qtx.CreateAccount(ctx, repository.CreateAccountParams{
			ID:                 id,
			Role:               req.Role,
			OpeningBalance:     req.OpeningBalance,
			LinkedOriginatorID: req.LinkedOriginatorID,
		})
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("account created", zap.String("account_id", account.ID.String()), zap.String("role", account.Role))
	return &account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := s.store.Queries().GetAccount(ctx, id)
	if err != nil {
		return nil, notFound(err, "account")
	}
	return &account, nil
}

// GetBalance reads the committed balance. Inactive accounts remain readable.
func (s *AccountService) GetBalance(ctx context.Context, id uuid.UUID) (domain.Money, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// SetActive deactivates or reactivates an account. Accounts are never deleted.
func (s *AccountService) SetActive(ctx context.Context, id uuid.UUID, active bool, actorID *uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		current, err := qtx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "account")
		}
		account, err = qtx.SetAccountActive(ctx, repository.SetAccountActiveParams{ID: id, IsActive: active})
		if err != nil {
			return fmt.Errorf("set account active: %w", err)
		}
		if current.IsActive == active {
			return nil
		}
		action := "deactivated"
		if active {
			action = "activated"
		}
		return s.audit.Write(ctx, qtx, "account", id, actorID, action, activeState(current.IsActive), activeState(active), nil)
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func activeState(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// Debit removes amount from a locked account. It fails ErrInsufficientFunds when the
// balance would go negative and ErrAccountInactive for deactivated accounts.
func Debit(ctx context.Context, qtx repository.Querier, accountID uuid.UUID, amount domain.Money) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	rows, err := qtx.DebitAccount(ctx, repository.AdjustBalanceParams{ID: accountID, Amount: amount})
	if err != nil {
		return fmt.Errorf("debit account: %w", err)
	}
	if rows == 1 {
		return nil
	}
	return explainRejectedAdjustment(ctx, qtx, accountID, amount, true)
}

// Credit adds amount to an active account.
func Credit(ctx context.Context, qtx repository.Querier, accountID uuid.UUID, amount domain.Money) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	rows, err := qtx.CreditAccount(ctx, repository.AdjustBalanceParams{ID: accountID, Amount: amount})
	if err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if rows == 1 {
		return nil
	}
	return explainRejectedAdjustment(ctx, qtx, accountID, amount, false)
}

// explainRejectedAdjustment maps a zero-row balance update to the reason it did not match.
func explainRejectedAdjustment(ctx context.Context, qtx repository.Querier, accountID uuid.UUID, amount domain.Money, debit bool) error {
	account, err := qtx.GetAccount(ctx, accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: account", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return domain.ErrAccountInactive
	}
	if debit && account.Balance < amount {
		return domain.ErrInsufficientFunds
	}
	return fmt.Errorf("%w: balance update matched no rows", domain.ErrInternal)
}

// lockAccounts takes row locks in ascending id order and returns the rows keyed by id.
func lockAccounts(ctx context.Context, qtx repository.Querier, ids ...uuid.UUID) (map[uuid.UUID]models.Account, error) {
	sorted := sortedUnique(ids)
	locked := make(map[uuid.UUID]models.Account, len(sorted))
	for _, id := range sorted {
		account, err := qtx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return nil, notFound(err, "account")
		}
		locked[id] = account
	}
	return locked, nil
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
