package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerService reads and appends the transaction ledger. Entries are never updated or deleted.
type LedgerService struct {
	store QueryStore
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{store: store}
}

type LedgerEntry struct {
	OperationKey string
	From         *uuid.UUID
	To           *uuid.UUID
	Amount       domain.Money
	Type         string
	Status       string
	RelatedOrder *uuid.UUID
	Note         string
}

// Append writes entry inside the caller's unit. When the operation key already exists it
// returns the stored entry and created=false; the caller decides whether that is a replay.
func (s *LedgerService) Append(ctx context.Context, qtx repository.Querier, entry LedgerEntry) (models.Transaction, bool, error) {
	if entry.OperationKey == "" {
		return models.Transaction{}, false, fmt.Errorf("%w: operation key is required", domain.ErrValidation)
	}
	if entry.Amount <= 0 {
		return models.Transaction{}, false, fmt.Errorf("%w: ledger amount must be positive", domain.ErrValidation)
	}

	inserted, err := qtx.InsertTransaction(ctx, repository.InsertTransactionParams{
		ID:             uuid.New(),
		OperationKey:   entry.OperationKey,
		FromAccountID:  entry.From,
		ToAccountID:    entry.To,
		Amount:         entry.Amount,
		Type:           entry.Type,
		Status:         entry.Status,
		RelatedOrderID: entry.RelatedOrder,
		Note:           entry.Note,
	})
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, false, fmt.Errorf("insert ledger entry: %w", err)
	}

	existing, err := qtx.GetTransactionByOperationKey(ctx, entry.OperationKey)
	if err != nil {
		return models.Transaction{}, false, fmt.Errorf("load existing ledger entry: %w", err)
	}
	return existing, false, nil
}

// FindByOperationKey returns nil when no entry carries key.
func (s *LedgerService) FindByOperationKey(ctx context.Context, key string) (*models.Transaction, error) {
	entry, err := s.store.Queries().GetTransactionByOperationKey(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check operation key: %w", err)
	}
	return &entry, nil
}

// ListByAccount pages entries where the account is on either side, newest first.
func (s *LedgerService) ListByAccount(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*models.TransactionPage, error) {
	page, pageSize, limit, offset := normalizePage(page, pageSize)
	queries := s.store.Queries()

	total, err := queries.CountTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	entries, err := queries.ListTransactionsByAccount(ctx, repository.ListTransactionsByAccountParams{
		AccountID: accountID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return &models.TransactionPage{
		Transactions: entries,
		Pagination:   models.NewPagination(total, page, pageSize),
	}, nil
}

func (s *LedgerService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	entries, err := s.store.Queries().ListTransactionsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order transactions: %w", err)
	}
	return entries, nil
}
