package service

import (
	"context"

	"github.com/ayo6706/partner-settlement/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
// Implemented by *repository.Store (Postgres) and *memstore.Store.
type QueryStore interface {
	Queries() repository.Querier
	RunInTx(ctx context.Context, fn func(q repository.Querier) error) error
}
