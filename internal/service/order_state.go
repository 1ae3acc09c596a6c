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

// Both terminal states accept no further transitions.
var orderTransitions = map[string]map[string]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusCompleted: {},
		domain.OrderStatusCancelled: {},
	},
	domain.OrderStatusCompleted: {},
	domain.OrderStatusCancelled: {},
}

func canTransitionOrder(current, next string) bool {
	nextStates, ok := orderTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

type orderTransition struct {
	next     string
	actorID  uuid.UUID
	proofRef *string
	metadata []byte
}

// transitionOrderState moves a locked order to a terminal state and audits it. The
// conditional UPDATE re-checks pending, so a lost race surfaces as ErrInvalidState.
func transitionOrderState(ctx context.Context, qtx repository.Querier, audit *AuditService, current models.Order, tr orderTransition) (models.Order, error) {
	if !canTransitionOrder(current.Status, tr.next) {
		return models.Order{}, fmt.Errorf("%w: order is %s", domain.ErrInvalidState, current.Status)
	}

	var (
		updated models.Order
		err     error
		action  string
	)
	switch tr.next {
	case domain.OrderStatusCompleted:
		action = "completed"
		updated, err = qtx.CompleteOrder(ctx, repository.CompleteOrderParams{
			ID:          current.ID,
			CompletedBy: tr.actorID,
			ProofRef:    tr.proofRef,
		})
	case domain.OrderStatusCancelled:
		action = "cancelled"
		updated, err = qtx.CancelOrder(ctx, current.ID)
	default:
		return models.Order{}, fmt.Errorf("%w: unsupported order transition to %s", domain.ErrInternal, tr.next)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, fmt.Errorf("%w: order is no longer pending", domain.ErrInvalidState)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("update order state: %w", err)
	}

	actor := tr.actorID
	if err := audit.Write(ctx, qtx, entityOrder, current.ID, &actor, action, current.Status, updated.Status, tr.metadata); err != nil {
		return models.Order{}, err
	}
	return updated, nil
}
