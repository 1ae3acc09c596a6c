package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
)

const (
	MinPickupCodeDigits     = 4
	MaxPickupCodeDigits     = 6
	DefaultPickupCodeDigits = 6
)

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// OrderService serves order reads. Mutations go through SettlementService.
type OrderService struct {
	store QueryStore
}

func NewOrderService(store QueryStore) *OrderService {
	return &OrderService{store: store}
}

// Get returns an order the actor is party to. The pickup code is only visible to the creator.
func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.store.Queries().GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if !actor.IsAdmin() && order.CreatedBy != actor.ID && order.AssignedTo != actor.ID {
		return nil, fmt.Errorf("%w: order", domain.ErrNotFound)
	}
	redactPickupCode(&order, actor)
	return &order, nil
}

type ListOrdersRequest struct {
	Actor    Actor
	Status   string
	Page     int
	PageSize int
}

// List scopes orders to the actor: creators see what they created, fulfillers what is
// assigned to them, admins everything. Newest first.
func (s *OrderService) List(ctx context.Context, req ListOrdersRequest) (*models.OrderPage, error) {
	page, pageSize, limit, offset := normalizePage(req.Page, req.PageSize)

	var filter repository.OrderFilter
	switch req.Actor.Role {
	case domain.RoleOriginator:
		filter.CreatedBy = &req.Actor.ID
	case domain.RoleFulfiller:
		filter.AssignedTo = &req.Actor.ID
	case domain.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role", domain.ErrForbidden)
	}
	if req.Status != "" {
		if _, ok := orderTransitions[req.Status]; !ok {
			return nil, fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, req.Status)
		}
		status := req.Status
		filter.Status = &status
	}

	queries := s.store.Queries()
	total, err := queries.CountOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	orders, err := queries.ListOrders(ctx, repository.ListOrdersParams{OrderFilter: filter, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for i := range orders {
		redactPickupCode(&orders[i], req.Actor)
	}
	return &models.OrderPage{Orders: orders, Pagination: models.NewPagination(total, page, pageSize)}, nil
}

func redactPickupCode(order *models.Order, actor Actor) {
	if order.CreatedBy != actor.ID {
		order.PickupCode = ""
	}
}

// GeneratePickupCode returns a uniformly random numeric code of the given length.
func GeneratePickupCode(digits int) (string, error) {
	if digits < MinPickupCodeDigits || digits > MaxPickupCodeDigits {
		return "", fmt.Errorf("%w: pickup code length must be %d-%d", domain.ErrValidation, MinPickupCodeDigits, MaxPickupCodeDigits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate pickup code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// pickupCodeMatches compares in constant time. An empty stored code never matches.
func pickupCodeMatches(stored, submitted string) bool {
	submitted = strings.TrimSpace(submitted)
	if stored == "" || len(stored) != len(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

func validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	}
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: items[%d].name is required", domain.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d].quantity must be positive", domain.ErrValidation, i)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: items[%d].price must not be negative", domain.ErrValidation, i)
		}
	}
	return nil
}
