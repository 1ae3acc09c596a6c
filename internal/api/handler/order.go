package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderHandler serves /v1/orders.
type OrderHandler struct {
	orders     *service.OrderService
	settlement *service.SettlementService
}

func NewOrderHandler(orders *service.OrderService, settlement *service.SettlementService) *OrderHandler {
	return &OrderHandler{orders: orders, settlement: settlement}
}

type createOrderRequest struct {
	AssignedTo     uuid.UUID          `json:"assigned_to"`
	Amount         domain.Money       `json:"amount"`
	CommissionRate *decimal.Decimal   `json:"commission_rate,omitempty"`
	Items          []models.OrderItem `json:"items"`
}

// CreateOrder handles POST /v1/orders. The response carries the pickup code.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AssignedTo == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-assigned-to", "assigned_to is required")
		return
	}

	order, err := h.settlement.CreateOrder(r.Context(), service.CreateOrderRequest{
		ActorID:        actor.ID,
		AssignedTo:     req.AssignedTo,
		Amount:         req.Amount,
		CommissionRate: req.CommissionRate,
		Items:          req.Items,
	})
	if err != nil {
		respondServiceError(w, r, err, "create order")
		return
	}
	RespondJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /v1/orders?status=&page=&page_size=.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	page, pageSize, ok := pageParams(w, r)
	if !ok {
		return
	}
	orders, err := h.orders.List(r.Context(), service.ListOrdersRequest{
		Actor:    actor,
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondServiceError(w, r, err, "list orders")
		return
	}
	RespondJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /v1/orders/{id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(r.Context(), orderID, actor)
	if err != nil {
		respondServiceError(w, r, err, "get order")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

type completeOrderRequest struct {
	Code     string `json:"code"`
	ProofRef string `json:"proof_ref,omitempty"`
}

// CompleteOrder handles POST /v1/orders/{id}/complete.
func (h *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req completeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.settlement.CompleteOrder(r.Context(), service.CompleteOrderRequest{
		OrderID:  orderID,
		Code:     req.Code,
		ProofRef: req.ProofRef,
		ActorID:  actor.ID,
	})
	if err != nil {
		respondServiceError(w, r, err, "complete order")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// CancelOrder handles POST /v1/orders/{id}/cancel.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.settlement.CancelOrder(r.Context(), orderID, actor)
	if err != nil {
		respondServiceError(w, r, err, "cancel order")
		return
	}
	RespondJSON(w, http.StatusOK, order)
}

// Dashboard handles GET /v1/dashboard.
func (h *OrderHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	dashboard, err := h.settlement.Dashboard(r.Context(), actor.ID)
	if err != nil {
		respondServiceError(w, r, err, "dashboard")
		return
	}
	RespondJSON(w, http.StatusOK, dashboard)
}
