package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/partner-settlement/internal/api/middleware"
	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/service"
)

// WithdrawalHandler handles HTTP requests for wallet withdrawals.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type createWithdrawalRequest struct {
	Amount      domain.Money `json:"amount"`
	Destination string       `json:"destination"`
}

// CreateWithdrawal handles POST /v1/wallet/withdrawals.
// The wallet is debited immediately; the payout is sent by the worker, so the answer is 202.
func (h *WithdrawalHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	operationKey := r.Header.Get(middleware.IdempotencyKeyHeader)
	if operationKey == "" {
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	var req createWithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-destination", "destination is required")
		return
	}

	withdrawal, err := h.withdrawals.RequestWithdrawal(r.Context(), service.WithdrawalRequest{
		AccountID:    actor.ID,
		Amount:       req.Amount,
		Destination:  req.Destination,
		OperationKey: operationKey,
	})
	if err != nil {
		respondServiceError(w, r, err, "create withdrawal")
		return
	}
	RespondJSON(w, http.StatusAccepted, withdrawal)
}

// GetWithdrawal handles GET /v1/wallet/withdrawals/{id}. Other wallets' withdrawals read as 404.
func (h *WithdrawalHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	withdrawalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawals.GetWithdrawal(r.Context(), withdrawalID)
	if err != nil {
		respondServiceError(w, r, err, "get withdrawal")
		return
	}
	if !actor.IsAdmin() && withdrawal.AccountID != actor.ID {
		RespondError(w, r, http.StatusNotFound, "resource/not-found", "withdrawal not found")
		return
	}
	RespondJSON(w, http.StatusOK, withdrawal)
}
