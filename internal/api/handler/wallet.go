package handler

import (
	"net/http"

	"github.com/ayo6706/partner-settlement/internal/api/middleware"
	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/google/uuid"
)

// WalletHandler serves the caller's own wallet. The wallet account id is the principal id.
type WalletHandler struct {
	accounts   *service.AccountService
	ledger     *service.LedgerService
	settlement *service.SettlementService
}

func NewWalletHandler(accounts *service.AccountService, ledger *service.LedgerService, settlement *service.SettlementService) *WalletHandler {
	return &WalletHandler{accounts: accounts, ledger: ledger, settlement: settlement}
}

type balanceResponse struct {
	AccountID uuid.UUID    `json:"account_id"`
	Balance   domain.Money `json:"balance"`
}

// GetBalance handles GET /v1/wallet/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	balance, err := h.accounts.GetBalance(r.Context(), actor.ID)
	if err != nil {
		respondServiceError(w, r, err, "get balance")
		return
	}
	RespondJSON(w, http.StatusOK, balanceResponse{AccountID: actor.ID, Balance: balance})
}

type transferRequest struct {
	ToAccountID uuid.UUID    `json:"to_account_id"`
	Amount      domain.Money `json:"amount"`
	Note        string       `json:"note,omitempty"`
}

// Transfer handles POST /v1/wallet/transfer. The Idempotency-Key header doubles as the
// ledger operation key, so a retry after the response cache expired still cannot move money twice.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	operationKey := r.Header.Get(middleware.IdempotencyKeyHeader)
	if operationKey == "" {
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ToAccountID == uuid.Nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-to-account-id", "to_account_id is required")
		return
	}

	entry, err := h.settlement.Transfer(r.Context(), service.TransferRequest{
		FromAccountID: actor.ID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Note:          req.Note,
		OperationKey:  operationKey,
	})
	if err != nil {
		respondServiceError(w, r, err, "transfer")
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

// ListTransactions handles GET /v1/wallet/transactions?page=&page_size=.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	page, pageSize, ok := pageParams(w, r)
	if !ok {
		return
	}
	if _, err := h.accounts.GetAccount(r.Context(), actor.ID); err != nil {
		respondServiceError(w, r, err, "list transactions")
		return
	}
	entries, err := h.ledger.ListByAccount(r.Context(), actor.ID, page, pageSize)
	if err != nil {
		respondServiceError(w, r, err, "list transactions")
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}
