package handler

import (
	"net/http"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/google/uuid"
)

// AccountHandler is the admin surface for wallet accounts.
type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type createAccountRequest struct {
	// ID is normally the principal id of the wallet owner.
	ID                 *uuid.UUID   `json:"id,omitempty"`
	Role               string       `json:"role"`
	LinkedOriginatorID *uuid.UUID   `json:"linked_originator_id,omitempty"`
	OpeningBalance     domain.Money `json:"opening_balance"`
}

// CreateAccount handles POST /v1/admin/accounts.
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), service.CreateAccountRequest{
		ID:                 req.ID,
		Role:               req.Role,
		LinkedOriginatorID: req.LinkedOriginatorID,
		OpeningBalance:     req.OpeningBalance,
	})
	if err != nil {
		respondServiceError(w, r, err, "create account")
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

// GetAccount handles GET /v1/admin/accounts/{id}.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.svc.GetAccount(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err, "get account")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetActive handles POST /v1/admin/accounts/{id}/active.
func (h *AccountHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	accountID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		RespondError(w, r, http.StatusBadRequest, "request/missing-active", "active is required")
		return
	}

	account, err := h.svc.SetActive(r.Context(), accountID, *req.Active, &actor.ID)
	if err != nil {
		respondServiceError(w, r, err, "set account active")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
