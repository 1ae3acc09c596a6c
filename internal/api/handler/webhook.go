package handler

import (
	"io"
	"net/http"

	"github.com/ayo6706/partner-settlement/internal/service"
	"go.uber.org/zap"
)

const WebhookSignatureHeader = "X-Webhook-Signature"

// WebhookHandler handles incoming webhook events from external systems.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookSvc: webhookSvc,
	}
}

// HandleDepositWebhook handles POST /v1/webhooks/deposit.
// The signature covers the raw body, so it is read before any decoding.
func (h *WebhookHandler) HandleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	resp, err := h.webhookSvc.HandleDepositWebhook(r.Context(), body, r.Header.Get(WebhookSignatureHeader))
	if err != nil {
		zap.L().Warn("deposit webhook rejected", zap.Error(err))
		respondServiceError(w, r, err, "deposit webhook")
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
