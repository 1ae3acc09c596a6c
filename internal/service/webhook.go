package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrDepositPayloadMismatch = fmt.Errorf("%w: deposit payload does not match existing reference", domain.ErrValidation)
)

// WebhookService handles incoming webhook events from external systems.
type WebhookService struct {
	store   QueryStore
	ledger  *LedgerService
	hmacKey []byte
	skipSig bool
	events  EventPublisher
	retries int
}

func NewWebhookService(store QueryStore, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		store:   store,
		ledger:  NewLedgerService(store),
		hmacKey: []byte(hmacKey),
		skipSig: skipSignature,
		retries: defaultConflictRetries,
	}
}

func (s *WebhookService) WithEvents(p EventPublisher) *WebhookService {
	s.events = p
	return s
}

// DepositWebhookPayload is the body posted by the funding provider.
type DepositWebhookPayload struct {
	AccountID string       `json:"account_id"`
	Amount    domain.Money `json:"amount"`
	Reference string       `json:"reference"` // unique per provider event
}

type DepositWebhookResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
}

func depositOperationKey(reference string) string {
	return fmt.Sprintf("%s:%s", domain.TxTypeDeposit, reference)
}

// HandleDepositWebhook verifies the signature and credits the account once per reference.
func (s *WebhookService) HandleDepositWebhook(ctx context.Context, payload []byte, signature string) (*DepositWebhookResponse, error) {
	resp, err := s.handleDeposit(ctx, payload, signature)
	recordOutcome(domain.TxTypeDeposit, err)
	return resp, err
}

func (s *WebhookService) handleDeposit(ctx context.Context, payload []byte, signature string) (*DepositWebhookResponse, error) {
	if !s.verifyHMAC(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var deposit DepositWebhookPayload
	if err := json.Unmarshal(payload, &deposit); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", domain.ErrValidation)
	}
	deposit.Reference = strings.TrimSpace(deposit.Reference)
	if deposit.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if deposit.Reference == "" {
		return nil, fmt.Errorf("%w: reference is required", domain.ErrValidation)
	}
	accountID, err := uuid.Parse(strings.TrimSpace(deposit.AccountID))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid account_id", domain.ErrValidation)
	}
	opKey := depositOperationKey(deposit.Reference)

	if existing, err := s.ledger.FindByOperationKey(ctx, opKey); err != nil {
		return nil, err
	} else if existing != nil {
		return replayDeposit(existing, accountID, deposit.Amount)
	}

	var entry models.Transaction
	err = retryOnConflict(ctx, domain.TxTypeDeposit, s.retries, func() error {
		return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			if _, err := lockAccounts(ctx, qtx, accountID); err != nil {
				return err
			}
			if err := Credit(ctx, qtx, accountID, deposit.Amount); err != nil {
				return err
			}
			var (
				created bool
				err     error
			)
			entry, created, err = s.ledger.Append(ctx, qtx, LedgerEntry{
				OperationKey: opKey,
				To:           &accountID,
				Amount:       deposit.Amount,
				Type:         domain.TxTypeDeposit,
				Status:       domain.TxStatusCompleted,
				Note:         deposit.Reference,
			})
			if err != nil {
				return err
			}
			if !created {
				return errReplayed
			}
			return nil
		})
	})
	if errors.Is(err, errReplayed) {
		return replayDeposit(&entry, accountID, deposit.Amount)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("deposit credited",
		zap.String("transaction_id", entry.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("reference", deposit.Reference))
	publish(s.events, domain.EventWalletDeposit, accountID.String(), entry)
	return &DepositWebhookResponse{
		TransactionID: entry.ID,
		Status:        entry.Status,
		Message:       "Deposit processed successfully",
	}, nil
}

func replayDeposit(existing *models.Transaction, accountID uuid.UUID, amount domain.Money) (*DepositWebhookResponse, error) {
	if existing.Type != domain.TxTypeDeposit || existing.To == nil || *existing.To != accountID || existing.Amount != amount {
		return nil, ErrDepositPayloadMismatch
	}
	return &DepositWebhookResponse{
		TransactionID: existing.ID,
		Status:        existing.Status,
		Message:       "Deposit already processed",
	}, nil
}

// verifyHMAC checks a "sha256=<hex>" signature in constant time.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}

	expectedSig := SignWebhookPayload(string(s.hmacKey), payload)
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}

// SignWebhookPayload produces the signature header value for payload.
func SignWebhookPayload(key string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
