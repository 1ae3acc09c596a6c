package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/partner-settlement/internal/api"
	"github.com/ayo6706/partner-settlement/internal/config"
	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/gateway"
	"github.com/ayo6706/partner-settlement/internal/idempotency"
	"github.com/ayo6706/partner-settlement/internal/models"
	"github.com/ayo6706/partner-settlement/internal/repository/memstore"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "partner-settlement-test"
	testJWTAudience = "settlement-api-test"
	testHMACKey     = "test-hmac-key"
)

type fixture struct {
	t          *testing.T
	store      *memstore.Store
	handler    http.Handler
	adminID    uuid.UUID
	originator uuid.UUID
	partner    uuid.UUID
}

func setupAPI(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New(2 * time.Second)
	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		WebhookHMACKey:     testHMACKey,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	svcs := api.Services{
		Accounts:    service.NewAccountService(store),
		Orders:      service.NewOrderService(store),
		Settlement:  service.NewSettlementService(store, service.SettlementConfig{}),
		Ledger:      service.NewLedgerService(store),
		Withdrawals: service.NewWithdrawalService(store, gateway.NewMockGateway()),
		Webhooks:    service.NewWebhookService(store, testHMACKey, false),
	}
	idemStore := idempotency.NewStore(nil, store, cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), store, idemStore, nil, svcs)

	f := &fixture{t: t, store: store, handler: router.Routes(), adminID: uuid.New()}
	f.originator = f.seedAccount(domain.RoleOriginator, nil, 100_000)
	f.partner = f.seedAccount(domain.RoleFulfiller, &f.originator, 0)
	return f
}

func (f *fixture) seedAccount(role string, linked *uuid.UUID, opening domain.Money) uuid.UUID {
	f.t.Helper()
	id := uuid.New()
	_, err := service.NewAccountService(f.store).CreateAccount(context.Background(), service.CreateAccountRequest{
		ID:                 &id,
		Role:               role,
		LinkedOriginatorID: linked,
		OpeningBalance:     opening,
	})
	require.NoError(f.t, err)
	return id
}

func generateTokenWithRole(userID uuid.UUID, role string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID.String(),
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString([]byte(testJWTSecret))
	return tokenString
}

type call struct {
	method string
	path   string
	token  string
	key    string
	body   any
	header map[string]string
}

func (f *fixture) do(c call) *httptest.ResponseRecorder {
	f.t.Helper()
	var payload []byte
	switch b := c.body.(type) {
	case nil:
	case []byte:
		payload = b
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(f.t, err)
	}
	req := httptest.NewRequest(c.method, c.path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.key != "" {
		req.Header.Set("Idempotency-Key", c.key)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) admin() string      { return generateTokenWithRole(f.adminID, domain.RoleAdmin) }
func (f *fixture) mcp() string        { return generateTokenWithRole(f.originator, domain.RoleOriginator) }
func (f *fixture) partnerTok() string { return generateTokenWithRole(f.partner, domain.RoleFulfiller) }

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *fixture) createOrder(amount string) models.Order {
	f.t.Helper()
	w := f.do(call{method: http.MethodPost, path: "/v1/orders", token: f.mcp(), key: uuid.NewString(), body: map[string]any{
		"assigned_to": f.partner,
		"amount":      amount,
		"items":       []map[string]any{{"name": "parcel", "quantity": 1, "price": amount}},
	}})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Order](f.t, w)
}

func TestRFC7807ProblemDetails(t *testing.T) {
	f := setupAPI(t)

	w := f.do(call{method: http.MethodGet, path: "/v1/wallet/balance"})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	body := decode[map[string]any](t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/wallet/balance", body["instance"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, body["request_id"], w.Header().Get("X-Trace-ID"))
}

func TestRejectsForeignTokens(t *testing.T) {
	f := setupAPI(t)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": f.originator.String(),
		"role":    domain.RoleOriginator,
		"iss":     "someone-else",
		"aud":     testJWTAudience,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := wrongIssuer.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	w := f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: signed})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: generateTokenWithRole(f.originator, "superuser")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := setupAPI(t)

	w := f.do(call{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())

	w = f.do(call{method: http.MethodGet, path: "/openapi.yaml"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/orders/{id}/complete")
}

func TestOrderLifecycle(t *testing.T) {
	f := setupAPI(t)

	order := f.createOrder("100.00")
	require.Len(t, order.PickupCode, service.DefaultPickupCodeDigits)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.Money(10_000), order.Amount)

	// The partner sees the order without its code.
	w := f.do(call{method: http.MethodGet, path: "/v1/orders/" + order.ID.String(), token: f.partnerTok()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "pickup_code")

	w = f.do(call{method: http.MethodPost, path: "/v1/orders/" + order.ID.String() + "/complete", token: f.partnerTok(), key: "wrong-1",
		body: map[string]string{"code": "not-it"}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	key := uuid.NewString()
	complete := call{method: http.MethodPost, path: "/v1/orders/" + order.ID.String() + "/complete", token: f.partnerTok(), key: key,
		body: map[string]string{"code": order.PickupCode, "proof_ref": "photo-1"}}
	w = f.do(complete)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Order       models.Order       `json:"order"`
		Transaction models.Transaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.OrderStatusCompleted, result.Order.Status)
	assert.Equal(t, domain.Money(9_000), result.Transaction.Amount)
	assert.Equal(t, domain.TxTypeOrderSettlement, result.Transaction.Type)

	// Replaying the same request returns the recorded response.
	replay := f.do(complete)
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "store", replay.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, w.Body.String(), replay.Body.String())

	// A fresh attempt hits the state machine.
	complete.key = uuid.NewString()
	w = f.do(complete)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: f.partnerTok()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"account_id":"`+f.partner.String()+`","balance":"90.00"}`, w.Body.String())

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/transactions", token: f.partnerTok()})
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.TransactionPage](t, w)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, int64(1), page.Pagination.Total)
}

func TestOrderRoutesEnforceRoles(t *testing.T) {
	f := setupAPI(t)

	w := f.do(call{method: http.MethodPost, path: "/v1/orders", token: f.partnerTok(), key: "k1", body: map[string]any{
		"assigned_to": f.partner,
		"amount":      "10.00",
		"items":       []map[string]any{{"name": "x", "quantity": 1, "price": "10.00"}},
	}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	order := f.createOrder("20.00")

	w = f.do(call{method: http.MethodPost, path: "/v1/orders/" + order.ID.String() + "/cancel", token: f.partnerTok(), key: "k2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	stranger := f.seedAccount(domain.RoleOriginator, nil, 0)
	w = f.do(call{method: http.MethodGet, path: "/v1/orders/" + order.ID.String(), token: generateTokenWithRole(stranger, domain.RoleOriginator)})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/orders/" + order.ID.String() + "/cancel", token: f.mcp(), key: "k3"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.OrderStatusCancelled, decode[models.Order](t, w).Status)

	w = f.do(call{method: http.MethodGet, path: "/v1/orders?status=cancelled", token: f.mcp()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.OrderPage](t, w).Orders, 1)

	w = f.do(call{method: http.MethodGet, path: "/v1/orders?status=lost", token: f.mcp()})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/orders?page=0", token: f.mcp()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransfer(t *testing.T) {
	f := setupAPI(t)
	body := map[string]any{"to_account_id": f.partner, "amount": "40.00"}

	w := f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), body: body})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "t-1", body: body})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decode[models.Transaction](t, w)
	assert.Equal(t, domain.Money(4_000), entry.Amount)

	replay := f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "t-1", body: body})
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, entry.ID, decode[models.Transaction](t, replay).ID)

	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "t-1",
		body: map[string]any{"to_account_id": f.partner, "amount": "41.00"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "t-2",
		body: map[string]any{"to_account_id": f.partner, "amount": "5000.00"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "t-3",
		body: map[string]any{"to_account_id": f.partner, "amount": "1.001"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: f.mcp()})
	assert.JSONEq(t, `{"account_id":"`+f.originator.String()+`","balance":"960.00"}`, w.Body.String())
}

func TestIdempotencyKeysAreScopedPerPrincipal(t *testing.T) {
	f := setupAPI(t)
	other := f.seedAccount(domain.RoleOriginator, nil, 10_000)
	otherTok := generateTokenWithRole(other, domain.RoleOriginator)

	w := f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "shared",
		body: map[string]any{"to_account_id": f.partner, "amount": "10.00"}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: otherTok, key: "shared",
		body: map[string]any{"to_account_id": f.partner, "amount": "10.00"}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("X-Idempotent-Replay"))

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: f.partnerTok()})
	assert.JSONEq(t, `{"account_id":"`+f.partner.String()+`","balance":"20.00"}`, w.Body.String())
}

func TestDepositWebhook(t *testing.T) {
	f := setupAPI(t)
	payload := []byte(`{"account_id":"` + f.partner.String() + `","amount":"25.00","reference":"psp-1"}`)

	w := f.do(call{method: http.MethodPost, path: "/v1/webhooks/deposit", body: payload,
		header: map[string]string{"X-Webhook-Signature": "sha256=deadbeef"}})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	signed := map[string]string{"X-Webhook-Signature": service.SignWebhookPayload(testHMACKey, payload)}
	w = f.do(call{method: http.MethodPost, path: "/v1/webhooks/deposit", body: payload, header: signed})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(call{method: http.MethodPost, path: "/v1/webhooks/deposit", body: payload, header: signed})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: f.partnerTok()})
	assert.JSONEq(t, `{"account_id":"`+f.partner.String()+`","balance":"25.00"}`, w.Body.String())
}

func TestWithdrawal(t *testing.T) {
	f := setupAPI(t)

	w := f.do(call{method: http.MethodPost, path: "/v1/wallet/withdrawals", token: f.mcp(), key: "w-1",
		body: map[string]any{"amount": "30.00", "destination": "NL91ABNA0417164300"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	withdrawal := decode[models.Withdrawal](t, w)
	assert.Equal(t, domain.WithdrawalStatusPending, withdrawal.Status)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/withdrawals/" + withdrawal.ID.String(), token: f.mcp()})
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/withdrawals/" + withdrawal.ID.String(), token: f.partnerTok()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/withdrawals", token: f.mcp(), key: "w-2",
		body: map[string]any{"amount": "30.00"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/wallet/balance", token: f.mcp()})
	assert.JSONEq(t, `{"account_id":"`+f.originator.String()+`","balance":"970.00"}`, w.Body.String())
}

func TestDashboard(t *testing.T) {
	f := setupAPI(t)
	f.createOrder("10.00")

	w := f.do(call{method: http.MethodGet, path: "/v1/dashboard", token: f.partnerTok()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/dashboard", token: f.mcp()})
	require.Equal(t, http.StatusOK, w.Code)
	dashboard := decode[models.Dashboard](t, w)
	assert.Equal(t, domain.Money(100_000), dashboard.Balance)
	assert.Equal(t, int64(1), dashboard.PendingOrders)
	require.Len(t, dashboard.Partners, 1)
	assert.Equal(t, f.partner, dashboard.Partners[0].ID)
}

func TestAdminAccounts(t *testing.T) {
	f := setupAPI(t)

	w := f.do(call{method: http.MethodPost, path: "/v1/admin/accounts", token: f.mcp(), key: "a-1",
		body: map[string]any{"role": domain.RoleOriginator}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/admin/accounts", token: f.admin(), key: "a-2",
		body: map[string]any{"role": domain.RoleFulfiller, "linked_originator_id": f.originator, "opening_balance": "5.00"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	account := decode[models.Account](t, w)
	assert.Equal(t, domain.Money(500), account.Balance)

	w = f.do(call{method: http.MethodPost, path: "/v1/admin/accounts", token: f.admin(), key: "a-3",
		body: map[string]any{"role": domain.RoleFulfiller}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(call{method: http.MethodPost, path: "/v1/admin/accounts/" + f.partner.String() + "/active", token: f.admin(), key: "a-4",
		body: map[string]any{"active": false}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.Account](t, w).IsActive)

	// Inactive wallets cannot receive.
	w = f.do(call{method: http.MethodPost, path: "/v1/wallet/transfer", token: f.mcp(), key: "t-1",
		body: map[string]any{"to_account_id": f.partner, "amount": "1.00"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(call{method: http.MethodGet, path: "/v1/admin/accounts/" + uuid.NewString(), token: f.admin()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
