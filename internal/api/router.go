package api

import (
	"net/http"

	"github.com/ayo6706/partner-settlement/internal/api/handler"
	"github.com/ayo6706/partner-settlement/internal/api/middleware"
	"github.com/ayo6706/partner-settlement/internal/api/spec"
	"github.com/ayo6706/partner-settlement/internal/config"
	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/idempotency"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services are the settlement services the HTTP surface drives.
type Services struct {
	Accounts    *service.AccountService
	Orders      *service.OrderService
	Settlement  *service.SettlementService
	Ledger      *service.LedgerService
	Withdrawals *service.WithdrawalService
	Webhooks    *service.WebhookService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     handler.Pinger
	idemStore *idempotency.Store
	redis     redis.Cmdable
	auth      *middleware.Authenticator
	svcs      Services
}

// NewRouter wires handlers. idemStore and redisClient may be nil.
func NewRouter(cfg *config.Config, logger *zap.Logger, store handler.Pinger, idemStore *idempotency.Store, redisClient redis.Cmdable, svcs Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		idemStore: idemStore,
		redis:     redisClient,
		auth:      middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		svcs:      svcs,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Trace)
	r.Use(middleware.Recover(api.logger))
	r.Use(middleware.Logging(api.logger))
	r.Use(middleware.Metrics)

	healthHandler := handler.NewHealthHandler(api.store, api.redis)
	webhookHandler := handler.NewWebhookHandler(api.svcs.Webhooks)
	orderHandler := handler.NewOrderHandler(api.svcs.Orders, api.svcs.Settlement)
	walletHandler := handler.NewWalletHandler(api.svcs.Accounts, api.svcs.Ledger, api.svcs.Settlement)
	withdrawalHandler := handler.NewWithdrawalHandler(api.svcs.Withdrawals)
	accountHandler := handler.NewAccountHandler(api.svcs.Accounts)

	idempotent := middleware.Idempotency(api.idemStore, api.logger)
	originatorOnly := middleware.RequireRole(domain.RoleOriginator)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "resource/not-found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusMethodNotAllowed, "request/method-not-allowed", "method not allowed")
	})

	// Public Routes
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/webhooks/deposit", webhookHandler.HandleDepositWebhook)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(api.auth.Middleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Route("/v1/orders", func(r chi.Router) {
			r.With(originatorOnly, idempotent).Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{id}", orderHandler.GetOrder)
			r.With(idempotent).Post("/{id}/complete", orderHandler.CompleteOrder)
			r.With(middleware.RequireRole(domain.RoleOriginator, domain.RoleAdmin), idempotent).Post("/{id}/cancel", orderHandler.CancelOrder)
		})

		r.Route("/v1/wallet", func(r chi.Router) {
			r.Get("/balance", walletHandler.GetBalance)
			r.Get("/transactions", walletHandler.ListTransactions)
			r.With(idempotent).Post("/transfer", walletHandler.Transfer)
			r.With(idempotent).Post("/withdrawals", withdrawalHandler.CreateWithdrawal)
			r.Get("/withdrawals/{id}", withdrawalHandler.GetWithdrawal)
		})

		r.With(originatorOnly).Get("/v1/dashboard", orderHandler.Dashboard)

		r.Route("/v1/admin/accounts", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.With(idempotent).Post("/", accountHandler.CreateAccount)
			r.Get("/{id}", accountHandler.GetAccount)
			r.With(idempotent).Post("/{id}/active", accountHandler.SetActive)
		})
	})

	return r
}
