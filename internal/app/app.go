package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/partner-settlement/internal/api"
	"github.com/ayo6706/partner-settlement/internal/api/handler"
	"github.com/ayo6706/partner-settlement/internal/config"
	"github.com/ayo6706/partner-settlement/internal/db"
	"github.com/ayo6706/partner-settlement/internal/gateway"
	"github.com/ayo6706/partner-settlement/internal/idempotency"
	"github.com/ayo6706/partner-settlement/internal/notify"
	"github.com/ayo6706/partner-settlement/internal/observability"
	"github.com/ayo6706/partner-settlement/internal/repository"
	"github.com/ayo6706/partner-settlement/internal/repository/memstore"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/ayo6706/partner-settlement/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend is a record store that can also report its health.
type backend interface {
	service.QueryStore
	handler.Pinger
}

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("record store ready", zap.String("backend", cfg.StoreBackend))

	var redisCmd redis.Cmdable
	limiter := service.NoopAttemptLimiter()
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		redisCmd = redisClient
		limiter = service.NewRedisAttemptLimiter(redisClient, "pickup_attempts", cfg.PickupCodeMaxAttempts, cfg.PickupCodeAttemptWindow)
	} else {
		logger.Warn("REDIS_URL not set: idempotency cache and pickup code throttling disabled")
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.Notifier)
	dispatcher.Start()

	settlementSvc := service.NewSettlementService(store, service.SettlementConfig{
		DefaultCommissionBps: cfg.DefaultCommissionBps,
		PickupCodeDigits:     cfg.PickupCodeDigits,
		ConflictRetries:      cfg.ConflictRetries,
	}).WithAttemptLimiter(limiter).WithEvents(dispatcher)
	withdrawalSvc := service.NewWithdrawalService(store, gateway.NewMockGateway()).
		WithEvents(dispatcher).
		WithConflictRetries(cfg.ConflictRetries)
	svcs := api.Services{
		Accounts:    service.NewAccountService(store),
		Orders:      service.NewOrderService(store),
		Settlement:  settlementSvc,
		Ledger:      service.NewLedgerService(store),
		Withdrawals: withdrawalSvc,
		Webhooks:    service.NewWebhookService(store, cfg.WebhookHMACKey, cfg.WebhookSkipSignature).WithEvents(dispatcher),
	}
	idemStore := idempotency.NewStore(redisCmd, store, cfg.IdempotencyTTL)

	withdrawalWorker := worker.NewWithdrawalWorker(withdrawalSvc).
		WithPollInterval(cfg.WithdrawalPollInterval).
		WithBatchSize(cfg.WithdrawalBatchSize)
	stopWithdrawals := withdrawalWorker.Run(ctx)
	logger.Info("withdrawal worker started", zap.Duration("interval", cfg.WithdrawalPollInterval), zap.Int32("batch", cfg.WithdrawalBatchSize))

	reconciliationWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopReconciliation := reconciliationWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	router := api.NewRouter(cfg, logger, store, idemStore, redisCmd, svcs)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopWithdrawals()
	stopReconciliation()

	// Drain after the server and workers stop so no committed change loses its event.
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notification dispatcher close failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		return memstore.New(cfg.LockTimeout), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return pgBackend{Store: repository.NewStore(pool, cfg.LockTimeout), ping: pool.Ping}, pool.Close, nil
}

// pgBackend adds the pool health check to the Postgres store.
type pgBackend struct {
	*repository.Store
	ping func(context.Context) error
}

func (b pgBackend) Ping(ctx context.Context) error { return b.ping(ctx) }

func newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	switch cfg.Notifier {
	case config.NotifierRabbitMQ:
		return notify.NewRabbitMQNotifier(cfg.AMQPURL, cfg.AMQPExchange)
	case config.NotifierKafka:
		return notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return notify.NewLogNotifier(logger), nil
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
