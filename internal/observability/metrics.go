package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	settlementCounter       *prometheus.CounterVec
	conflictRetryCounter    *prometheus.CounterVec
	ledgerImbalanceCounter  prometheus.Counter
	mismatchedAccountsGauge prometheus.Gauge
	idempotencyCounter      *prometheus.CounterVec
	pickupCodeRejectCounter *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
	notificationCounter     *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_operations_total",
			Help: "Settlement coordinator outcomes by operation",
		}, []string{"operation", "result"})

		conflictRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_conflict_retries_total",
			Help: "Units retried after losing a lock or serialization race",
		}, []string{"operation"})

		ledgerImbalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Accounts found with a balance that disagrees with the ledger",
		})

		mismatchedAccountsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_mismatched_accounts",
			Help: "Accounts out of balance in the latest reconciliation run",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		pickupCodeRejectCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pickup_code_rejections_total",
			Help: "Rejected pickup code submissions",
		}, []string{"reason"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Post-commit notification outcomes",
		}, []string{"backend", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			settlementCounter,
			conflictRetryCounter,
			ledgerImbalanceCounter,
			mismatchedAccountsGauge,
			idempotencyCounter,
			pickupCodeRejectCounter,
			workerRunCounter,
			notificationCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementSettlement(operation, result string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(operation, result).Inc()
}

func IncrementConflictRetry(operation string) {
	if conflictRetryCounter == nil {
		return
	}
	conflictRetryCounter.WithLabelValues(operation).Inc()
}

func IncrementLedgerImbalance() {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.Inc()
}

func SetMismatchedAccounts(n int) {
	if mismatchedAccountsGauge == nil {
		return
	}
	mismatchedAccountsGauge.Set(float64(n))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementPickupCodeRejection(reason string) {
	if pickupCodeRejectCounter == nil {
		return
	}
	pickupCodeRejectCounter.WithLabelValues(reason).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementNotification(backend, result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(backend, result).Inc()
}
