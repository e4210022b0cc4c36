package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	transferCounter        *prometheus.CounterVec
	transferDuration       prometheus.Histogram
	conflictRetryCounter   prometheus.Counter
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	otpCounter             *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_transfers_total",
			Help: "Transfer attempts by outcome",
		}, []string{"result"})

		transferDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_transfer_duration_seconds",
			Help:    "Time spent inside the transfer engine",
			Buckets: prometheus.DefBuckets,
		})

		conflictRetryCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_transfer_conflict_retries_total",
			Help: "Transfer attempts retried after a version conflict",
		})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times reconciliation found the ledger out of balance",
		}, []string{"check"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		otpCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_otp_events_total",
			Help: "One-time code issue and verification outcomes",
		}, []string{"event"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferCounter,
			transferDuration,
			conflictRetryCounter,
			ledgerImbalanceCounter,
			idempotencyCounter,
			otpCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveTransfer records one finished transfer call.
func ObserveTransfer(result string, duration time.Duration) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(result).Inc()
	transferDuration.Observe(duration.Seconds())
}

func IncrementTransferConflictRetry() {
	if conflictRetryCounter == nil {
		return
	}
	conflictRetryCounter.Inc()
}

func IncrementLedgerImbalance(check string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(check).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementOTPEvent(event string) {
	if otpCounter == nil {
		return
	}
	otpCounter.WithLabelValues(event).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
