package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	ledgerEntryCounter    *prometheus.CounterVec
	keyUnwrapFailures     prometheus.Counter
	imbalanceCounter      prometheus.Counter
	workerRunCounter      *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerEntryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries appended, by terminal status",
		}, []string{"status"})

		keyUnwrapFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "envelope_key_unwrap_failures_total",
			Help: "Data key unwrap failures (corrupt or mismatched key material)",
		})

		imbalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_reconciliation_imbalances_total",
			Help: "Accounts whose balance diverged from their ledger history",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerEntryCounter,
			keyUnwrapFailures,
			imbalanceCounter,
			workerRunCounter,
			idempotencyCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerEntry(status string) {
	if ledgerEntryCounter == nil {
		return
	}
	ledgerEntryCounter.WithLabelValues(status).Inc()
}

func IncrementKeyUnwrapFailure() {
	if keyUnwrapFailures == nil {
		return
	}
	keyUnwrapFailures.Inc()
}

func IncrementImbalance() {
	if imbalanceCounter == nil {
		return
	}
	imbalanceCounter.Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}
