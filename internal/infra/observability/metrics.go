package observability

import (
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	storeErrors         *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	reconciliations     *prometheus.CounterVec
	paymentsRecorded    *prometheus.CounterVec
	writeOffs           prometheus.Counter
	missingTransactions prometheus.Counter
	scholarshipClamped  prometheus.Counter
	batchProgress       prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_store_errors_total",
				Help: "Total errors from the campus data store.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reconciliations_total",
				Help: "Total student reconciliations by outcome.",
			},
			[]string{"status"},
		),
		paymentsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_payments_recorded_total",
				Help: "Total payment transactions recorded, by mode.",
			},
			[]string{"mode"},
		),
		writeOffs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_variable_fee_write_offs_total",
				Help: "Total variable fee write-offs.",
			},
		),
		missingTransactions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_missing_transactions_total",
				Help: "Referenced transaction ids with no matching record (data-integrity diagnostic).",
			},
		),
		scholarshipClamped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_scholarship_clamped_total",
				Help: "Installments whose scholarship exceeded fee components and was clamped.",
			},
		),
		batchProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_batch_progress_ratio",
				Help: "Progress of the most recent aggregation run (batches completed / total).",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrReconciliation increments the reconciliation counter with an outcome label.
func (m *Metrics) IncrReconciliation(status string) {
	m.reconciliations.WithLabelValues(status).Inc()
}

// IncrPaymentRecorded increments the payment counter for a mode.
func (m *Metrics) IncrPaymentRecorded(mode string) {
	m.paymentsRecorded.WithLabelValues(mode).Inc()
}

// IncrWriteOff increments the write-off counter.
func (m *Metrics) IncrWriteOff() {
	m.writeOffs.Inc()
}

// AddMissingTransactions records dangling transaction references.
func (m *Metrics) AddMissingTransactions(n int) {
	if n > 0 {
		m.missingTransactions.Add(float64(n))
	}
}

// AddScholarshipClamped records scholarship-exceeds-components occurrences.
func (m *Metrics) AddScholarshipClamped(n int) {
	if n > 0 {
		m.scholarshipClamped.Add(float64(n))
	}
}

// SetBatchProgress updates the aggregation progress gauge.
func (m *Metrics) SetBatchProgress(completed, total int) {
	if total <= 0 {
		return
	}
	m.batchProgress.Set(float64(completed) / float64(total))
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	// Gather current values from Prometheus counters.
	// Note: Prometheus counters expose cumulative values.
	succeeded := getCounterValue(m.reconciliations, "success")
	failed := getCounterValue(m.reconciliations, "failed")
	cacheHits := getCounterValue(m.cacheHits, "fee_structure")
	cacheMisses := getCounterValue(m.cacheMisses, "fee_structure")

	total := succeeded + failed
	failureRate := float64(0)
	cacheHitRate := float64(0)

	if total > 0 {
		failureRate = failed / total
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.LedgerMetrics{
		ReconciliationsTotal:  int64(total),
		ReconciliationsFailed: int64(failed),
		FailureRate:           failureRate,
		CacheHitRate:          cacheHitRate,
		Period:                "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
