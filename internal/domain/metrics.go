package domain

// LedgerMetrics is the operational snapshot served by /v1/metrics/ledger.
type LedgerMetrics struct {
	ReconciliationsTotal  int64   `json:"reconciliations_total"`
	ReconciliationsFailed int64   `json:"reconciliations_failed"`
	FailureRate           float64 `json:"failure_rate"`
	CacheHitRate          float64 `json:"cache_hit_rate"`
	Period                string  `json:"period"`
}

// HealthStatus is the payload of the /healthz endpoint.
type HealthStatus struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
}
