// Package service provides the business logic layer (use cases).
// LedgerService owns fee reconciliation: normalizing fee structures,
// computing per-installment due/paid/balance, the variable-fee ledger,
// payment processing, receipts, and session-wide aggregation.
package service

import (
	"context"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/infra/observability"
	"github.com/edusuite/fee-ledger-go/internal/infra/resilience"
	"github.com/edusuite/fee-ledger-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

// LedgerService orchestrates all fee-ledger operations via the campus store.
// It is stateless: every result is derived from store reads, so concurrent
// reconciliations never share mutable state.
type LedgerService struct {
	store      port.LedgerStore
	feeCache   port.Cache[[]domain.FeeStructureRow]
	metrics    *observability.Metrics
	logger     *zap.Logger
	bulkhead   *resilience.Bulkhead
	batchSize  int
	batchPause time.Duration
}

// NewLedgerService creates the ledger service with all dependencies injected.
// batchSize bounds how many students one aggregation batch holds; batchPause
// is the idle time between batches (backpressure against the data store).
func NewLedgerService(
	store port.LedgerStore,
	feeCache port.Cache[[]domain.FeeStructureRow],
	metrics *observability.Metrics,
	logger *zap.Logger,
	maxConcurrency int,
	batchSize int,
	batchPause time.Duration,
) *LedgerService {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxConcurrency <= 0 {
		maxConcurrency = batchSize
	}
	return &LedgerService{
		store:      store,
		feeCache:   feeCache,
		metrics:    metrics,
		logger:     logger,
		bulkhead:   resilience.NewBulkhead(maxConcurrency),
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// feeStructure returns a student's raw fee rows, TTL-cached.
func (s *LedgerService) feeStructure(ctx context.Context, studentID string) ([]domain.FeeStructureRow, error) {
	cacheKey := "fees:" + studentID
	if rows, ok := s.feeCache.Get(cacheKey); ok {
		s.metrics.IncrCacheHit("fee_structure")
		return rows, nil
	}
	s.metrics.IncrCacheMiss("fee_structure")

	rows, err := s.store.GetFeeStructure(ctx, studentID)
	if err != nil {
		return nil, err
	}
	s.feeCache.Set(cacheKey, rows)
	return rows, nil
}

// invalidateFeeStructure drops the cached rows after a write.
func (s *LedgerService) invalidateFeeStructure(studentID string) {
	s.feeCache.Delete("fees:" + studentID)
}

// StoreHealthy probes the campus store with a cheap read. An unknown student
// yields an empty result, not an error, so only transport failures surface.
func (s *LedgerService) StoreHealthy(ctx context.Context) error {
	_, err := s.store.GetVariableFees(ctx, "healthcheck")
	return err
}
