package service

import (
	"context"
	"sort"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ============================================================
// Batch aggregation — session/branch reports
// ============================================================

// ProgressFunc receives (batchesCompleted, batchesTotal) after each batch.
// Purely observational; aggregation never depends on it.
type ProgressFunc func(completed, total int)

// AggregateSession reconciles every student matching the filter and rolls
// the results up into session/branch summaries.
//
// Students are processed in fixed-size batches: fetches within a batch run
// concurrently (each student's computation is pure given its inputs), the
// merge after each batch is the sole writer of the running totals. One
// student failing excludes that student and increments the failure count;
// the aggregation itself always completes. Cancellation is honored between
// batches.
func (s *LedgerService) AggregateSession(ctx context.Context, filter domain.ReportFilter, progress ProgressFunc) (*domain.SessionReport, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AggregateSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("filter.session", filter.Session),
		attribute.String("filter.course", filter.Course),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("aggregate_session", time.Since(start)) }()

	students, err := s.store.ListStudents(ctx, filter)
	if err != nil {
		return nil, err
	}

	batchesTotal := (len(students) + s.batchSize - 1) / s.batchSize
	report := &domain.SessionReport{
		Filter:        filter,
		StudentsTotal: len(students),
		BatchesTotal:  batchesTotal,
		GeneratedAt:   time.Now(),
	}
	groups := make(map[[2]string]*domain.SessionBranchSummary)

	for batchIdx := 0; batchIdx*s.batchSize < len(students); batchIdx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lo := batchIdx * s.batchSize
		hi := lo + s.batchSize
		if hi > len(students) {
			hi = len(students)
		}
		batch := students[lo:hi]

		summaries, failures := s.reconcileBatch(ctx, batch)

		// Merge phase: sequential, after the parallel fetch phase ends.
		for _, summary := range summaries {
			key := [2]string{summary.Session, summary.Course}
			group, ok := groups[key]
			if !ok {
				group = &domain.SessionBranchSummary{Session: summary.Session, Course: summary.Course}
				groups[key] = group
			}
			group.Merge(summary)
			report.StudentsIncluded++
			report.MissingTransactions += summary.MissingTransactions
		}
		report.StudentsFailed += failures

		s.metrics.SetBatchProgress(batchIdx+1, batchesTotal)
		if progress != nil {
			progress(batchIdx+1, batchesTotal)
		}

		// Small pause between batches bounds outstanding requests against
		// the data store.
		if hi < len(students) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	report.Groups = make([]domain.SessionBranchSummary, 0, len(groups))
	for _, group := range groups {
		report.Groups = append(report.Groups, *group)
	}
	sort.Slice(report.Groups, func(i, j int) bool {
		if report.Groups[i].Session != report.Groups[j].Session {
			return report.Groups[i].Session < report.Groups[j].Session
		}
		return report.Groups[i].Course < report.Groups[j].Course
	})

	s.logger.Info("session aggregation completed",
		zap.String("session", filter.Session),
		zap.String("course", filter.Course),
		zap.Int("students_total", report.StudentsTotal),
		zap.Int("students_included", report.StudentsIncluded),
		zap.Int("students_failed", report.StudentsFailed),
		zap.Int("batches", batchesTotal),
	)

	return report, nil
}

// reconcileBatch reconciles one batch of students concurrently. Each
// goroutine writes only its own slot, so no locking is needed; failures are
// logged and counted, never propagated.
func (s *LedgerService) reconcileBatch(ctx context.Context, batch []domain.StudentRef) ([]*domain.StudentSummary, int) {
	slots := make([]*domain.StudentSummary, len(batch))
	errs := make([]error, len(batch))

	g, gCtx := errgroup.WithContext(ctx)
	for i, ref := range batch {
		i, ref := i, ref
		g.Go(func() error {
			if err := s.bulkhead.Acquire(gCtx); err != nil {
				errs[i] = &domain.ErrPartialFailure{StudentID: ref.ID, Err: err}
				return nil
			}
			defer s.bulkhead.Release()

			summary, err := s.ReconcileStudent(gCtx, ref.ID)
			if err != nil {
				errs[i] = &domain.ErrPartialFailure{StudentID: ref.ID, Err: err}
				return nil
			}
			summary.Session = ref.Session
			summary.Course = ref.Course
			slots[i] = summary
			return nil
		})
	}
	// Goroutines never return errors; Wait only synchronizes.
	_ = g.Wait()

	failures := 0
	summaries := make([]*domain.StudentSummary, 0, len(batch))
	for i := range batch {
		if errs[i] != nil {
			failures++
			s.logger.Warn("student excluded from aggregation", zap.Error(errs[i]))
			continue
		}
		if slots[i] != nil {
			summaries = append(summaries, slots[i])
		}
	}
	return summaries, failures
}
