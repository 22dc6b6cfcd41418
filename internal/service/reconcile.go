package service

import (
	"context"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Installment reconciliation
// ============================================================

// ReconcileStudent computes a student's full ledger position: per-installment
// due/paid/balance, year-band buckets and student totals. The result is
// derived, owned by the caller, and never persisted.
func (s *LedgerService) ReconcileStudent(ctx context.Context, studentID string) (*domain.StudentSummary, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ReconcileStudent")
	defer span.End()
	span.SetAttributes(attribute.String("student.id", studentID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("reconcile_student", time.Since(start)) }()

	rows, err := s.feeStructure(ctx, studentID)
	if err != nil {
		s.metrics.IncrReconciliation("failed")
		return nil, err
	}
	installments := NormalizeInstallments(rows)

	// One batched lookup for every transaction referenced by any regular
	// installment. Ids without a record are simply absent from the result.
	txByID, err := s.referencedTransactions(ctx, installments)
	if err != nil {
		s.metrics.IncrReconciliation("failed")
		return nil, err
	}

	summary := buildStudentSummary(studentID, installments, txByID)

	s.metrics.IncrReconciliation("success")
	s.metrics.AddMissingTransactions(summary.MissingTransactions)
	s.metrics.AddScholarshipClamped(summary.ScholarshipClamped)

	if summary.MissingTransactions > 0 {
		s.logger.Warn("reconciliation found dangling transaction references",
			zap.String("student_id", studentID),
			zap.Int("missing_transactions", summary.MissingTransactions),
		)
	}

	return summary, nil
}

// referencedTransactions resolves every transaction id referenced by the
// regular installments in one store call.
func (s *LedgerService) referencedTransactions(ctx context.Context, installments []domain.Installment) (map[string]domain.Transaction, error) {
	var ids []string
	for _, inst := range installments {
		if !inst.IsRegular {
			continue
		}
		ids = append(ids, inst.PaidTransactionIDs...)
	}
	if len(ids) == 0 {
		return map[string]domain.Transaction{}, nil
	}

	txs, err := s.store.GetTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}

	txByID := make(map[string]domain.Transaction, len(txs))
	for _, tx := range txs {
		txByID[tx.ID] = tx
	}
	return txByID, nil
}

// buildStudentSummary is the pure reconciliation core. Given normalized
// installments and the resolved transactions, it never fails.
func buildStudentSummary(studentID string, installments []domain.Installment, txByID map[string]domain.Transaction) *domain.StudentSummary {
	summary := &domain.StudentSummary{StudentID: studentID}

	for _, inst := range installments {
		if inst.Course != "" && summary.Course == "" {
			summary.Course = inst.Course
		}
		if inst.ScholarshipClamped {
			summary.ScholarshipClamped++
		}
		if !inst.IsRegular {
			// Variable-only placeholder: a "paid" marker here must not be
			// misread as settling a zero-amount regular fee.
			continue
		}

		status, missing := reconcileInstallment(inst, txByID)
		summary.MissingTransactions += missing
		summary.Installments = append(summary.Installments, status)

		band := &summary.Years[status.YearBand-1]
		band.NetFee += status.NetFee
		band.Paid += status.Paid
		band.Due += status.Due

		summary.TotalNetFee += status.NetFee
		summary.TotalPaid += status.Paid
		summary.TotalDue += status.Due
	}

	return summary
}

// reconcileInstallment computes due/paid for one regular installment.
//
// A balance override (set when a prior partial payment recorded the
// remaining balance) takes precedence over recomputing from transactions.
// Otherwise contributions exclude variable-fee money and the applied total
// is clamped to the net fee, so paid never exceeds netFee and due is never
// negative.
func reconcileInstallment(inst domain.Installment, txByID map[string]domain.Transaction) (domain.InstallmentStatus, int) {
	status := domain.InstallmentStatus{
		InstallmentID: inst.ID,
		Number:        inst.Number,
		YearBand:      inst.YearBand,
		NetFee:        inst.NetFee,
	}

	if inst.BalanceOverride != nil {
		due := *inst.BalanceOverride
		if due < 0 {
			due = 0
		}
		paid := inst.NetFee - due
		if paid < 0 {
			paid = 0
		}
		status.Due = due
		status.Paid = paid
		status.OverrideApplied = true
		return status, 0
	}

	missing := 0
	rawPaid := 0.0
	for _, id := range inst.PaidTransactionIDs {
		tx, ok := txByID[id]
		if !ok {
			// Dangling reference: contributes zero, surfaced as a
			// diagnostic count rather than failing the student.
			missing++
			continue
		}
		rawPaid += tx.RegularContribution()
	}

	applied := rawPaid
	if applied > inst.NetFee {
		applied = inst.NetFee
	}
	if applied < 0 {
		applied = 0
	}

	status.Paid = applied
	status.Due = inst.NetFee - applied
	return status, missing
}
