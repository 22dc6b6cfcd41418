package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Variable fee ledger — ad-hoc charges outside the schedule
// ============================================================

// ListVariableFees returns a student's variable fees grouped by state.
func (s *LedgerService) ListVariableFees(ctx context.Context, studentID string) (*domain.VariableFeeLedgerView, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListVariableFees")
	defer span.End()

	fees, err := s.store.GetVariableFees(ctx, studentID)
	if err != nil {
		return nil, err
	}

	view := &domain.VariableFeeLedgerView{
		StudentID:  studentID,
		Unpaid:     []domain.VariableFee{},
		Paid:       []domain.VariableFee{},
		WrittenOff: []domain.VariableFee{},
	}
	for _, fee := range fees {
		switch {
		case fee.WriteOff:
			view.WrittenOff = append(view.WrittenOff, fee)
			view.WrittenTotal += fee.Amount
		case fee.Paid:
			view.Paid = append(view.Paid, fee)
			view.PaidTotal += fee.Amount
		default:
			view.Unpaid = append(view.Unpaid, fee)
			view.UnpaidTotal += fee.Amount
		}
	}
	return view, nil
}

// AllocateVariableFees pays one or more variable fees. Each allocation is
// clamped to [0, fee.Amount]; the resulting transaction carries the whole
// sum as VariableFeesPortion with an all-zero component breakdown, so this
// money can never leak into a regular installment's paid figure.
func (s *LedgerService) AllocateVariableFees(ctx context.Context, req *domain.VariableAllocationRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AllocateVariableFees")
	defer span.End()
	span.SetAttributes(attribute.String("student.id", req.StudentID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("variable_allocation", time.Since(start)) }()

	if req.StudentID == "" {
		return nil, &domain.ErrValidation{Field: "student_id", Message: "required"}
	}
	if len(req.Allocations) == 0 {
		return nil, &domain.ErrValidation{Field: "allocations", Message: "at least one fee allocation required"}
	}
	if err := validatePaymentMode(req.Mode, req.ModeReference); err != nil {
		return nil, err
	}
	paymentDate, err := parsePaymentDate(req.PaymentDate)
	if err != nil {
		return nil, err
	}

	fees, err := s.store.GetVariableFees(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	feeByID := make(map[string]domain.VariableFee, len(fees))
	for _, fee := range fees {
		feeByID[fee.ID] = fee
	}

	// Walk allocations in a stable order so clamping and settlement are
	// deterministic regardless of map iteration.
	feeIDs := make([]string, 0, len(req.Allocations))
	for id := range req.Allocations {
		feeIDs = append(feeIDs, id)
	}
	sort.Strings(feeIDs)

	total := 0.0
	settled := make([]string, 0, len(feeIDs))
	for _, id := range feeIDs {
		fee, ok := feeByID[id]
		if !ok || fee.StudentID != req.StudentID {
			return nil, &domain.ErrNotFound{Resource: "variable fee", ID: id}
		}
		if fee.WriteOff {
			return nil, &domain.ErrWriteOff{FeeID: id}
		}
		if fee.Paid {
			return nil, &domain.ErrValidation{Field: "allocations", Message: fmt.Sprintf("fee %s already paid", id)}
		}

		amount := req.Allocations[id]
		if amount < 0 {
			amount = 0
		}
		if amount > fee.Amount {
			amount = fee.Amount
		}
		total += amount
		if amount == fee.Amount {
			settled = append(settled, id)
		}
	}

	if total <= 0 {
		return nil, &domain.ErrValidation{Field: "allocations", Message: "total allocation must be positive"}
	}

	tx := &domain.Transaction{
		ID:                  uuid.New().String(),
		StudentID:           req.StudentID,
		DepositAmount:       total,
		VariableFeesPortion: total,
		Mode:                req.Mode,
		ModeReference:       req.ModeReference,
		Remark:              req.Remark,
		PaymentDate:         paymentDate,
		CreatedAt:           time.Now(),
	}

	recorded, err := s.store.RecordTransaction(ctx, tx)
	if err != nil {
		s.logger.Error("failed to record variable fee transaction",
			zap.String("student_id", req.StudentID), zap.Error(err))
		return nil, err
	}

	// Exact/full allocations settle the fee; partial ones leave it open.
	for _, id := range settled {
		if markErr := s.store.MarkVariableFeePaid(ctx, id); markErr != nil {
			s.logger.Error("failed to mark variable fee paid",
				zap.String("fee_id", id),
				zap.String("transaction_id", recorded.ID),
				zap.Error(markErr))
		}
	}

	s.metrics.IncrPaymentRecorded(req.Mode)
	s.logger.Info("variable fees allocated",
		zap.String("student_id", req.StudentID),
		zap.String("transaction_id", recorded.ID),
		zap.Float64("amount", total),
		zap.Int("fees_settled", len(settled)),
	)

	return recorded, nil
}

// WriteOffVariableFee irreversibly resolves a fee without payment. A fee
// that is already paid or already written off cannot be written off.
func (s *LedgerService) WriteOffVariableFee(ctx context.Context, feeID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.WriteOffVariableFee")
	defer span.End()

	fee, err := s.store.GetVariableFee(ctx, feeID)
	if err != nil {
		return err
	}
	if fee.Paid || fee.WriteOff {
		return &domain.ErrNotFound{Resource: "open variable fee", ID: feeID}
	}

	if err := s.store.WriteOffVariableFee(ctx, feeID); err != nil {
		return err
	}

	s.metrics.IncrWriteOff()
	s.logger.Info("variable fee written off",
		zap.String("fee_id", feeID),
		zap.String("student_id", fee.StudentID),
		zap.Float64("amount", fee.Amount),
	)
	return nil
}
