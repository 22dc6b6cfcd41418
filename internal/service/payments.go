package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// amountEpsilon absorbs float slop when comparing money amounts.
const amountEpsilon = 0.01

// ============================================================
// Payment transaction processing
// ============================================================

// FirstDueInstallment returns the student's earliest regular installment
// that still has a due amount. Variable fees ride on this installment and
// no other.
func (s *LedgerService) FirstDueInstallment(ctx context.Context, studentID string) (*domain.Installment, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.FirstDueInstallment")
	defer span.End()

	rows, err := s.feeStructure(ctx, studentID)
	if err != nil {
		return nil, err
	}
	installments := NormalizeInstallments(rows)

	txByID, err := s.referencedTransactions(ctx, installments)
	if err != nil {
		return nil, err
	}

	for _, inst := range installments {
		if !inst.IsRegular {
			continue
		}
		status, _ := reconcileInstallment(inst, txByID)
		if status.Due > 0 {
			found := inst
			return &found, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "due installment", ID: studentID}
}

// CreatePayment validates and shapes a payment (full, partial, or
// balance-only) into an immutable transaction record.
//
// The due total is the installment's balance override when a prior partial
// payment recorded one; otherwise it is the net fee plus — only on the
// student's first due installment — the outstanding variable fees. A
// remaining balance chains the transaction to its predecessor and becomes
// the installment's override for the next round.
func (s *LedgerService) CreatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreatePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("student.id", req.StudentID),
		attribute.Float64("amount", req.DepositAmount),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_payment", time.Since(start)) }()

	if req.StudentID == "" {
		return nil, &domain.ErrValidation{Field: "student_id", Message: "required"}
	}
	if req.DepositAmount <= 0 {
		return nil, &domain.ErrValidation{Field: "deposit_amount", Message: "must be positive"}
	}
	if err := validatePaymentMode(req.Mode, req.ModeReference); err != nil {
		return nil, err
	}
	paymentDate, err := parsePaymentDate(req.PaymentDate)
	if err != nil {
		return nil, err
	}

	firstDue, err := s.FirstDueInstallment(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	target := firstDue
	if req.InstallmentID != "" && req.InstallmentID != firstDue.ID {
		target, err = s.findInstallment(ctx, req.StudentID, req.InstallmentID)
		if err != nil {
			return nil, err
		}
	}

	// Variable fees ride on the first due installment, never duplicated
	// across installments.
	variableTotal := 0.0
	var outstanding []domain.VariableFee
	if target.ID == firstDue.ID && target.BalanceOverride == nil {
		fees, feesErr := s.store.GetVariableFees(ctx, req.StudentID)
		if feesErr != nil {
			return nil, feesErr
		}
		for _, fee := range fees {
			if fee.Outstanding() {
				outstanding = append(outstanding, fee)
				variableTotal += fee.Amount
			}
		}
	}

	totalAmount := target.NetFee + variableTotal
	if target.BalanceOverride != nil {
		// "Pay remaining balance" path: the override is the due amount.
		totalAmount = *target.BalanceOverride
	}

	deposit := req.DepositAmount
	if deposit > totalAmount {
		deposit = totalAmount
	}
	if deposit <= 0 {
		return nil, &domain.ErrValidation{Field: "deposit_amount", Message: "nothing due on this installment"}
	}

	// Regular money first; whatever exceeds the regular due settles
	// variable fees.
	regularDue := totalAmount - variableTotal
	regularPortion := math.Min(deposit, regularDue)
	variablePortion := deposit - regularPortion

	components := req.Components
	if components.Sum() == 0 {
		components = prorateComponents(target, regularPortion)
	} else if math.Abs(components.Sum()-regularPortion) > amountEpsilon {
		return nil, &domain.ErrValidation{
			Field:   "components",
			Message: fmt.Sprintf("breakdown sums to %.2f, regular portion is %.2f", components.Sum(), regularPortion),
		}
	}

	tx := &domain.Transaction{
		ID:                  uuid.New().String(),
		StudentID:           req.StudentID,
		InstallmentID:       target.ID,
		DepositAmount:       deposit,
		VariableFeesPortion: variablePortion,
		Components:          components,
		Mode:                req.Mode,
		ModeReference:       req.ModeReference,
		Remark:              req.Remark,
		PaymentDate:         paymentDate,
		CreatedAt:           time.Now(),
	}
	if n := len(target.PaidTransactionIDs); n > 0 {
		tx.PreviousTransactionID = target.PaidTransactionIDs[n-1]
	}

	recorded, err := s.store.RecordTransaction(ctx, tx)
	if err != nil {
		s.logger.Error("failed to record payment transaction",
			zap.String("student_id", req.StudentID),
			zap.String("installment_id", target.ID),
			zap.Error(err))
		return nil, err
	}

	balance := totalAmount - deposit
	var override *float64
	if balance > amountEpsilon {
		override = &balance
	}
	if err := s.store.UpdateInstallmentPayment(ctx, target.ID, recorded.ID, override); err != nil {
		s.logger.Error("failed to update installment after payment",
			zap.String("installment_id", target.ID),
			zap.String("transaction_id", recorded.ID),
			zap.Error(err))
		return nil, err
	}
	s.invalidateFeeStructure(req.StudentID)

	s.settleVariableFees(ctx, outstanding, variablePortion, recorded.ID)

	s.metrics.IncrPaymentRecorded(req.Mode)
	s.logger.Info("payment recorded",
		zap.String("student_id", req.StudentID),
		zap.String("installment_id", target.ID),
		zap.String("transaction_id", recorded.ID),
		zap.Float64("deposit", deposit),
		zap.Float64("variable_portion", variablePortion),
		zap.Float64("balance", balance),
	)

	return recorded, nil
}

// findInstallment resolves one installment of the student's structure.
func (s *LedgerService) findInstallment(ctx context.Context, studentID, installmentID string) (*domain.Installment, error) {
	rows, err := s.feeStructure(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for _, inst := range NormalizeInstallments(rows) {
		if inst.ID == installmentID {
			if !inst.IsRegular {
				return nil, &domain.ErrValidation{Field: "installment_id", Message: "installment carries no regular fees"}
			}
			found := inst
			return &found, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "installment", ID: installmentID}
}

// settleVariableFees marks fees fully covered by the variable portion as
// paid, walking them in order. Failures here are logged, not fatal: the
// transaction is already recorded and the money accounted for.
func (s *LedgerService) settleVariableFees(ctx context.Context, fees []domain.VariableFee, portion float64, transactionID string) {
	remaining := portion
	for _, fee := range fees {
		if remaining+amountEpsilon < fee.Amount {
			break
		}
		if err := s.store.MarkVariableFeePaid(ctx, fee.ID); err != nil {
			s.logger.Error("failed to mark variable fee paid after payment",
				zap.String("fee_id", fee.ID),
				zap.String("transaction_id", transactionID),
				zap.Error(err))
			continue
		}
		remaining -= fee.Amount
	}
}

// prorateComponents splits the regular portion of a deposit across the
// installment's fee components by weight, so partial payments keep a
// meaningful breakdown.
func prorateComponents(inst *domain.Installment, regularPortion float64) domain.FeeComponents {
	sum := inst.Components.Sum()
	if sum <= 0 || regularPortion <= 0 {
		return domain.FeeComponents{}
	}
	factor := regularPortion / sum
	return domain.FeeComponents{
		Tuition:    inst.Components.Tuition * factor,
		Exam:       inst.Components.Exam * factor,
		Hostel:     inst.Components.Hostel * factor,
		Admission:  inst.Components.Admission * factor,
		Prospectus: inst.Components.Prospectus * factor,
	}
}

// validatePaymentMode checks the mode and its reference requirement.
func validatePaymentMode(mode, reference string) error {
	switch mode {
	case domain.ModeCash, domain.ModeOnline, domain.ModeUPI, domain.ModeCheque:
	default:
		return &domain.ErrValidation{Field: "mode", Message: fmt.Sprintf("unknown payment mode %q", mode)}
	}
	if domain.ModeRequiresReference(mode) && reference == "" {
		return &domain.ErrValidation{Field: "mode_reference", Message: fmt.Sprintf("required for %s payments", mode)}
	}
	return nil
}

// parsePaymentDate parses YYYY-MM-DD, defaulting to today.
func parsePaymentDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "payment_date", Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}
