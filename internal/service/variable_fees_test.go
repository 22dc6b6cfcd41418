package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/edusuite/fee-ledger-go/internal/domain"
)

func TestListVariableFees_GroupsByState(t *testing.T) {
	store := newMockStore()
	store.fees["vf1"] = domain.VariableFee{ID: "vf1", StudentID: "s1", Amount: 500}
	store.fees["vf2"] = domain.VariableFee{ID: "vf2", StudentID: "s1", Amount: 300, Paid: true}
	store.fees["vf3"] = domain.VariableFee{ID: "vf3", StudentID: "s1", Amount: 200, WriteOff: true}
	store.fees["vf4"] = domain.VariableFee{ID: "vf4", StudentID: "other", Amount: 999}

	view, err := newTestService(store).ListVariableFees(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(view.Unpaid) != 1 || view.UnpaidTotal != 500 {
		t.Errorf("unpaid: expected 1 fee / 500, got %d / %.2f", len(view.Unpaid), view.UnpaidTotal)
	}
	if len(view.Paid) != 1 || view.PaidTotal != 300 {
		t.Errorf("paid: expected 1 fee / 300, got %d / %.2f", len(view.Paid), view.PaidTotal)
	}
	if len(view.WrittenOff) != 1 || view.WrittenTotal != 200 {
		t.Errorf("written off: expected 1 fee / 200, got %d / %.2f", len(view.WrittenOff), view.WrittenTotal)
	}
}

func TestAllocateVariableFees_ClampsToFeeAmount(t *testing.T) {
	store := newMockStore()
	store.fees["vf1"] = domain.VariableFee{ID: "vf1", StudentID: "s1", Amount: 800}

	tx, err := newTestService(store).AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"vf1": 1000},
		Mode:        domain.ModeCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.DepositAmount != 800 || tx.VariableFeesPortion != 800 {
		t.Errorf("expected clamped 800/800, got %.2f/%.2f", tx.DepositAmount, tx.VariableFeesPortion)
	}
	if tx.Components.Sum() != 0 {
		t.Error("variable-only transaction must carry an all-zero breakdown")
	}
	if len(store.markedPaid) != 1 || store.markedPaid[0] != "vf1" {
		t.Errorf("full allocation must settle the fee, got %v", store.markedPaid)
	}
}

func TestAllocateVariableFees_PartialLeavesFeeOpen(t *testing.T) {
	store := newMockStore()
	store.fees["vf1"] = domain.VariableFee{ID: "vf1", StudentID: "s1", Amount: 800}

	tx, err := newTestService(store).AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"vf1": 300},
		Mode:        domain.ModeCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.DepositAmount != 300 {
		t.Errorf("expected deposit 300, got %.2f", tx.DepositAmount)
	}
	if len(store.markedPaid) != 0 {
		t.Errorf("partial allocation must not settle the fee, got %v", store.markedPaid)
	}
}

func TestAllocateVariableFees_Rejections(t *testing.T) {
	store := newMockStore()
	store.fees["open"] = domain.VariableFee{ID: "open", StudentID: "s1", Amount: 100}
	store.fees["gone"] = domain.VariableFee{ID: "gone", StudentID: "s1", Amount: 100, WriteOff: true}
	store.fees["done"] = domain.VariableFee{ID: "done", StudentID: "s1", Amount: 100, Paid: true}
	svc := newTestService(store)

	_, err := svc.AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"gone": 100},
		Mode:        domain.ModeCash,
	})
	var writeOff *domain.ErrWriteOff
	if !errors.As(err, &writeOff) {
		t.Errorf("written-off fee: expected ErrWriteOff, got %v", err)
	}

	_, err = svc.AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"done": 100},
		Mode:        domain.ModeCash,
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("already paid fee: expected ErrValidation, got %v", err)
	}

	_, err = svc.AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"missing": 100},
		Mode:        domain.ModeCash,
	})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("unknown fee: expected ErrNotFound, got %v", err)
	}

	_, err = svc.AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"open": 100},
		Mode:        domain.ModeUPI, // no reference
	})
	if !errors.As(err, &validation) {
		t.Errorf("upi without reference: expected ErrValidation, got %v", err)
	}

	_, err = svc.AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"open": 0},
		Mode:        domain.ModeCash,
	})
	if !errors.As(err, &validation) {
		t.Errorf("zero total: expected ErrValidation, got %v", err)
	}
}

func TestWriteOffVariableFee_IsTerminal(t *testing.T) {
	store := newMockStore()
	store.fees["vf1"] = domain.VariableFee{ID: "vf1", StudentID: "s1", Amount: 400}
	svc := newTestService(store)

	if err := svc.WriteOffVariableFee(context.Background(), "vf1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.writtenOff) != 1 {
		t.Fatalf("expected the store flag to be set, got %v", store.writtenOff)
	}

	// Writing off again fails: the fee is no longer open.
	err := svc.WriteOffVariableFee(context.Background(), "vf1")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("repeated write-off: expected ErrNotFound, got %v", err)
	}

	// And it accepts no further payment.
	_, err = svc.AllocateVariableFees(context.Background(), &domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"vf1": 400},
		Mode:        domain.ModeCash,
	})
	var writeOff *domain.ErrWriteOff
	if !errors.As(err, &writeOff) {
		t.Errorf("payment after write-off: expected ErrWriteOff, got %v", err)
	}
}

func TestWriteOffVariableFee_PaidFeeRejected(t *testing.T) {
	store := newMockStore()
	store.fees["vf1"] = domain.VariableFee{ID: "vf1", StudentID: "s1", Amount: 400, Paid: true}

	err := newTestService(store).WriteOffVariableFee(context.Background(), "vf1")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound for a paid fee, got %v", err)
	}
}
