package service_test

import (
	"testing"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/service"
)

func TestNormalizeInstallments_SortsAndCoerces(t *testing.T) {
	rows := []domain.FeeStructureRow{
		{ID: "i3", StudentID: "s1", InstallmentNumber: 3, TuitionFee: f(1000)},
		{ID: "i1", StudentID: "s1", InstallmentNumber: 1, TuitionFee: f(2000), ExamFee: f(500)},
		{ID: "i2", StudentID: "s1", InstallmentNumber: 2}, // all amounts missing
	}

	installments := service.NormalizeInstallments(rows)

	if len(installments) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(installments))
	}
	if installments[0].ID != "i1" || installments[1].ID != "i2" || installments[2].ID != "i3" {
		t.Errorf("not sorted by installment number: %s %s %s",
			installments[0].ID, installments[1].ID, installments[2].ID)
	}

	if installments[0].NetFee != 2500 {
		t.Errorf("expected net fee 2500, got %.2f", installments[0].NetFee)
	}
	if !installments[0].IsRegular {
		t.Error("installment with components should be regular")
	}

	// Sparse row degrades to a zero-amount non-regular installment.
	if installments[1].NetFee != 0 {
		t.Errorf("missing amounts should coerce to 0, got %.2f", installments[1].NetFee)
	}
	if installments[1].IsRegular {
		t.Error("all-zero installment must not be regular")
	}
}

func TestNormalizeInstallments_ScholarshipClamp(t *testing.T) {
	rows := []domain.FeeStructureRow{
		{ID: "i1", StudentID: "s1", InstallmentNumber: 1, TuitionFee: f(1000), Scholarship: f(1500)},
	}

	installments := service.NormalizeInstallments(rows)

	if installments[0].NetFee != 0 {
		t.Errorf("excess scholarship must clamp net fee to 0, got %.2f", installments[0].NetFee)
	}
	if !installments[0].ScholarshipClamped {
		t.Error("expected the clamp to be flagged")
	}
	if !installments[0].IsRegular {
		t.Error("clamped installment still has components, must stay regular")
	}
}

func TestNormalizeInstallments_YearBands(t *testing.T) {
	cases := []struct {
		number int
		band   int
	}{
		{1, 1}, {4, 1}, {5, 2}, {8, 2}, {9, 3}, {12, 3},
		{13, 3}, // beyond 12 clamps to the last band
		{0, 1},
	}

	for _, tc := range cases {
		rows := []domain.FeeStructureRow{
			{ID: "i", StudentID: "s1", InstallmentNumber: tc.number, TuitionFee: f(100)},
		}
		got := service.NormalizeInstallments(rows)[0].YearBand
		if got != tc.band {
			t.Errorf("installment %d: expected year band %d, got %d", tc.number, tc.band, got)
		}
	}
}
