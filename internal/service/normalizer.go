package service

import (
	"sort"

	"github.com/edusuite/fee-ledger-go/internal/domain"
)

// ============================================================
// Fee structure normalization
// ============================================================

// NormalizeInstallments turns raw fee-structure rows into typed
// installments, sorted by installment number. Missing numeric fields are
// coerced to 0 here and nowhere else. It never fails: a malformed row
// degrades to a zero-amount installment, which IsRegular then excludes
// from reconciliation.
func NormalizeInstallments(rows []domain.FeeStructureRow) []domain.Installment {
	installments := make([]domain.Installment, 0, len(rows))

	for _, row := range rows {
		components := domain.FeeComponents{
			Tuition:    deref(row.TuitionFee),
			Exam:       deref(row.ExamFee),
			Hostel:     deref(row.HostelFee),
			Admission:  deref(row.AdmissionFee),
			Prospectus: deref(row.ProspectusFee),
		}
		scholarship := deref(row.Scholarship)

		netFee := components.Sum() - scholarship
		clamped := false
		if netFee < 0 {
			// Scholarship exceeding the components is upstream data slop;
			// a negative due amount is never meaningful.
			netFee = 0
			clamped = true
		}

		installments = append(installments, domain.Installment{
			ID:                 row.ID,
			StudentID:          row.StudentID,
			Course:             row.Course,
			Number:             row.InstallmentNumber,
			Components:         components,
			Scholarship:        scholarship,
			NetFee:             netFee,
			IsRegular:          components.Sum() > 0,
			YearBand:           yearBand(row.InstallmentNumber),
			ScholarshipClamped: clamped,
			PaidTransactionIDs: row.PaidTransactionIDs,
			BalanceOverride:    row.BalanceOverride,
		})
	}

	sort.SliceStable(installments, func(i, j int) bool {
		return installments[i].Number < installments[j].Number
	})

	return installments
}

// yearBand maps an installment number to its year grouping: four
// installments per year, clamped to bands 1..3.
func yearBand(installmentNumber int) int {
	band := (installmentNumber + 3) / 4 // ceil(n/4) for n >= 1
	if band < 1 {
		band = 1
	}
	if band > 3 {
		band = 3
	}
	return band
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
