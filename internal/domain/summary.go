package domain

import "time"

// ============================================================
// Reconciliation results
// ============================================================

// InstallmentStatus is the reconciled view of one regular installment.
type InstallmentStatus struct {
	InstallmentID   string  `json:"installment_id"`
	Number          int     `json:"installment_number"`
	YearBand        int     `json:"year_band"`
	NetFee          float64 `json:"net_fee"`
	Paid            float64 `json:"paid"`
	Due             float64 `json:"due"`
	OverrideApplied bool    `json:"override_applied,omitempty"`
}

// YearTotals accumulates figures for one year band.
type YearTotals struct {
	NetFee float64 `json:"net_fee"`
	Paid   float64 `json:"paid"`
	Due    float64 `json:"due"`
}

// Add folds another set of totals in.
func (y *YearTotals) Add(o YearTotals) {
	y.NetFee += o.NetFee
	y.Paid += o.Paid
	y.Due += o.Due
}

// StudentSummary is the derived per-student ledger position. It is rebuilt
// on every reconciliation pass and never persisted.
//
// MissingTransactions counts paid_transaction_ids entries with no matching
// transaction record; those contribute zero and are surfaced as a
// diagnostic instead of failing the student.
type StudentSummary struct {
	StudentID           string              `json:"student_id"`
	Session             string              `json:"session,omitempty"`
	Course              string              `json:"course,omitempty"`
	Years               [3]YearTotals       `json:"years"` // index 0 = year band 1
	TotalNetFee         float64             `json:"total_net_fee"`
	TotalPaid           float64             `json:"total_paid"`
	TotalDue            float64             `json:"total_due"`
	Installments        []InstallmentStatus `json:"installments,omitempty"`
	MissingTransactions int                 `json:"missing_transactions,omitempty"`
	ScholarshipClamped  int                 `json:"scholarship_clamped,omitempty"`
}

// ============================================================
// Session / branch aggregation
// ============================================================

// StudentRef identifies a student within a session and course, as listed by
// the student directory.
type StudentRef struct {
	ID      string `json:"id"`
	Session string `json:"session"`
	Course  string `json:"course"`
}

// ReportFilter narrows a session report to a session and/or course.
// Empty fields match everything.
type ReportFilter struct {
	Session string `json:"session,omitempty"`
	Course  string `json:"course,omitempty"`
}

// SessionBranchSummary aggregates student summaries for one
// (session, course) pair. Purely additive, so merge order never matters.
type SessionBranchSummary struct {
	Session     string        `json:"session"`
	Course      string        `json:"course"`
	Students    int           `json:"students"`
	Years       [3]YearTotals `json:"years"`
	TotalNetFee float64       `json:"total_net_fee"`
	TotalPaid   float64       `json:"total_paid"`
	TotalDue    float64       `json:"total_due"`
}

// Merge folds one student summary into the group totals.
func (s *SessionBranchSummary) Merge(sum *StudentSummary) {
	s.Students++
	for i := range s.Years {
		s.Years[i].Add(sum.Years[i])
	}
	s.TotalNetFee += sum.TotalNetFee
	s.TotalPaid += sum.TotalPaid
	s.TotalDue += sum.TotalDue
}

// SessionReport is the outcome of a batch aggregation run. Failures are
// reported as counts; aggregation is best-effort, never all-or-nothing.
type SessionReport struct {
	Filter              ReportFilter           `json:"filter"`
	Groups              []SessionBranchSummary `json:"groups"`
	StudentsTotal       int                    `json:"students_total"`
	StudentsIncluded    int                    `json:"students_included"`
	StudentsFailed      int                    `json:"students_failed"`
	BatchesTotal        int                    `json:"batches_total"`
	MissingTransactions int                    `json:"missing_transactions,omitempty"`
	GeneratedAt         time.Time              `json:"generated_at"`
}
