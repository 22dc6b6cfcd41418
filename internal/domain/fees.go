// Package domain defines the core business entities for the fee ledger.
// These models are independent of external services and represent the
// canonical data structures used throughout the reconciliation engine.
package domain

import "time"

// ============================================================
// Payment modes
// ============================================================

const (
	ModeCash   = "cash"
	ModeOnline = "online"
	ModeUPI    = "upi"
	ModeCheque = "cheque"
)

// ModeRequiresReference reports whether a payment mode needs an external
// reference id (UTR, cheque number, gateway id). Cash does not.
func ModeRequiresReference(mode string) bool {
	switch mode {
	case ModeOnline, ModeUPI, ModeCheque:
		return true
	}
	return false
}

// ============================================================
// Fee structure
// ============================================================

// FeeStructureRow is one raw installment record as returned by the campus
// data API. Numeric fields are pointers: the upstream rows are sparse and a
// missing amount must be coerced to 0 by the normalizer, never implicitly.
type FeeStructureRow struct {
	ID                 string   `json:"id"`
	StudentID          string   `json:"student_id"`
	Course             string   `json:"course"`
	InstallmentNumber  int      `json:"installment_number"`
	TuitionFee         *float64 `json:"tuition_fee,omitempty"`
	ExamFee            *float64 `json:"exam_fee,omitempty"`
	HostelFee          *float64 `json:"hostel_fee,omitempty"`
	AdmissionFee       *float64 `json:"admission_fee,omitempty"`
	ProspectusFee      *float64 `json:"prospectus_fee,omitempty"`
	Scholarship        *float64 `json:"scholarship,omitempty"`
	PaidTransactionIDs []string `json:"paid_transaction_ids,omitempty"`
	BalanceOverride    *float64 `json:"balance_override,omitempty"`
}

// FeeComponents is the standard fee component breakdown shared by
// installments and transactions.
type FeeComponents struct {
	Tuition    float64 `json:"tuition"`
	Exam       float64 `json:"exam"`
	Hostel     float64 `json:"hostel"`
	Admission  float64 `json:"admission"`
	Prospectus float64 `json:"prospectus"`
}

// Sum returns the total of all components before scholarship.
func (c FeeComponents) Sum() float64 {
	return c.Tuition + c.Exam + c.Hostel + c.Admission + c.Prospectus
}

// Installment is a normalized, typed installment record.
//
// NetFee = components − scholarship, floored at 0. IsRegular is false for
// rows that exist only as variable-fee carriers (all components zero); those
// never enter regular reconciliation.
type Installment struct {
	ID                 string        `json:"id"`
	StudentID          string        `json:"student_id"`
	Course             string        `json:"course"`
	Number             int           `json:"installment_number"`
	Components         FeeComponents `json:"components"`
	Scholarship        float64       `json:"scholarship"`
	NetFee             float64       `json:"net_fee"`
	IsRegular          bool          `json:"is_regular"`
	YearBand           int           `json:"year_band"` // 1..3, ceil(number/4) clamped
	ScholarshipClamped bool          `json:"scholarship_clamped,omitempty"`
	PaidTransactionIDs []string      `json:"paid_transaction_ids,omitempty"`
	BalanceOverride    *float64      `json:"balance_override,omitempty"`
}

// ============================================================
// Transactions
// ============================================================

// Transaction is one payment against a student's ledger. Immutable once
// recorded: later transactions reference it, they never change it.
//
// VariableFeesPortion is the part of DepositAmount that settles variable
// fees; it must never count toward a regular installment's paid figure.
// PreviousTransactionID forms the continuation chain when one installment
// is settled across multiple partial payments.
type Transaction struct {
	ID                    string        `json:"id"`
	StudentID             string        `json:"student_id"`
	InstallmentID         string        `json:"installment_id,omitempty"`
	DepositAmount         float64       `json:"deposit_amount"`
	VariableFeesPortion   float64       `json:"variable_fees_portion"`
	Components            FeeComponents `json:"components"`
	Mode                  string        `json:"mode"`
	ModeReference         string        `json:"mode_reference,omitempty"`
	Remark                string        `json:"remark,omitempty"`
	PaymentDate           time.Time     `json:"payment_date"`
	PreviousTransactionID string        `json:"previous_transaction_id,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
}

// RegularContribution is the part of the deposit that applies to the
// regular installment: everything except the variable-fee money.
func (t Transaction) RegularContribution() float64 {
	return t.DepositAmount - t.VariableFeesPortion
}

// ============================================================
// Variable fees
// ============================================================

// VariableFee is an ad-hoc charge (exam extras, miscellaneous) tracked
// outside the installment schedule. WriteOff is terminal: once set the fee
// is excluded from dues forever and accepts no further payment.
type VariableFee struct {
	ID         string  `json:"id"`
	StudentID  string  `json:"student_id"`
	Particular string  `json:"particular"`
	Amount     float64 `json:"amount"`
	Paid       bool    `json:"paid"`
	WriteOff   bool    `json:"write_off"`
}

// Outstanding reports whether the fee still counts toward the unpaid total.
func (f VariableFee) Outstanding() bool {
	return !f.Paid && !f.WriteOff
}
