package domain

// ============================================================
// Requests
// ============================================================

// PaymentRequest is the payload to record a payment against a regular
// installment. When InstallmentID is empty the processor targets the
// student's first due installment.
type PaymentRequest struct {
	StudentID     string        `json:"student_id"`
	InstallmentID string        `json:"installment_id,omitempty"`
	DepositAmount float64       `json:"deposit_amount"`
	Components    FeeComponents `json:"components"`
	Mode          string        `json:"mode"`
	ModeReference string        `json:"mode_reference,omitempty"`
	Remark        string        `json:"remark,omitempty"`
	PaymentDate   string        `json:"payment_date,omitempty"` // YYYY-MM-DD, defaults to today
}

// VariableAllocationRequest pays one or more variable fees. Allocations map
// fee id → amount; each amount is clamped to [0, fee.Amount].
type VariableAllocationRequest struct {
	StudentID     string             `json:"student_id"`
	Allocations   map[string]float64 `json:"allocations"`
	Mode          string             `json:"mode"`
	ModeReference string             `json:"mode_reference,omitempty"`
	Remark        string             `json:"remark,omitempty"`
	PaymentDate   string             `json:"payment_date,omitempty"`
}

// VariableFeeLedgerView groups a student's variable fees by state.
type VariableFeeLedgerView struct {
	StudentID    string        `json:"student_id"`
	Unpaid       []VariableFee `json:"unpaid"`
	Paid         []VariableFee `json:"paid"`
	WrittenOff   []VariableFee `json:"written_off"`
	UnpaidTotal  float64       `json:"unpaid_total"`
	PaidTotal    float64       `json:"paid_total"`
	WrittenTotal float64       `json:"written_off_total"`
}
