package domain

// ============================================================
// Receipts
// ============================================================

// PreviousPayments sums everything already paid against the same
// installment before the receipt's transaction.
type PreviousPayments struct {
	Components   FeeComponents `json:"components"`
	VariableFees float64       `json:"variable_fees"`
	Total        float64       `json:"total"`
	Transactions []Transaction `json:"transactions"` // ascending by payment date
}

// Receipt is the read-side view handed to document rendering. Composing it
// has no side effects.
//
// ReceiptIndex is the 1-based position of the transaction in its
// installment's continuation chain; TotalReceipts is the chain length.
type Receipt struct {
	Transaction      Transaction       `json:"transaction"`
	IsFirstPayment   bool              `json:"is_first_payment"`
	ReceiptIndex     int               `json:"receipt_index"`
	TotalReceipts    int               `json:"total_receipts"`
	PreviousPayments *PreviousPayments `json:"previous_payments,omitempty"`
}
