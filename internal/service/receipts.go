package service

import (
	"context"
	"sort"

	"github.com/edusuite/fee-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Receipt composition — read-side only
// ============================================================

// ComposeReceipt reconstructs, for one transaction, the chronological
// payment history against the same installment. Purely a read-side view:
// it produces no side effects.
func (s *LedgerService) ComposeReceipt(ctx context.Context, transactionID string) (*domain.Receipt, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ComposeReceipt")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	receipt := &domain.Receipt{
		Transaction:    *tx,
		IsFirstPayment: tx.PreviousTransactionID == "",
		ReceiptIndex:   1,
		TotalReceipts:  1,
	}

	// Pure variable-fee payments have no installment and no chain.
	if tx.InstallmentID == "" {
		return receipt, nil
	}

	chain, err := s.installmentChain(ctx, tx)
	if err != nil {
		return nil, err
	}

	receipt.TotalReceipts = len(chain)
	for i, link := range chain {
		if link.ID == tx.ID {
			receipt.ReceiptIndex = i + 1
			break
		}
	}

	if receipt.IsFirstPayment {
		return receipt, nil
	}

	prev := &domain.PreviousPayments{Transactions: []domain.Transaction{}}
	for _, link := range chain {
		if link.ID == tx.ID {
			continue
		}
		prev.Components.Tuition += link.Components.Tuition
		prev.Components.Exam += link.Components.Exam
		prev.Components.Hostel += link.Components.Hostel
		prev.Components.Admission += link.Components.Admission
		prev.Components.Prospectus += link.Components.Prospectus
		prev.VariableFees += link.VariableFeesPortion
		prev.Total += link.DepositAmount
		prev.Transactions = append(prev.Transactions, link)
	}
	receipt.PreviousPayments = prev

	return receipt, nil
}

// installmentChain resolves every transaction recorded against the
// installment and orders the continuation chain.
//
// Ordering follows the previous-transaction links (a genuine traversal,
// not a scan by field equality); if a link is missing the chain falls back
// to ascending payment date.
func (s *LedgerService) installmentChain(ctx context.Context, tx *domain.Transaction) ([]domain.Transaction, error) {
	rows, err := s.feeStructure(ctx, tx.StudentID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, row := range rows {
		if row.ID == tx.InstallmentID {
			ids = row.PaidTransactionIDs
			break
		}
	}
	if len(ids) == 0 {
		return []domain.Transaction{*tx}, nil
	}

	txs, err := s.store.GetTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}

	if ordered, ok := orderByChain(txs); ok {
		return ordered, nil
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].PaymentDate.Before(txs[j].PaymentDate)
	})
	return txs, nil
}

// orderByChain walks the previous-transaction linked list from its root.
// Returns false when the chain is broken (dangling or duplicate links).
func orderByChain(txs []domain.Transaction) ([]domain.Transaction, bool) {
	if len(txs) == 0 {
		return nil, false
	}

	byID := make(map[string]domain.Transaction, len(txs))
	nextOf := make(map[string]string, len(txs))
	var rootID string

	for _, tx := range txs {
		byID[tx.ID] = tx
		if tx.PreviousTransactionID == "" {
			if rootID != "" {
				return nil, false // two roots: not a single chain
			}
			rootID = tx.ID
			continue
		}
		if _, dup := nextOf[tx.PreviousTransactionID]; dup {
			return nil, false
		}
		nextOf[tx.PreviousTransactionID] = tx.ID
	}
	if rootID == "" {
		return nil, false
	}

	ordered := make([]domain.Transaction, 0, len(txs))
	for id := rootID; id != ""; id = nextOf[id] {
		tx, ok := byID[id]
		if !ok {
			return nil, false
		}
		ordered = append(ordered, tx)
	}
	if len(ordered) != len(txs) {
		return nil, false
	}
	return ordered, true
}
