// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/edusuite/fee-ledger-go/internal/domain"
)

// FeeStructureStore retrieves and updates a student's installment schedule.
type FeeStructureStore interface {
	// GetFeeStructure returns the raw installment rows for one student.
	// Returns *domain.ErrNotFound when the student has no fee structure.
	GetFeeStructure(ctx context.Context, studentID string) ([]domain.FeeStructureRow, error)

	// UpdateInstallmentPayment appends a transaction id to the installment's
	// paid set and sets (or clears, when nil) its balance override.
	UpdateInstallmentPayment(ctx context.Context, installmentID, transactionID string, balanceOverride *float64) error
}

// TransactionStore retrieves and records payment transactions.
type TransactionStore interface {
	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)

	// GetTransactions resolves a batch of ids. Ids with no matching record
	// are simply absent from the result; the caller decides what that means.
	GetTransactions(ctx context.Context, transactionIDs []string) ([]domain.Transaction, error)

	// RecordTransaction persists a new transaction, assigning an id if the
	// caller left it blank. Transactions are immutable once recorded.
	RecordTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
}

// VariableFeeStore handles ad-hoc charge data operations.
type VariableFeeStore interface {
	GetVariableFees(ctx context.Context, studentID string) ([]domain.VariableFee, error)
	GetVariableFee(ctx context.Context, feeID string) (*domain.VariableFee, error)
	MarkVariableFeePaid(ctx context.Context, feeID string) error
	WriteOffVariableFee(ctx context.Context, feeID string) error
}

// StudentDirectory lists students for session/branch aggregation.
type StudentDirectory interface {
	ListStudents(ctx context.Context, filter domain.ReportFilter) ([]domain.StudentRef, error)
}

// LedgerStore is the full data surface the ledger service needs.
// Implemented by the campusdb adapter (or any other backend).
type LedgerStore interface {
	FeeStructureStore
	TransactionStore
	VariableFeeStore
	StudentDirectory
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
