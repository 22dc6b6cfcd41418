package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/infra/cache"
	"github.com/edusuite/fee-ledger-go/internal/infra/observability"
	"github.com/edusuite/fee-ledger-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

// mockStore is an in-memory port.LedgerStore. Mutating calls change its
// state so multi-step flows (pay, then reconcile) behave like the real
// backend.
type mockStore struct {
	mu       sync.Mutex
	feeRows  map[string][]domain.FeeStructureRow
	txs      map[string]domain.Transaction
	fees     map[string]domain.VariableFee
	students []domain.StudentRef

	// failFeeStructure makes GetFeeStructure fail for the given student ids.
	failFeeStructure map[string]error

	recorded      []domain.Transaction
	lastOverride  *float64
	overrideSet   bool
	markedPaid    []string
	writtenOff    []string
	listStudentsN int
}

func newMockStore() *mockStore {
	return &mockStore{
		feeRows:          map[string][]domain.FeeStructureRow{},
		txs:              map[string]domain.Transaction{},
		fees:             map[string]domain.VariableFee{},
		failFeeStructure: map[string]error{},
	}
}

func (m *mockStore) GetFeeStructure(_ context.Context, studentID string) ([]domain.FeeStructureRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFeeStructure[studentID]; ok {
		return nil, err
	}
	rows, ok := m.feeRows[studentID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "fee structure", ID: studentID}
	}
	out := make([]domain.FeeStructureRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *mockStore) UpdateInstallmentPayment(_ context.Context, installmentID, transactionID string, balanceOverride *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for studentID, rows := range m.feeRows {
		for i := range rows {
			if rows[i].ID == installmentID {
				rows[i].PaidTransactionIDs = append(rows[i].PaidTransactionIDs, transactionID)
				rows[i].BalanceOverride = balanceOverride
				m.feeRows[studentID] = rows
				m.lastOverride = balanceOverride
				m.overrideSet = true
				return nil
			}
		}
	}
	return &domain.ErrNotFound{Resource: "installment", ID: installmentID}
}

func (m *mockStore) GetTransaction(_ context.Context, transactionID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[transactionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	return &tx, nil
}

func (m *mockStore) GetTransactions(_ context.Context, transactionIDs []string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, id := range transactionIDs {
		if tx, ok := m.txs[id]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *mockStore) RecordTransaction(_ context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := *tx
	if record.ID == "" {
		record.ID = fmt.Sprintf("tx-%d", len(m.txs)+1)
	}
	m.txs[record.ID] = record
	m.recorded = append(m.recorded, record)
	return &record, nil
}

func (m *mockStore) GetVariableFees(_ context.Context, studentID string) ([]domain.VariableFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VariableFee
	for _, fee := range m.fees {
		if fee.StudentID == studentID {
			out = append(out, fee)
		}
	}
	return out, nil
}

func (m *mockStore) GetVariableFee(_ context.Context, feeID string) (*domain.VariableFee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fee, ok := m.fees[feeID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "variable fee", ID: feeID}
	}
	return &fee, nil
}

func (m *mockStore) MarkVariableFeePaid(_ context.Context, feeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fee, ok := m.fees[feeID]
	if !ok {
		return &domain.ErrNotFound{Resource: "variable fee", ID: feeID}
	}
	fee.Paid = true
	m.fees[feeID] = fee
	m.markedPaid = append(m.markedPaid, feeID)
	return nil
}

func (m *mockStore) WriteOffVariableFee(_ context.Context, feeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fee, ok := m.fees[feeID]
	if !ok {
		return &domain.ErrNotFound{Resource: "variable fee", ID: feeID}
	}
	fee.WriteOff = true
	m.fees[feeID] = fee
	m.writtenOff = append(m.writtenOff, feeID)
	return nil
}

func (m *mockStore) ListStudents(_ context.Context, filter domain.ReportFilter) ([]domain.StudentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listStudentsN++
	var out []domain.StudentRef
	for _, ref := range m.students {
		if filter.Session != "" && ref.Session != filter.Session {
			continue
		}
		if filter.Course != "" && ref.Course != filter.Course {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}

// --- Helpers ---

func newTestService(store *mockStore) *service.LedgerService {
	return service.NewLedgerService(
		store,
		cache.New[[]domain.FeeStructureRow](time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
		4,  // maxConcurrency
		10, // batchSize
		0,  // batchPause
	)
}

func f(v float64) *float64 { return &v }

// feeRow builds a regular installment row with the given tuition fee.
func feeRow(id, studentID string, number int, tuition float64) domain.FeeStructureRow {
	return domain.FeeStructureRow{
		ID:                id,
		StudentID:         studentID,
		Course:            "BSC",
		InstallmentNumber: number,
		TuitionFee:        f(tuition),
	}
}
