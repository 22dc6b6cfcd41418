package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/handler"
	"github.com/edusuite/fee-ledger-go/internal/infra/cache"
	"github.com/edusuite/fee-ledger-go/internal/infra/campusdb"
	"github.com/edusuite/fee-ledger-go/internal/infra/observability"
	"github.com/edusuite/fee-ledger-go/internal/infra/resilience"
	"github.com/edusuite/fee-ledger-go/internal/service"

	"go.uber.org/zap"
)

// campusBackend is an in-memory stand-in for the campus data API, speaking
// the same filter dialect the campusdb client emits (eq., in.(...)).
type campusBackend struct {
	mu       sync.Mutex
	feeRows  []domain.FeeStructureRow
	txs      []domain.Transaction
	fees     []domain.VariableFee
	students []domain.StudentRef
}

func eqFilter(r *http.Request, key string) (string, bool) {
	v := r.URL.Query().Get(key)
	if strings.HasPrefix(v, "eq.") {
		return strings.TrimPrefix(v, "eq."), true
	}
	return "", false
}

func inFilter(r *http.Request, key string) ([]string, bool) {
	v := r.URL.Query().Get(key)
	if strings.HasPrefix(v, "in.(") && strings.HasSuffix(v, ")") {
		return strings.Split(strings.TrimSuffix(strings.TrimPrefix(v, "in.("), ")"), ","), true
	}
	return nil, false
}

func (b *campusBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/fee_structures", b.feeStructures)
	mux.HandleFunc("/rest/v1/fee_transactions", b.transactions)
	mux.HandleFunc("/rest/v1/variable_fees", b.variableFees)
	mux.HandleFunc("/rest/v1/students", b.listStudents)
	return mux
}

func writeRows(w http.ResponseWriter, rows any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (b *campusBackend) feeStructures(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		out := []domain.FeeStructureRow{}
		for _, row := range b.feeRows {
			if studentID, ok := eqFilter(r, "student_id"); ok && row.StudentID != studentID {
				continue
			}
			if id, ok := eqFilter(r, "id"); ok && row.ID != id {
				continue
			}
			out = append(out, row)
		}
		writeRows(w, out)

	case http.MethodPatch:
		var upd struct {
			PaidTransactionIDs []string `json:"paid_transaction_ids"`
			BalanceOverride    *float64 `json:"balance_override"`
		}
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, _ := eqFilter(r, "id")
		for i := range b.feeRows {
			if b.feeRows[i].ID == id {
				b.feeRows[i].PaidTransactionIDs = upd.PaidTransactionIDs
				b.feeRows[i].BalanceOverride = upd.BalanceOverride
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *campusBackend) transactions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		out := []domain.Transaction{}
		id, hasEq := eqFilter(r, "id")
		ids, hasIn := inFilter(r, "id")
		for _, tx := range b.txs {
			if hasEq && tx.ID != id {
				continue
			}
			if hasIn {
				found := false
				for _, want := range ids {
					if tx.ID == want {
						found = true
						break
					}
				}
				if !found {
					continue
				}
			}
			out = append(out, tx)
		}
		writeRows(w, out)

	case http.MethodPost:
		var tx domain.Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.txs = append(b.txs, tx)
		w.WriteHeader(http.StatusCreated)
		writeRows(w, []domain.Transaction{tx})
	}
}

func (b *campusBackend) variableFees(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		out := []domain.VariableFee{}
		for _, fee := range b.fees {
			if studentID, ok := eqFilter(r, "student_id"); ok && fee.StudentID != studentID {
				continue
			}
			if id, ok := eqFilter(r, "id"); ok && fee.ID != id {
				continue
			}
			out = append(out, fee)
		}
		writeRows(w, out)

	case http.MethodPatch:
		var upd struct {
			Paid     *bool `json:"paid"`
			WriteOff *bool `json:"write_off"`
		}
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, _ := eqFilter(r, "id")
		for i := range b.fees {
			if b.fees[i].ID == id {
				if upd.Paid != nil {
					b.fees[i].Paid = *upd.Paid
				}
				if upd.WriteOff != nil {
					b.fees[i].WriteOff = *upd.WriteOff
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b *campusBackend) listStudents(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []domain.StudentRef{}
	for _, ref := range b.students {
		if session, ok := eqFilter(r, "session"); ok && ref.Session != session {
			continue
		}
		if course, ok := eqFilter(r, "course"); ok && ref.Course != course {
			continue
		}
		out = append(out, ref)
	}
	writeRows(w, out)
}

func f(v float64) *float64 { return &v }

func newStack(t *testing.T, backend *campusBackend) (http.Handler, func()) {
	t.Helper()
	server := httptest.NewServer(backend.handler())

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("test")
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	store := campusdb.NewClient(httpClient, server.URL, "anon", "service", cb, cfg, logger)
	svc := service.NewLedgerService(
		store,
		cache.New[[]domain.FeeStructureRow](5*time.Minute),
		metrics,
		logger,
		10, // maxConcurrency
		10, // batchSize
		0,  // batchPause
	)

	return handler.NewRouter(svc, metrics, logger, ""), server.Close
}

// TestIntegration_PaymentFlow runs the full payment lifecycle against a mock
// campus backend: reconcile, pay with variable fees riding along, partial
// payment with balance override, receipt lookup.
func TestIntegration_PaymentFlow(t *testing.T) {
	backend := &campusBackend{
		feeRows: []domain.FeeStructureRow{
			{ID: "i1", StudentID: "s1", Course: "BSC", InstallmentNumber: 1, TuitionFee: f(4000), ExamFee: f(1000)},
			{ID: "i2", StudentID: "s1", Course: "BSC", InstallmentNumber: 2, TuitionFee: f(5000)},
		},
		fees: []domain.VariableFee{
			{ID: "vf1", StudentID: "s1", Particular: "lab kit", Amount: 800},
		},
		students: []domain.StudentRef{{ID: "s1", Session: "2025-26", Course: "BSC"}},
	}
	router, shutdown := newStack(t, backend)
	defer shutdown()

	// 1. Initial ledger: everything due.
	var summary domain.StudentSummary
	doJSON(t, router, http.MethodGet, "/v1/students/s1/ledger", nil, http.StatusOK, &summary)
	if summary.TotalDue != 10000 || summary.TotalPaid != 0 {
		t.Fatalf("initial ledger: expected due 10000 paid 0, got %.2f/%.2f", summary.TotalDue, summary.TotalPaid)
	}

	// 2. Pay the first installment plus the outstanding variable fee.
	var tx domain.Transaction
	doJSON(t, router, http.MethodPost, "/v1/payments", domain.PaymentRequest{
		StudentID:     "s1",
		DepositAmount: 5800,
		Mode:          domain.ModeCash,
	}, http.StatusCreated, &tx)
	if tx.VariableFeesPortion != 800 || tx.RegularContribution() != 5000 {
		t.Fatalf("expected 5000 regular + 800 variable, got %.2f + %.2f",
			tx.RegularContribution(), tx.VariableFeesPortion)
	}

	// 3. The ledger reflects it; the variable fee is settled.
	doJSON(t, router, http.MethodGet, "/v1/students/s1/ledger", nil, http.StatusOK, &summary)
	if summary.TotalDue != 5000 || summary.TotalPaid != 5000 {
		t.Fatalf("after payment: expected due 5000 paid 5000, got %.2f/%.2f", summary.TotalDue, summary.TotalPaid)
	}

	var view domain.VariableFeeLedgerView
	doJSON(t, router, http.MethodGet, "/v1/students/s1/variable-fees", nil, http.StatusOK, &view)
	if len(view.Unpaid) != 0 || view.PaidTotal != 800 {
		t.Fatalf("expected variable fee settled, got %d unpaid / paid total %.2f", len(view.Unpaid), view.PaidTotal)
	}

	// 4. Receipt for the first payment.
	var receipt domain.Receipt
	doJSON(t, router, http.MethodGet, "/v1/transactions/"+tx.ID+"/receipt", nil, http.StatusOK, &receipt)
	if !receipt.IsFirstPayment || receipt.ReceiptIndex != 1 {
		t.Fatalf("expected first receipt, got index %d first=%v", receipt.ReceiptIndex, receipt.IsFirstPayment)
	}

	// 5. Partial payment on the second installment records the balance.
	var partial domain.Transaction
	doJSON(t, router, http.MethodPost, "/v1/payments", domain.PaymentRequest{
		StudentID:     "s1",
		DepositAmount: 2000,
		Mode:          domain.ModeCash,
	}, http.StatusCreated, &partial)

	doJSON(t, router, http.MethodGet, "/v1/students/s1/ledger", nil, http.StatusOK, &summary)
	if summary.TotalDue != 3000 {
		t.Fatalf("after partial payment: expected due 3000, got %.2f", summary.TotalDue)
	}

	// 6. Paying the remaining balance chains to the partial payment.
	var final domain.Transaction
	doJSON(t, router, http.MethodPost, "/v1/payments", domain.PaymentRequest{
		StudentID:     "s1",
		DepositAmount: 3000,
		Mode:          domain.ModeCash,
	}, http.StatusCreated, &final)
	if final.PreviousTransactionID != partial.ID {
		t.Fatalf("expected chain to %s, got %q", partial.ID, final.PreviousTransactionID)
	}

	doJSON(t, router, http.MethodGet, "/v1/transactions/"+final.ID+"/receipt", nil, http.StatusOK, &receipt)
	if receipt.IsFirstPayment || receipt.ReceiptIndex != 2 || receipt.TotalReceipts != 2 {
		t.Fatalf("expected receipt 2/2, got %d/%d first=%v",
			receipt.ReceiptIndex, receipt.TotalReceipts, receipt.IsFirstPayment)
	}

	// 7. Fully settled: the session report shows zero due.
	var report domain.SessionReport
	doJSON(t, router, http.MethodGet, "/v1/reports/session?session=2025-26", nil, http.StatusOK, &report)
	if report.StudentsIncluded != 1 || report.StudentsFailed != 0 {
		t.Fatalf("expected 1 student included, got %d/%d failed", report.StudentsIncluded, report.StudentsFailed)
	}
	if len(report.Groups) != 1 || report.Groups[0].TotalDue != 0 {
		t.Fatalf("expected settled group, got %+v", report.Groups)
	}
}

func TestIntegration_WriteOffBlocksPayment(t *testing.T) {
	backend := &campusBackend{
		fees: []domain.VariableFee{
			{ID: "vf1", StudentID: "s1", Particular: "duplicate charge", Amount: 250},
		},
	}
	router, shutdown := newStack(t, backend)
	defer shutdown()

	req := httptest.NewRequest(http.MethodPost, "/v1/variable-fees/vf1/write-off", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("write-off: expected 204, got %d (%s)", rec.Code, rec.Body.String())
	}

	body, _ := json.Marshal(domain.VariableAllocationRequest{
		StudentID:   "s1",
		Allocations: map[string]float64{"vf1": 250},
		Mode:        domain.ModeCash,
	})
	req = httptest.NewRequest(http.MethodPost, "/v1/variable-fees/allocate", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("allocation after write-off: expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

// doJSON performs one request against the router and decodes the response.
func doJSON(t *testing.T, router http.Handler, method, path string, payload any, wantStatus int, out any) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d. Body: %s", method, path, wantStatus, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
}
