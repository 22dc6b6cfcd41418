package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/infra/observability"
	"github.com/edusuite/fee-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// tokenSecret enables the service-token check on write endpoints; an empty
// secret leaves them open (local development).
func NewRouter(svc *service.LedgerService, metrics *observability.Metrics, logger *zap.Logger, tokenSecret string) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Student ledger (read side)
		// =============================================
		r.Get("/students/{studentID}/ledger", getLedgerHandler(svc, logger))
		r.Get("/students/{studentID}/installments", getInstallmentsHandler(svc, logger))
		r.Get("/students/{studentID}/variable-fees", getVariableFeesHandler(svc, logger))

		// =============================================
		// Receipts
		// =============================================
		r.Get("/transactions/{txID}/receipt", getReceiptHandler(svc, logger))

		// =============================================
		// Reports & metrics
		// =============================================
		r.Get("/reports/session", sessionReportHandler(svc, logger))
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics, logger))

		// =============================================
		// Payments (write side, service token required)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(ServiceTokenMiddleware(tokenSecret, logger))
			r.Post("/payments", createPaymentHandler(svc, logger))
			r.Post("/variable-fees/allocate", allocateVariableFeesHandler(svc, logger))
			r.Post("/variable-fees/{feeID}/write-off", writeOffHandler(svc, logger))
		})
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.HealthStatus{Status: "healthy", Store: "healthy"}
		if svc == nil {
			status.Store = "unconfigured"
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := svc.StoreHealthy(ctx); err != nil {
				logger.Warn("healthz: store probe failed", zap.Error(err))
				status.Status = "degraded"
				status.Store = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// ============================================================
// Student ledger
// ============================================================

func getLedgerHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/students/{studentID}/ledger")
		defer span.End()

		studentID := chi.URLParam(r, "studentID")
		if studentID == "" {
			writeError(w, http.StatusBadRequest, "student_id is required")
			return
		}
		span.SetAttributes(attribute.String("student.id", studentID))

		summary, err := svc.ReconcileStudent(ctx, studentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func getInstallmentsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/students/{studentID}/installments")
		defer span.End()

		studentID := chi.URLParam(r, "studentID")
		span.SetAttributes(attribute.String("student.id", studentID))

		summary, err := svc.ReconcileStudent(ctx, studentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// First due installment is where the next payment lands; absence
		// just means the student is settled.
		resp := map[string]any{"installments": summary.Installments}
		if firstDue, err := svc.FirstDueInstallment(ctx, studentID); err == nil {
			resp["first_due"] = firstDue
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getVariableFeesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/students/{studentID}/variable-fees")
		defer span.End()

		studentID := chi.URLParam(r, "studentID")
		span.SetAttributes(attribute.String("student.id", studentID))

		view, err := svc.ListVariableFees(ctx, studentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ============================================================
// Payments
// ============================================================

func createPaymentHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/payments")
		defer span.End()

		var req domain.PaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.StudentID == "" {
			writeError(w, http.StatusBadRequest, "student_id is required")
			return
		}
		span.SetAttributes(attribute.String("student.id", req.StudentID))

		tx, err := svc.CreatePayment(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func allocateVariableFeesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/variable-fees/allocate")
		defer span.End()

		var req domain.VariableAllocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.StudentID == "" {
			writeError(w, http.StatusBadRequest, "student_id is required")
			return
		}
		span.SetAttributes(attribute.String("student.id", req.StudentID))

		tx, err := svc.AllocateVariableFees(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func writeOffHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/variable-fees/{feeID}/write-off")
		defer span.End()

		feeID := chi.URLParam(r, "feeID")
		if feeID == "" {
			writeError(w, http.StatusBadRequest, "fee_id is required")
			return
		}
		span.SetAttributes(attribute.String("fee.id", feeID))

		if err := svc.WriteOffVariableFee(ctx, feeID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Receipts
// ============================================================

func getReceiptHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{txID}/receipt")
		defer span.End()

		txID := chi.URLParam(r, "txID")
		if txID == "" {
			writeError(w, http.StatusBadRequest, "transaction_id is required")
			return
		}
		span.SetAttributes(attribute.String("transaction.id", txID))

		receipt, err := svc.ComposeReceipt(ctx, txID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, receipt)
	}
}

// ============================================================
// Reports & metrics
// ============================================================

func sessionReportHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/session")
		defer span.End()

		filter := domain.ReportFilter{
			Session: r.URL.Query().Get("session"),
			Course:  r.URL.Query().Get("course"),
		}
		span.SetAttributes(
			attribute.String("report.session", filter.Session),
			attribute.String("report.course", filter.Course),
		)

		report, err := svc.AggregateSession(ctx, filter, nil)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}
