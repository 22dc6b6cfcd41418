package campusdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/edusuite/fee-ledger-go/internal/domain"
)

// ============================================================
// Fee structures — implements port.FeeStructureStore
// ============================================================

func (c *Client) GetFeeStructure(ctx context.Context, studentID string) ([]domain.FeeStructureRow, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.GetFeeStructure")
	defer span.End()

	path := fmt.Sprintf("fee_structures?student_id=eq.%s&order=installment_number.asc", url.QueryEscape(studentID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []domain.FeeStructureRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode fee structure: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "fee structure", ID: studentID}
	}
	return rows, nil
}

func (c *Client) UpdateInstallmentPayment(ctx context.Context, installmentID, transactionID string, balanceOverride *float64) error {
	ctx, span := tracer.Start(ctx, "Campusdb.UpdateInstallmentPayment")
	defer span.End()

	// The API has no server-side array append, so read-modify-write the
	// paid set. Installment rows are only ever written through this path.
	path := fmt.Sprintf("fee_structures?id=eq.%s&limit=1", url.QueryEscape(installmentID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	var rows []domain.FeeStructureRow
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode installment: %w", err)
		}
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}

	updates := map[string]any{
		"paid_transaction_ids": append(rows[0].PaidTransactionIDs, transactionID),
		"balance_override":     balanceOverride, // nil clears the override
	}

	patchPath := fmt.Sprintf("fee_structures?id=eq.%s", url.QueryEscape(installmentID))
	if _, err := c.doRequest(ctx, http.MethodPatch, patchPath, updates); err != nil {
		return err
	}
	return nil
}
