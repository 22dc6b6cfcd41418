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
// Variable fees — implements port.VariableFeeStore
// ============================================================

func (c *Client) GetVariableFees(ctx context.Context, studentID string) ([]domain.VariableFee, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.GetVariableFees")
	defer span.End()

	path := fmt.Sprintf("variable_fees?student_id=eq.%s&order=id.asc", url.QueryEscape(studentID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []domain.VariableFee
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode variable fees: %w", err)
		}
	}
	return rows, nil
}

func (c *Client) GetVariableFee(ctx context.Context, feeID string) (*domain.VariableFee, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.GetVariableFee")
	defer span.End()

	path := fmt.Sprintf("variable_fees?id=eq.%s&limit=1", url.QueryEscape(feeID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []domain.VariableFee
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode variable fee: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "variable fee", ID: feeID}
	}
	return &rows[0], nil
}

func (c *Client) MarkVariableFeePaid(ctx context.Context, feeID string) error {
	ctx, span := tracer.Start(ctx, "Campusdb.MarkVariableFeePaid")
	defer span.End()

	path := fmt.Sprintf("variable_fees?id=eq.%s", url.QueryEscape(feeID))
	_, err := c.doRequest(ctx, http.MethodPatch, path, map[string]any{"paid": true})
	return err
}

func (c *Client) WriteOffVariableFee(ctx context.Context, feeID string) error {
	ctx, span := tracer.Start(ctx, "Campusdb.WriteOffVariableFee")
	defer span.End()

	path := fmt.Sprintf("variable_fees?id=eq.%s", url.QueryEscape(feeID))
	_, err := c.doRequest(ctx, http.MethodPatch, path, map[string]any{"write_off": true})
	return err
}
