package campusdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edusuite/fee-ledger-go/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// Transactions — implements port.TransactionStore
// ============================================================

func (c *Client) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.GetTransaction")
	defer span.End()

	path := fmt.Sprintf("fee_transactions?id=eq.%s&limit=1", url.QueryEscape(transactionID))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []domain.Transaction
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	return &rows[0], nil
}

func (c *Client) GetTransactions(ctx context.Context, transactionIDs []string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.GetTransactions")
	defer span.End()

	if len(transactionIDs) == 0 {
		return []domain.Transaction{}, nil
	}

	escaped := make([]string, len(transactionIDs))
	for i, id := range transactionIDs {
		escaped[i] = url.QueryEscape(id)
	}
	path := fmt.Sprintf("fee_transactions?id=in.(%s)&order=payment_date.asc", strings.Join(escaped, ","))
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	// Ids with no matching record are simply absent; the reconciler treats
	// them as zero contribution.
	var rows []domain.Transaction
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
	}
	return rows, nil
}

func (c *Client) RecordTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.RecordTransaction")
	defer span.End()

	record := *tx
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	body, err := c.doRequest(ctx, http.MethodPost, "fee_transactions", record)
	if err != nil {
		return nil, err
	}

	var rows []domain.Transaction
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode recorded transaction: %w", err)
		}
	}
	if len(rows) == 0 {
		// Some deployments omit the representation; the record we sent is
		// authoritative enough for the caller.
		return &record, nil
	}
	return &rows[0], nil
}
