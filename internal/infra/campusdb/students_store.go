package campusdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/edusuite/fee-ledger-go/internal/domain"
)

// ============================================================
// Student directory — implements port.StudentDirectory
// ============================================================

func (c *Client) ListStudents(ctx context.Context, filter domain.ReportFilter) ([]domain.StudentRef, error) {
	ctx, span := tracer.Start(ctx, "Campusdb.ListStudents")
	defer span.End()

	conditions := []string{"order=id.asc"}
	if filter.Session != "" {
		conditions = append(conditions, fmt.Sprintf("session=eq.%s", url.QueryEscape(filter.Session)))
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("course=eq.%s", url.QueryEscape(filter.Course)))
	}

	path := "students?" + strings.Join(conditions, "&")
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var rows []domain.StudentRef
	if body != nil {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode students: %w", err)
		}
	}
	return rows, nil
}
