// Package campusdb provides a client for the institute data API
// (PostgREST-style). It is the real backend for fee structures, payment
// transactions, variable fees and the student directory; the ledger only
// reads raw records from it and writes transactions back.
package campusdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/edusuite/fee-ledger-go/internal/domain"
	"github.com/edusuite/fee-ledger-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("campusdb")

// Client wraps HTTP calls to the campus data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	serviceKey string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a campus data API client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		serviceKey: serviceKey,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// doRequest executes an authenticated request against the data API with
// retry and circuit breaking. A nil payload sends no body.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	var result []byte
	attempt := func() error {
		out, err := c.cb.Execute(func() (any, error) {
			return c.execute(ctx, method, path, body)
		})
		if err != nil {
			return err
		}
		result, _ = out.([]byte)
		return nil
	}

	if err := resilience.RetryWithBackoff(ctx, c.cfg, attempt); err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: "campusdb"}
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) execute(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("campusdb: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("campusdb: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("campusdb: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("campusdb: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, fmt.Errorf("campusdb returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Debug("campusdb: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return respBody, nil
}
