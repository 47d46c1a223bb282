package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

const (
	salesEndpoint      = "/v1/sales"
	heldSalesEndpoint  = "/v1/held-sales/"
	maxErrorBodyBytes  = 64 << 10
	idempotencyHeader  = "Idempotency-Key"
	terminalIDHeader   = "X-Terminal-Id"
	defaultContentType = "application/json"
)

// GatewayConfig identifies the remote service and this terminal.
type GatewayConfig struct {
	// BaseURL is the service root, e.g. https://pos.example.com
	BaseURL string

	// AuthKey is sent as a bearer token
	AuthKey string

	// TerminalID is sent in X-Terminal-Id for server-side attribution
	TerminalID string

	// IdempotencyKeys sends the queued operation id as Idempotency-Key
	// when one is present in the request context.
	IdempotencyKeys bool
}

// Gateway implements ports.Gateway over JSON/HTTP.
type Gateway struct {
	client ports.HTTPClient
	cfg    GatewayConfig
	logger ports.Logger
}

var _ ports.Gateway = (*Gateway)(nil)

// NewGateway creates a new HTTP gateway client.
func NewGateway(client ports.HTTPClient, cfg GatewayConfig, logger ports.Logger) *Gateway {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{client: client, cfg: cfg, logger: logger}
}

// SubmitSale creates a new sale.
func (g *Gateway) SubmitSale(ctx context.Context, sale domain.SalePayload) (domain.SaleRecord, error) {
	return g.post(ctx, salesEndpoint, sale)
}

// ResumeHeldTransaction completes a held sale with payments.
func (g *Gateway) ResumeHeldTransaction(ctx context.Context, heldSaleID string, payments []domain.Payment) (domain.SaleRecord, error) {
	body := struct {
		Payments []domain.Payment `json:"payments"`
	}{Payments: payments}
	return g.post(ctx, heldSalesEndpoint+url.PathEscape(heldSaleID)+"/resume", body)
}

func (g *Gateway) post(ctx context.Context, path string, body any) (domain.SaleRecord, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.SaleRecord{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return domain.SaleRecord{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", defaultContentType)
	req.Header.Set("Accept", defaultContentType)
	if g.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.AuthKey)
	}
	if g.cfg.TerminalID != "" {
		req.Header.Set(terminalIDHeader, g.cfg.TerminalID)
	}
	if g.cfg.IdempotencyKeys {
		if id, ok := domain.OperationIDFromContext(ctx); ok {
			req.Header.Set(idempotencyHeader, id)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.SaleRecord{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		gerr := &domain.GatewayError{StatusCode: resp.StatusCode}
		gerr.Code, gerr.Message = extractError(respBody)
		g.logger.Debug("gateway rejected request",
			log.String("path", path),
			log.Int("status", resp.StatusCode),
			log.String("message", gerr.Message),
		)
		return domain.SaleRecord{}, gerr
	}

	var record domain.SaleRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil && !errors.Is(err, io.EOF) {
		return domain.SaleRecord{}, fmt.Errorf("decode response: %w", err)
	}
	return record, nil
}

// errorBody covers the error shapes the service is known to return.
type errorBody struct {
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Error   json.RawMessage `json:"error"`
	Errors  []struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"errors"`
}

// extractError pulls a human-readable message out of an error response.
// Looks at "message", then "error" (string or {"message"}), then errors[0].
// A non-JSON body is used verbatim when short.
func extractError(body []byte) (code, message string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > 0 && len(text) <= 200 && !strings.HasPrefix(text, "<") {
			return "", text
		}
		return "", ""
	}

	code = eb.Code
	if eb.Message != "" {
		return code, eb.Message
	}
	if len(eb.Error) > 0 {
		var s string
		if json.Unmarshal(eb.Error, &s) == nil && s != "" {
			return code, s
		}
		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal(eb.Error, &nested) == nil && nested.Message != "" {
			if code == "" {
				code = nested.Code
			}
			return code, nested.Message
		}
	}
	if len(eb.Errors) > 0 && eb.Errors[0].Message != "" {
		if code == "" {
			code = eb.Errors[0].Code
		}
		return code, eb.Errors[0].Message
	}
	return code, ""
}
