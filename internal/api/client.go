package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
)

// Client talks to a running daemon's operator API. The CLI subcommands use it.
type Client struct {
	baseURL string
	http    ports.HTTPClient
}

// NewClient creates a client for the daemon listening at addr
// ("127.0.0.1:7420" or a full URL).
func NewClient(addr string, httpClient ports.HTTPClient) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: base, http: httpClient}
}

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps status codes back onto domain sentinels so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return domain.ErrOperationNotFound
	case http.StatusConflict:
		return domain.ErrNotFailed
	case http.StatusBadRequest:
		return domain.ErrInvalidPayload
	case http.StatusServiceUnavailable:
		return domain.ErrNotRunning
	}
	return nil
}

// Status fetches the queue status view.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/queue", nil, &out)
	return out, err
}

// List fetches queue entries, optionally filtered by status.
func (c *Client) List(ctx context.Context, status domain.Status) ([]OperationResponse, error) {
	path := "/v1/queue/operations"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out ListOperationsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Operations, nil
}

// Get fetches one entry.
func (c *Client) Get(ctx context.Context, id string) (OperationResponse, error) {
	var out OperationResponse
	err := c.do(ctx, http.MethodGet, "/v1/queue/operations/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Enqueue stores a task for replay.
func (c *Client) Enqueue(ctx context.Context, kind domain.Kind, payload json.RawMessage) (OperationResponse, error) {
	var out OperationResponse
	err := c.do(ctx, http.MethodPost, "/v1/queue/operations", TaskRequest{Kind: kind, Payload: payload}, &out)
	return out, err
}

// Retry runs a drain cycle and returns its result.
func (c *Client) Retry(ctx context.Context) (domain.DrainResult, error) {
	var out domain.DrainResult
	err := c.do(ctx, http.MethodPost, "/v1/queue/retry", nil, &out)
	return out, err
}

// RetryOperation resets a failed entry to pending.
func (c *Client) RetryOperation(ctx context.Context, id string) (OperationResponse, error) {
	var out OperationResponse
	err := c.do(ctx, http.MethodPost, "/v1/queue/operations/"+url.PathEscape(id)+"/retry", nil, &out)
	return out, err
}

// Discard removes a failed entry.
func (c *Client) Discard(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/queue/operations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var er ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &er) != nil || er.Error == "" {
			er.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: er.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
