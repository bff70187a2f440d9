package agentproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
	"github.com/Intent-Gate/Intentgate/internal/domain/intent"
)

// HTTPClient talks to the management-plane JSON API. It satisfies
// Enforcer and Registrar, and answers the warm-up check through the
// boundary listing endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPTimeout sets the request timeout. Defaults to 5 seconds.
func WithHTTPTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithHTTPClient sets a custom http.Client, useful for testing or
// custom transports.
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a management-plane client. The key must carry
// at least the agent role.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enforce submits one intent event and returns the verdict. Transport
// errors are returned as-is; the proxy turns them into a block.
func (c *HTTPClient) Enforce(ctx context.Context, ev *intent.Event) (*boundary.ComparisonResult, error) {
	var result boundary.ComparisonResult
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/enforce", ev, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterAgent announces the agent to the gateway.
func (c *HTTPClient) RegisterAgent(ctx context.Context, reg Registration) error {
	return c.doRequest(ctx, http.MethodPost, "/api/v1/agents/register", reg, nil)
}

// ActiveBoundaryCount returns how many boundaries the caller's tenant
// has installed.
func (c *HTTPClient) ActiveBoundaryCount(ctx context.Context) (int, error) {
	var list []json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/boundaries", nil, &list); err != nil {
		return 0, err
	}
	return len(list), nil
}

// doRequest performs one JSON request against the gateway.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
