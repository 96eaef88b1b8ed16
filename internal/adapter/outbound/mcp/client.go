// Package mcp is the outbound JSON-RPC client for upstream MCP servers.
package mcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contextify/contextify/internal/domain/gateway"
	"github.com/contextify/contextify/internal/port/outbound"
)

// maxResponseBodySize caps upstream response bodies to prevent OOM from a
// misbehaving upstream.
const maxResponseBodySize = 10 * 1024 * 1024 // 10MB

// ToolDefinition is one entry of an upstream tools/list result.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// CallResult is the parsed result of an upstream tools/call.
type CallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem is a single MCP content block.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Client issues JSON-RPC requests to upstream MCP servers over HTTP. The
// underlying HTTP client is shared and long-lived; per-call timeouts come
// from the caller's context.
type Client struct {
	doer outbound.HTTPDoer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPDoer replaces the HTTP client, mainly for tests.
func WithHTTPDoer(d outbound.HTTPDoer) ClientOption {
	return func(c *Client) {
		c.doer = d
	}
}

// NewClient creates an upstream client with a shared pooled HTTP transport.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		doer: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTools issues tools/list to the upstream and returns the advertised
// definitions. Connect errors, timeouts, non-2xx statuses, and malformed
// bodies all surface as errors for the aggregator to record.
func (c *Client) ListTools(ctx context.Context, u *gateway.Upstream) ([]ToolDefinition, error) {
	raw, err := c.roundTrip(ctx, u, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result struct {
			Tools []ToolDefinition `json:"tools"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed tools/list response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("upstream error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return envelope.Result.Tools, nil
}

// CallTool forwards a tools/call to the upstream using the tool's original
// (un-namespaced) name.
func (c *Client) CallTool(ctx context.Context, u *gateway.Upstream, toolName string, arguments map[string]any) (*CallResult, error) {
	params := map[string]any{"name": toolName}
	if arguments != nil {
		params["arguments"] = arguments
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode tools/call: %w", err)
	}

	raw, err := c.roundTrip(ctx, u, string(body))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result *CallResult `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed tools/call response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("upstream error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if envelope.Result == nil {
		return nil, fmt.Errorf("tools/call response has neither result nor error")
	}
	return envelope.Result, nil
}

// roundTrip POSTs a JSON-RPC payload to the upstream's MCP endpoint and
// returns the response body. The caller's context carries the timeout.
func (c *Client) roundTrip(ctx context.Context, u *gateway.Upstream, payload string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, bytes.NewReader([]byte(payload)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for name, value := range u.DefaultHeaders {
		req.Header.Set(name, value)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return body, nil
}
