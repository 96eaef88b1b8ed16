package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/contextify/contextify/internal/domain/auth"
	"github.com/contextify/contextify/internal/domain/redact"
	"github.com/contextify/contextify/internal/service"
	"github.com/contextify/contextify/pkg/mcp"
)

// maxRequestBodySize caps inbound JSON-RPC request bodies.
const maxRequestBodySize = 1024 * 1024

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// toolEntry is one entry of a tools/list result.
type toolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Dispatcher handles the JSON-RPC endpoint: it decodes requests, routes the
// MCP methods, and renders responses with the caller's id echoed verbatim.
type Dispatcher struct {
	snapshots  *service.SnapshotProvider
	aggregator *service.Aggregator
	executor   *service.Executor
	redactor   *redact.Redactor
	metrics    *Metrics
	logger     *slog.Logger
	version    string
}

// NewDispatcher creates the JSON-RPC dispatcher.
func NewDispatcher(
	snapshots *service.SnapshotProvider,
	aggregator *service.Aggregator,
	executor *service.Executor,
	redactor *redact.Redactor,
	metrics *Metrics,
	logger *slog.Logger,
	version string,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		snapshots:  snapshots,
		aggregator: aggregator,
		executor:   executor,
		redactor:   redactor,
		metrics:    metrics,
		logger:     logger,
		version:    version,
	}
}

// ServeHTTP implements the MCP endpoint.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if ct := r.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "application/json") {
		d.writeError(w, http.StatusUnsupportedMediaType, nil, codeInvalidRequest,
			fmt.Sprintf("unsupported content type %q, expected application/json", ct), nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		d.writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}

	msg, err := mcp.WrapMessage(body)
	if err != nil {
		if !json.Valid(body) {
			d.writeError(w, http.StatusBadRequest, nil, codeParseError, "parse error", nil)
			return
		}
		// Valid JSON that is not a JSON-RPC 2.0 message, e.g. a wrong
		// version tag. The caller's id, when present, is still echoed.
		d.writeError(w, http.StatusBadRequest, mcp.ExtractRawID(body), codeInvalidRequest,
			"invalid JSON-RPC request", nil)
		return
	}
	if !msg.IsRequest() {
		d.writeError(w, http.StatusOK, nil, codeInvalidRequest, "expected a JSON-RPC request", nil)
		return
	}

	if msg.IsNotification() {
		// Notifications get no response body. notifications/initialized is
		// the only one we expect; the rest are ignored the same way.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	d.dispatch(w, r, msg)
}

// dispatch routes one JSON-RPC request. Panics inside a handler become
// internal errors carrying a correlation id; the cause goes to the log only.
func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request, msg *mcp.Message) {
	method := msg.Method()
	id := msg.RawID()
	start := time.Now()

	defer func() {
		if cause := recover(); cause != nil {
			correlationID := service.CorrelationID()
			d.logger.Error("request handler panicked",
				"method", method, "correlation_id", correlationID, "cause", cause)
			d.writeError(w, http.StatusOK, id, codeInternalError, "internal error",
				map[string]string{"correlationId": correlationID})
		}
		if d.metrics != nil {
			d.metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}
	}()

	var (
		result any
		rpcErr *rpcError
	)
	switch method {
	case "initialize":
		result = d.handleInitialize()
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = d.handleToolsList(r)
	case "tools/call":
		result, rpcErr = d.handleToolsCall(r, msg.Params())
	default:
		rpcErr = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}

	if d.metrics != nil {
		status := "ok"
		if rpcErr != nil {
			status = "error"
		}
		d.metrics.RequestsTotal.WithLabelValues(method, status).Inc()
	}

	if rpcErr != nil {
		d.writeError(w, http.StatusOK, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	d.writeResult(w, id, result)
}

func (d *Dispatcher) handleInitialize() any {
	return map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    "contextify",
			"version": d.version,
		},
	}
}

// handleToolsList merges the local catalog with the aggregated gateway
// catalog. Local tools win name conflicts; prefix uniqueness makes those
// conflicts configuration errors rather than routine.
func (d *Dispatcher) handleToolsList(r *http.Request) any {
	ctx := r.Context()
	d.snapshots.EnsureFresh(ctx)
	d.aggregator.EnsureFresh(ctx)

	local := d.snapshots.GetSnapshot()
	remote := d.aggregator.GetSnapshot()

	entries := make([]toolEntry, 0, local.Len()+remote.Len())
	seen := make(map[string]struct{}, local.Len())

	for _, t := range local.Tools() {
		entries = append(entries, toolEntry{
			Name:        t.ToolName,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
		seen[t.ToolName] = struct{}{}
	}
	for _, t := range remote.Tools() {
		if _, taken := seen[t.Name]; taken {
			d.logger.Warn("aggregated tool shadowed by local catalog", "tool", t.Name)
			continue
		}
		entries = append(entries, toolEntry{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	if d.metrics != nil {
		d.metrics.CatalogTools.Set(float64(local.Len()))
		d.metrics.GatewayTools.Set(float64(remote.Len()))
		d.metrics.HealthyUpstreams.Set(float64(remote.HealthyUpstreamCount()))
	}
	return map[string]any{"tools": entries}
}

// handleToolsCall routes a tool call to the local executor or, for
// namespaced tools, to the owning upstream.
func (d *Dispatcher) handleToolsCall(r *http.Request, params json.RawMessage) (any, *rpcError) {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(params) == 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "params must be an object"}
	}
	if call.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "tool name is required"}
	}

	ctx := r.Context()

	if tool, ok := d.snapshots.GetSnapshot().Lookup(call.Name); ok {
		result := d.executor.Execute(ctx, tool, call.Arguments, auth.FromRequest(r))
		if d.metrics != nil {
			outcome := "success"
			if !result.IsSuccess {
				outcome = result.ErrorCode
			}
			d.metrics.ToolExecutions.WithLabelValues(outcome).Inc()
		}
		return d.renderLocalResult(result), nil
	}

	if _, ok := d.aggregator.GetSnapshot().Lookup(call.Name); ok {
		return d.callUpstream(ctx, call.Name, call.Arguments), nil
	}

	return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool %q", call.Name)}
}

func (d *Dispatcher) renderLocalResult(result *service.ToolResult) any {
	text := result.Text
	if !result.IsSuccess && result.ErrorCode != "" {
		text = fmt.Sprintf("%s: %s", result.ErrorCode, text)
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": !result.IsSuccess,
	}
}

// callUpstream forwards a namespaced tool call. Upstream failures become
// error results, not JSON-RPC errors; the tool exists, the call failed.
func (d *Dispatcher) callUpstream(ctx context.Context, name string, arguments map[string]any) any {
	upstreamResult, err := d.aggregator.CallTool(ctx, name, arguments)
	if err != nil {
		d.logger.Warn("upstream tool call failed", "tool", name, "error", err)
		return map[string]any{
			"content": []map[string]any{{
				"type": "text",
				"text": d.redactor.RedactText(fmt.Sprintf("upstream call failed: %v", err)),
			}},
			"isError": true,
		}
	}

	content := make([]map[string]any, 0, len(upstreamResult.Content))
	for _, item := range upstreamResult.Content {
		entry := map[string]any{"type": item.Type}
		if item.Text != "" {
			entry["text"] = d.redactor.RedactText(item.Text)
		}
		content = append(content, entry)
	}
	return map[string]any{
		"content": content,
		"isError": upstreamResult.IsError,
	}
}

func (d *Dispatcher) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	d.writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (d *Dispatcher) writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data any) {
	d.writeJSON(w, status, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message, Data: data},
	})
}

func (d *Dispatcher) writeJSON(w http.ResponseWriter, status int, body rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		d.logger.Error("failed to write response", "error", err)
	}
}
