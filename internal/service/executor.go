package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/contextify/contextify/internal/domain/auth"
	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/redact"
	"github.com/contextify/contextify/internal/port/outbound"
)

// Error codes the executor attaches to failed tool results.
const (
	ErrorCodeNoEndpoint = "NO_ENDPOINT"
	ErrorCodeTimeout    = "TIMEOUT"
	ErrorCodeCancelled  = "CANCELLED"
	ErrorCodeHTTPError  = "HTTP_ERROR"
	ErrorCodeJSONParse  = "JSON_PARSE_ERROR"
	ErrorCodeUnexpected = "UNEXPECTED"
)

// DefaultExecutionTimeout applies when the effective policy sets no timeout.
const DefaultExecutionTimeout = 30 * time.Second

// DefaultMaxRequestContentLength is the request body size above which the
// executor logs a warning. It does not reject; the backend decides.
const DefaultMaxRequestContentLength = int64(1024 * 1024)

// errorBodySnippetLength caps how much of an error response body ends up in
// the result text.
const errorBodySnippetLength = 512

// summaryMaxItems bounds how many entries a JSON text summary renders.
const summaryMaxItems = 10

// placeholderPattern matches "{name}" and "{name:constraint}" segments.
var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// ToolResult is the outcome of one tool execution. Executions never return
// Go errors; every failure is classified into the result itself.
type ToolResult struct {
	IsSuccess bool
	// ErrorCode classifies a failure, e.g. "TIMEOUT" or "HTTP_404".
	ErrorCode string
	// IsTransient hints whether a retry could succeed.
	IsTransient bool
	// ContentType is the response content type.
	ContentType string
	// JSON is the parsed response body when it parsed as JSON.
	JSON any
	// Text is the human-readable rendering of the result.
	Text string
	// Status is the HTTP status code, when a response was received.
	Status int
}

// Executor turns tool calls into HTTP requests against the hosting
// application: route expansion, query and body construction, credential
// propagation, timeout and concurrency enforcement, and response
// classification.
type Executor struct {
	doer     outbound.HTTPDoer
	baseURL  string
	logger   *slog.Logger
	tracer   trace.Tracer
	redactor *redact.Redactor

	defaultTimeout   time.Duration
	maxRequestLength int64

	// semaphores holds the per-tool concurrency gates, created lazily.
	semMu      sync.Mutex
	semaphores map[string]chan struct{}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDefaultTimeout overrides the fallback execution timeout.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithMaxRequestContentLength overrides the body-size warning threshold.
func WithMaxRequestContentLength(n int64) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxRequestLength = n
		}
	}
}

// WithRedactor redacts tool output before it reaches the caller.
func WithRedactor(r *redact.Redactor) ExecutorOption {
	return func(e *Executor) {
		e.redactor = r
	}
}

// WithHTTPDoerForExecutor replaces the HTTP client, mainly for tests.
func WithHTTPDoerForExecutor(d outbound.HTTPDoer) ExecutorOption {
	return func(e *Executor) {
		e.doer = d
	}
}

// NewExecutor creates an executor that sends requests to baseURL.
func NewExecutor(baseURL string, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		doer:             http.DefaultClient,
		baseURL:          strings.TrimRight(baseURL, "/"),
		logger:           logger,
		tracer:           otel.Tracer("contextify/executor"),
		defaultTimeout:   DefaultExecutionTimeout,
		maxRequestLength: DefaultMaxRequestContentLength,
		semaphores:       make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call. The returned result is never nil and carries
// the classified outcome; the method itself never fails.
func (e *Executor) Execute(ctx context.Context, tool *catalog.ToolDescriptor, args map[string]any, authCtx *auth.Context) *ToolResult {
	ctx, span := e.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", tool.ToolName)))
	defer span.End()

	if tool.Endpoint == nil {
		return &ToolResult{
			ErrorCode: ErrorCodeNoEndpoint,
			Text:      fmt.Sprintf("tool %q has no backing endpoint", tool.ToolName),
		}
	}

	release, err := e.acquire(ctx, tool)
	if err != nil {
		return e.classifyTransportError(ctx, err)
	}
	defer release()

	req, result := e.buildRequest(ctx, tool, args, authCtx)
	if result != nil {
		return result
	}

	timeout := e.defaultTimeout
	if ms := tool.EffectivePolicy.TimeoutMs; ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(callCtx)

	resp, err := e.doer.Do(req)
	if err != nil {
		res := e.classifyTransportError(ctx, err)
		span.SetAttributes(attribute.String("tool.error_code", res.ErrorCode))
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res := e.classifyResponse(resp)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if res.ErrorCode != "" {
		span.SetAttributes(attribute.String("tool.error_code", res.ErrorCode))
	}
	return res
}

// acquire takes the tool's concurrency slot when the effective policy limits
// concurrency. Blocks until a slot frees or the context ends.
func (e *Executor) acquire(ctx context.Context, tool *catalog.ToolDescriptor) (func(), error) {
	limit := tool.EffectivePolicy.ConcurrencyLimit
	if limit <= 0 {
		return func() {}, nil
	}

	e.semMu.Lock()
	sem, ok := e.semaphores[tool.ToolName]
	if !ok || cap(sem) != limit {
		sem = make(chan struct{}, limit)
		e.semaphores[tool.ToolName] = sem
	}
	e.semMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// buildRequest expands the route, distributes arguments over path, query and
// body, and attaches credentials. A non-nil result means the call failed
// before any HTTP request was made.
func (e *Executor) buildRequest(ctx context.Context, tool *catalog.ToolDescriptor, args map[string]any, authCtx *auth.Context) (*http.Request, *ToolResult) {
	ep := tool.Endpoint
	method := strings.ToUpper(ep.HTTPMethod)
	if method == "" {
		method = http.MethodGet
	}

	path, consumed := expandRoute(ep.RouteTemplate, args)

	var body io.Reader
	query := url.Values{}
	hasBody := false
	for name, value := range args {
		if _, used := consumed[strings.ToLower(name)]; used {
			continue
		}
		if strings.EqualFold(name, "body") {
			if !methodAllowsBody(method) {
				// Body arguments on bodyless methods are dropped, not moved
				// into the query string.
				continue
			}
			data, err := json.Marshal(value)
			if err != nil {
				return nil, &ToolResult{
					ErrorCode: ErrorCodeJSONParse,
					Text:      fmt.Sprintf("tool %q: body argument is not serializable: %v", tool.ToolName, err),
				}
			}
			if int64(len(data)) > e.maxRequestLength {
				e.logger.Warn("request body exceeds configured maximum",
					"tool", tool.ToolName, "size", len(data), "max", e.maxRequestLength)
			}
			body = bytes.NewReader(data)
			hasBody = true
			continue
		}
		query.Set(name, formatArgValue(value))
	}

	target := e.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &ToolResult{
			ErrorCode: ErrorCodeUnexpected,
			Text:      fmt.Sprintf("tool %q: build request: %v", tool.ToolName, err),
		}
	}
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	authCtx.Apply(req, tool.EffectivePolicy.AuthPropagation, ep.RequiresAuth)
	return req, nil
}

// expandRoute substitutes "{name}" placeholders with argument values.
// Lookup is case-insensitive; values are path-escaped so separators cannot
// leak into the path. Placeholders without a matching argument stay verbatim.
// Returns the expanded path and the set of consumed argument names
// (lowercased).
func expandRoute(routeTemplate string, args map[string]any) (string, map[string]struct{}) {
	lowered := make(map[string]any, len(args))
	for name, value := range args {
		lowered[strings.ToLower(name)] = value
	}

	consumed := make(map[string]struct{})
	path := placeholderPattern.ReplaceAllStringFunc(routeTemplate, func(match string) string {
		name := match[1 : len(match)-1]
		// "{id:int}" binds the argument "id".
		if idx := strings.Index(name, ":"); idx >= 0 {
			name = name[:idx]
		}
		key := strings.ToLower(name)
		value, ok := lowered[key]
		if !ok {
			return match
		}
		consumed[key] = struct{}{}
		return url.PathEscape(formatArgValue(value))
	})
	return path, consumed
}

func methodAllowsBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// formatArgValue renders an argument for use in a path segment or query
// parameter.
func formatArgValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	case uuid.UUID:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// classifyTransportError maps a failed round trip onto an error code. The
// caller's context distinguishes cancellation from a per-call timeout.
func (e *Executor) classifyTransportError(callerCtx context.Context, err error) *ToolResult {
	switch {
	case callerCtx.Err() != nil && errors.Is(callerCtx.Err(), context.Canceled):
		return &ToolResult{
			ErrorCode:   ErrorCodeCancelled,
			IsTransient: true,
			Text:        "execution cancelled by caller",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &ToolResult{
			ErrorCode:   ErrorCodeTimeout,
			IsTransient: true,
			Text:        "execution timed out",
		}
	default:
		return &ToolResult{
			ErrorCode:   ErrorCodeHTTPError,
			IsTransient: true,
			Text:        fmt.Sprintf("request failed: %v", err),
		}
	}
}

// classifyResponse turns an HTTP response into a tool result. JSON bodies are
// parsed and summarized; anything that does not parse passes through as raw
// text.
func (e *Executor) classifyResponse(resp *http.Response) *ToolResult {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return &ToolResult{
			ErrorCode:   ErrorCodeHTTPError,
			IsTransient: true,
			Status:      resp.StatusCode,
			Text:        fmt.Sprintf("read response: %v", err),
		}
	}

	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > errorBodySnippetLength {
			snippet = snippet[:errorBodySnippetLength]
		}
		return &ToolResult{
			ErrorCode:   fmt.Sprintf("HTTP_%d", resp.StatusCode),
			IsTransient: statusTransient(resp.StatusCode),
			ContentType: contentType,
			Status:      resp.StatusCode,
			Text:        fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet),
		}
	}

	result := &ToolResult{
		IsSuccess:   true,
		ContentType: contentType,
		Status:      resp.StatusCode,
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			if e.redactor != nil {
				parsed = e.redactor.RedactValue(parsed)
			}
			result.JSON = parsed
			result.Text = summarizeJSON(parsed)
			return result
		}
	}
	result.Text = e.redactText(string(body))
	return result
}

func (e *Executor) redactText(s string) string {
	if e.redactor == nil {
		return s
	}
	return e.redactor.RedactText(s)
}

// statusTransient reports whether a retry of the given status could succeed.
func statusTransient(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// summarizeJSON renders a parsed JSON value as a short, deterministic text
// line: objects as sorted "key: value" pairs, arrays as bracketed lists,
// both truncated past ten entries.
func summarizeJSON(value any) string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		for i, k := range keys {
			if i == summaryMaxItems {
				b.WriteString(", …")
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(summarizeScalar(v[k]))
		}
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteString("[")
		for i, item := range v {
			if i == summaryMaxItems {
				b.WriteString(", …")
				break
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(summarizeScalar(item))
		}
		b.WriteString("]")
		return b.String()
	default:
		return summarizeScalar(value)
	}
}

// summarizeScalar renders one JSON value for a summary line. Nested
// structures collapse to placeholders.
func summarizeScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any:
		return "{…}"
	case []any:
		return fmt.Sprintf("[%d items]", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CorrelationID generates the id attached to unexpected dispatcher failures
// so operators can match a client-visible error to the server log line.
func CorrelationID() string {
	return uuid.NewString()
}
