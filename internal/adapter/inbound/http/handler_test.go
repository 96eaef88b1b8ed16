package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contextify/contextify/internal/adapter/outbound/memory"
	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/domain/redact"
	"github.com/contextify/contextify/internal/service"
	"github.com/contextify/contextify/pkg/mcp"
)

// staticPolicyProvider serves a fixed policy config.
type staticPolicyProvider struct{ cfg *policy.PolicyConfig }

func (p staticPolicyProvider) Get(ctx context.Context) (*policy.PolicyConfig, error) {
	return p.cfg, nil
}

// staticEndpointSource serves a fixed endpoint list without enrichment.
type staticEndpointSource struct{ endpoints []endpoint.Descriptor }

func (s staticEndpointSource) Endpoints(ctx context.Context) ([]endpoint.Descriptor, error) {
	return s.endpoints, nil
}

func (s staticEndpointSource) Enrichment(ctx context.Context) (map[string]catalog.OpenAPIEnrichment, error) {
	return nil, nil
}

// newTestDispatcher wires a dispatcher over one local endpoint backed by the
// given handler.
func newTestDispatcher(t *testing.T, backend http.HandlerFunc) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	compiler := service.NewCatalogCompiler(policy.NewResolver(), logger)
	snapshots := service.NewSnapshotProvider(
		staticPolicyProvider{cfg: &policy.PolicyConfig{SourceVersion: "test"}},
		staticEndpointSource{endpoints: []endpoint.Descriptor{
			{RouteTemplate: "/users/{id}", HTTPMethod: "GET", OperationID: "getUser"},
		}},
		compiler, logger)
	if err := snapshots.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	executor := service.NewExecutor(srv.URL, logger,
		service.WithHTTPDoerForExecutor(&http.Client{Transport: tr}))

	aggregator := service.NewAggregator(memory.NewRegistry(), nil, logger)

	return NewDispatcher(snapshots, aggregator, executor,
		redact.New(false, nil, nil), nil, logger, "test")
}

func jsonBackend(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"alice"}`))
	}
}

// post sends a JSON-RPC payload and returns the recorder.
func post(d *Dispatcher, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return out
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", resp)
	}
	return int(errObj["code"].(float64))
}

func TestDispatcher_Initialize(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	result := resp["result"].(map[string]any)
	if result["protocolVersion"] != mcp.ProtocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != "contextify" || info["version"] != "test" {
		t.Errorf("serverInfo = %v", info)
	}
	if _, ok := result["capabilities"].(map[string]any)["tools"]; !ok {
		t.Errorf("capabilities = %v", result["capabilities"])
	}
}

func TestDispatcher_IDEchoedVerbatim(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))

	tests := []struct {
		name   string
		id     string
		wantID string
	}{
		{name: "number", id: `42`, wantID: `"id":42`},
		{name: "string", id: `"req-abc"`, wantID: `"id":"req-abc"`},
		{name: "large number", id: `9007199254740993`, wantID: `"id":9007199254740993`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(d, `{"jsonrpc":"2.0","id":`+tt.id+`,"method":"ping"}`)
			if !strings.Contains(rec.Body.String(), tt.wantID) {
				t.Errorf("body = %s, want raw %s", rec.Body.String(), tt.wantID)
			}
		})
	}
}

func TestDispatcher_NotificationGets202(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestDispatcher_NonPostRejected(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow = %q", rec.Header().Get("Allow"))
	}
}

func TestDispatcher_WrongContentType(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
	if code := errorCode(t, decodeResponse(t, rec)); code != codeInvalidRequest {
		t.Errorf("error code = %d, want %d", code, codeInvalidRequest)
	}
}

func TestDispatcher_MalformedBody(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","id":1,`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, decodeResponse(t, rec)); code != codeParseError {
		t.Errorf("error code = %d, want %d", code, codeParseError)
	}
}

func TestDispatcher_WrongVersionIsInvalidRequest(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))

	tests := []struct {
		name string
		body string
	}{
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":7,"method":"tools/list"}`},
		{name: "missing version", body: `{"id":7,"method":"tools/list"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(d, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if code := errorCode(t, decodeResponse(t, rec)); code != codeInvalidRequest {
				t.Errorf("error code = %d, want %d", code, codeInvalidRequest)
			}
			if !strings.Contains(rec.Body.String(), `"id":7`) {
				t.Errorf("body = %s, want the caller's id echoed", rec.Body.String())
			}
		})
	}
}

func TestDispatcher_NonRequestMessage(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	// A JSON-RPC response is not a request.
	rec := post(d, `{"jsonrpc":"2.0","id":1,"result":{}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if code := errorCode(t, decodeResponse(t, rec)); code != codeInvalidRequest {
		t.Errorf("error code = %d, want %d", code, codeInvalidRequest)
	}
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)

	if code := errorCode(t, decodeResponse(t, rec)); code != codeMethodNotFound {
		t.Errorf("error code = %d, want %d", code, codeMethodNotFound)
	}
}

func TestDispatcher_ToolsList(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)

	resp := decodeResponse(t, rec)
	result := resp["result"].(map[string]any)
	tools := result["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v, want 1 entry", tools)
	}
	tool := tools[0].(map[string]any)
	if tool["name"] != "GET_users_id" {
		t.Errorf("tool name = %v", tool["name"])
	}
}

func TestDispatcher_ToolsCallLocal(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"GET_users_id","arguments":{"id":"alice"}}}`)

	resp := decodeResponse(t, rec)
	result := resp["result"].(map[string]any)
	if result["isError"] != false {
		t.Fatalf("result = %v", result)
	}
	content := result["content"].([]any)
	item := content[0].(map[string]any)
	if item["type"] != "text" || !strings.Contains(item["text"].(string), "alice") {
		t.Errorf("content = %v", content)
	}
}

func TestDispatcher_ToolsCallFailureIsResultNotRPCError(t *testing.T) {
	d := newTestDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})
	rec := post(d, `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"GET_users_id","arguments":{"id":"ghost"}}}`)

	resp := decodeResponse(t, rec)
	if _, hasErr := resp["error"]; hasErr {
		t.Fatalf("execution failure surfaced as a JSON-RPC error: %v", resp)
	}
	result := resp["result"].(map[string]any)
	if result["isError"] != true {
		t.Fatalf("result = %v, want isError", result)
	}
	text := result["content"].([]any)[0].(map[string]any)["text"].(string)
	if !strings.HasPrefix(text, "HTTP_404: ") {
		t.Errorf("text = %q, want the error code prefix", text)
	}
}

func TestDispatcher_ToolsCallInvalidParams(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))

	tests := []struct {
		name string
		body string
	}{
		{name: "missing params", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`},
		{name: "params not object", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":123}}`},
		{name: "missing name", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`},
		{name: "unknown tool", body: `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(d, tt.body)
			if code := errorCode(t, decodeResponse(t, rec)); code != codeInvalidParams {
				t.Errorf("error code = %d, want %d", code, codeInvalidParams)
			}
		})
	}
}

func TestDispatcher_Ping(t *testing.T) {
	d := newTestDispatcher(t, jsonBackend(t))
	rec := post(d, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	resp := decodeResponse(t, rec)
	if _, hasErr := resp["error"]; hasErr {
		t.Fatalf("ping returned an error: %v", resp)
	}
	if _, ok := resp["result"]; !ok {
		t.Errorf("ping has no result: %v", resp)
	}
}
