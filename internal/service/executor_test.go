package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contextify/contextify/internal/domain/auth"
	"github.com/contextify/contextify/internal/domain/catalog"
	"github.com/contextify/contextify/internal/domain/endpoint"
	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/domain/redact"
)

func newTestExecutor(t *testing.T, baseURL string, opts ...ExecutorOption) *Executor {
	t.Helper()
	tr := &http.Transport{}
	t.Cleanup(tr.CloseIdleConnections)
	opts = append([]ExecutorOption{
		WithHTTPDoerForExecutor(&http.Client{Transport: tr}),
	}, opts...)
	return NewExecutor(baseURL, slog.New(slog.DiscardHandler), opts...)
}

func toolFor(name, method, route string, res policy.Resolution) *catalog.ToolDescriptor {
	return &catalog.ToolDescriptor{
		ToolName: name,
		Endpoint: &endpoint.Descriptor{
			RouteTemplate: route,
			HTTPMethod:    method,
		},
		EffectivePolicy: res,
	}
}

func TestExecutor_RouteExpansionAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Encode()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("get_user", "GET", "/users/{id}/posts", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, map[string]any{
		"ID":    "alice",
		"limit": float64(25),
	}, nil)

	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotPath != "/users/alice/posts" {
		t.Errorf("path = %q, want /users/alice/posts (case-insensitive binding)", gotPath)
	}
	if gotQuery != "limit=25" {
		t.Errorf("query = %q, want limit=25", gotQuery)
	}
}

func TestExecutor_PathValuesEscaped(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("get_file", "GET", "/files/{name}", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, map[string]any{"name": "a/b c"}, nil)
	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	// A path separator in an argument must not create extra segments.
	if strings.Count(strings.TrimPrefix(gotPath, "/"), "/") != 1 {
		t.Errorf("path = %q, separator leaked into the path", gotPath)
	}
}

func TestExecutor_ConstraintPlaceholderBindsArgument(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("get_user", "GET", "/users/{id:int}", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, map[string]any{"id": float64(42)}, nil)
	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotPath != "/users/42" {
		t.Errorf("path = %q, want /users/42", gotPath)
	}
}

func TestExecutor_UnboundPlaceholderStaysVerbatim(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("get_user", "GET", "/users/{id}", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, nil, nil)
	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotPath != "/users/{id}" {
		t.Errorf("path = %q, want the placeholder preserved", gotPath)
	}
}

func TestExecutor_BodyArgument(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("create_order", "POST", "/orders", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, map[string]any{
		"body": map[string]any{"item": "widget", "qty": float64(3)},
	}, nil)

	if !res.IsSuccess || res.Status != http.StatusCreated {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	var decoded map[string]any
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if decoded["item"] != "widget" {
		t.Errorf("body = %s", gotBody)
	}
}

func TestExecutor_BodyDroppedOnBodylessMethod(t *testing.T) {
	var gotQuery string
	var gotLength int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("list_users", "GET", "/users", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, map[string]any{
		"body": map[string]any{"ignored": true},
	}, nil)
	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotQuery != "" || gotLength > 0 {
		t.Errorf("body argument leaked: query=%q length=%d", gotQuery, gotLength)
	}
}

func TestExecutor_PolicyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("slow", "GET", "/slow", policy.Resolution{Enabled: true, TimeoutMs: 20})

	res := e.Execute(context.Background(), tool, nil, nil)
	if res.ErrorCode != ErrorCodeTimeout {
		t.Fatalf("ErrorCode = %q, want %q", res.ErrorCode, ErrorCodeTimeout)
	}
	if !res.IsTransient {
		t.Error("timeout must be transient")
	}
}

func TestExecutor_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("slow", "GET", "/slow", policy.Resolution{Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := e.Execute(ctx, tool, nil, nil)
	if res.ErrorCode != ErrorCodeCancelled {
		t.Errorf("ErrorCode = %q, want %q", res.ErrorCode, ErrorCodeCancelled)
	}
}

func TestExecutor_StatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantCode      string
		wantTransient bool
	}{
		{status: http.StatusNotFound, wantCode: "HTTP_404", wantTransient: false},
		{status: http.StatusForbidden, wantCode: "HTTP_403", wantTransient: false},
		{status: http.StatusInternalServerError, wantCode: "HTTP_500", wantTransient: true},
		{status: http.StatusServiceUnavailable, wantCode: "HTTP_503", wantTransient: true},
		{status: http.StatusTooManyRequests, wantCode: "HTTP_429", wantTransient: true},
		{status: http.StatusRequestTimeout, wantCode: "HTTP_408", wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			t.Cleanup(srv.Close)

			e := newTestExecutor(t, srv.URL)
			tool := toolFor("t", "GET", "/x", policy.Resolution{Enabled: true})

			res := e.Execute(context.Background(), tool, nil, nil)
			if res.IsSuccess {
				t.Fatal("IsSuccess = true for an error status")
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", res.ErrorCode, tt.wantCode)
			}
			if res.IsTransient != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v", res.IsTransient, tt.wantTransient)
			}
			if !strings.Contains(res.Text, "nope") {
				t.Errorf("Text = %q, want the body snippet", res.Text)
			}
		})
	}
}

func TestExecutor_JSONSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"alice","age":30,"tags":["a","b"],"profile":{"x":1}}`))
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("get_user", "GET", "/user", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, nil, nil)
	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if res.JSON == nil {
		t.Fatal("JSON = nil for a JSON response")
	}
	// Keys render sorted; nested values collapse.
	if res.Text != "age: 30, name: alice, profile: {…}, tags: [2 items]" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExecutor_NonJSONPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain response"))
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("t", "GET", "/x", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, nil, nil)
	if !res.IsSuccess || res.Text != "plain response" || res.JSON != nil {
		t.Errorf("Execute() = %+v", res)
	}
}

func TestExecutor_RedactsJSONFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":"alice","password":"hunter2"}`))
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL,
		WithRedactor(redact.New(true, []string{"password"}, nil)))
	tool := toolFor("t", "GET", "/x", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, nil, nil)
	if !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	parsed := res.JSON.(map[string]any)
	if parsed["password"] != redact.RedactedValue {
		t.Errorf("password = %v, want redacted", parsed["password"])
	}
	if strings.Contains(res.Text, "hunter2") {
		t.Errorf("Text = %q, secret leaked into the summary", res.Text)
	}
}

func TestExecutor_ConcurrencyLimitSerializes(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			old := maxInFlight.Load()
			if n <= old || maxInFlight.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	tool := toolFor("limited", "GET", "/x", policy.Resolution{Enabled: true, ConcurrencyLimit: 1})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.Execute(context.Background(), tool, nil, nil)
			if !res.IsSuccess {
				t.Errorf("Execute() = %+v", res)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("max in-flight = %d, want 1", maxInFlight.Load())
	}
}

func TestExecutor_AuthPropagation(t *testing.T) {
	var gotAuth, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := newTestExecutor(t, srv.URL)
	authCtx := &auth.Context{BearerToken: "tok", Cookies: "session=abc"}

	bearerTool := toolFor("t", "GET", "/x",
		policy.Resolution{Enabled: true, AuthPropagation: policy.AuthPropagationBearerToken})
	if res := e.Execute(context.Background(), bearerTool, nil, authCtx); !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotAuth != "Bearer tok" || gotCookie != "" {
		t.Errorf("bearer mode sent auth=%q cookie=%q", gotAuth, gotCookie)
	}

	noneTool := toolFor("t", "GET", "/x",
		policy.Resolution{Enabled: true, AuthPropagation: policy.AuthPropagationNone})
	if res := e.Execute(context.Background(), noneTool, nil, authCtx); !res.IsSuccess {
		t.Fatalf("Execute() = %+v", res)
	}
	if gotAuth != "" || gotCookie != "" {
		t.Errorf("none mode sent auth=%q cookie=%q", gotAuth, gotCookie)
	}
}

func TestExecutor_NoEndpoint(t *testing.T) {
	e := newTestExecutor(t, "http://localhost:1")
	res := e.Execute(context.Background(), &catalog.ToolDescriptor{ToolName: "orphan"}, nil, nil)
	if res.ErrorCode != ErrorCodeNoEndpoint {
		t.Errorf("ErrorCode = %q, want %q", res.ErrorCode, ErrorCodeNoEndpoint)
	}
}

func TestExecutor_ConnectFailure(t *testing.T) {
	// Nothing listens on this port.
	e := newTestExecutor(t, "http://127.0.0.1:1")
	tool := toolFor("t", "GET", "/x", policy.Resolution{Enabled: true})

	res := e.Execute(context.Background(), tool, nil, nil)
	if res.ErrorCode != ErrorCodeHTTPError {
		t.Errorf("ErrorCode = %q, want %q", res.ErrorCode, ErrorCodeHTTPError)
	}
	if !res.IsTransient {
		t.Error("connect failures must be transient")
	}
}

func TestCorrelationID(t *testing.T) {
	a, b := CorrelationID(), CorrelationID()
	if a == "" || a == b {
		t.Errorf("CorrelationID() = %q, %q, want unique non-empty values", a, b)
	}
}
