package outbound

import "net/http"

// HTTPDoer abstracts the shared HTTP client used for tool execution and
// upstream calls. Clients are long-lived; per-call timeouts come from the
// request context, not from recycling clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientFactory hands out shared HTTP clients.
type HTTPClientFactory interface {
	Client() *http.Client
}
