// Package gateway contains the domain model for aggregating remote upstream
// MCP servers: upstream configuration, tool-name namespacing, glob filters,
// and the aggregated gateway snapshot.
package gateway

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// prefixPattern is the allowed charset for namespace prefixes.
var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// nameMaxLength is the maximum allowed length for an upstream name.
const nameMaxLength = 100

// DefaultRequestTimeout applies when an upstream omits its request timeout.
const DefaultRequestTimeout = 30 * time.Second

// Upstream is a configured remote MCP server aggregated behind the gateway.
type Upstream struct {
	// ID is the unique identifier (UUID), assigned by the registry.
	ID string
	// Name is the unique human-readable upstream name.
	Name string
	// NamespacePrefix is combined with the gateway separator to namespace
	// this upstream's tool names. Unique across upstreams.
	NamespacePrefix string
	// Endpoint is the absolute http(s) URL of the upstream's MCP endpoint.
	Endpoint string
	// Enabled controls whether the aggregator contacts this upstream.
	Enabled bool
	// RequestTimeout bounds each call to this upstream. Must not be
	// negative; zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
	// DefaultHeaders are added to every request to this upstream.
	DefaultHeaders map[string]string

	// CreatedAt is when this upstream was added.
	CreatedAt time.Time
	// UpdatedAt is when this upstream was last modified.
	UpdatedAt time.Time
}

// Validate checks the upstream configuration. Uniqueness of name and prefix
// is enforced by the registry, not here.
func (u *Upstream) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("upstream name is required")
	}
	if len(u.Name) > nameMaxLength {
		return fmt.Errorf("upstream name must be %d characters or less", nameMaxLength)
	}
	if u.NamespacePrefix == "" {
		return fmt.Errorf("namespace prefix is required")
	}
	if !prefixPattern.MatchString(u.NamespacePrefix) {
		return fmt.Errorf("namespace prefix %q contains invalid characters (allowed: letters, digits, '.', '_', '-')", u.NamespacePrefix)
	}
	if u.Endpoint == "" {
		return fmt.Errorf("mcp endpoint is required")
	}
	parsed, err := url.Parse(u.Endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("mcp endpoint %q is not an absolute http(s) URL", u.Endpoint)
	}
	if u.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %s", u.RequestTimeout)
	}
	return nil
}

// EffectiveTimeout returns the configured request timeout or the default.
func (u *Upstream) EffectiveTimeout() time.Duration {
	if u.RequestTimeout > 0 {
		return u.RequestTimeout
	}
	return DefaultRequestTimeout
}
