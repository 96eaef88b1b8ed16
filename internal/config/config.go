// Package config provides the configuration schema and loading for the
// contextify gateway. Configuration is file-based (YAML) with environment
// variable overrides.
package config

import "time"

// Config is the top-level configuration for the contextify gateway.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Policy configures the endpoint policy source.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Executor configures local tool execution.
	Executor ExecutorConfig `yaml:"executor" mapstructure:"executor"`

	// Gateway configures aggregation of remote upstream MCP servers.
	Gateway GatewayConfig `yaml:"gateway" mapstructure:"gateway"`

	// Auth configures API key authentication for the MCP endpoint.
	// Optional: when empty, the endpoint accepts unauthenticated callers.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Redaction configures output redaction for tool results.
	Redaction RedactionConfig `yaml:"redaction" mapstructure:"redaction"`

	// Observability configures tracing output.
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ServerConfig configures the HTTP server.
// TLS is out of scope; terminate it at a reverse proxy.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// MCPPath is the path serving the JSON-RPC endpoint. Defaults to "/mcp".
	MCPPath string `yaml:"mcp_path" mapstructure:"mcp_path" validate:"omitempty,startswith=/"`

	// DiagnosticsPath is the path serving the diagnostics document.
	// Defaults to "/diagnostics".
	DiagnosticsPath string `yaml:"diagnostics_path" mapstructure:"diagnostics_path" validate:"omitempty,startswith=/"`
}

// PolicyConfig configures where the endpoint policy document comes from.
type PolicyConfig struct {
	// Source is the path of the policy document (YAML or JSON).
	// Optional: when empty, every endpoint resolves via denyByDefault=false.
	Source string `yaml:"source" mapstructure:"source"`

	// EndpointsSource is the path of the endpoints document exported by the
	// hosting application (YAML or JSON). Optional: when empty, the local
	// catalog is empty and only aggregated upstream tools are served.
	EndpointsSource string `yaml:"endpoints_source" mapstructure:"endpoints_source"`

	// MinReloadInterval throttles freshness-triggered policy reloads
	// (e.g., "2s"). Defaults to "2s".
	MinReloadInterval string `yaml:"min_reload_interval" mapstructure:"min_reload_interval" validate:"omitempty"`
}

// ExecutorConfig configures execution of local tools against the hosting
// application.
type ExecutorConfig struct {
	// LocalBaseURL is the base URL requests for local tools are sent to
	// (e.g., "http://127.0.0.1:5000").
	LocalBaseURL string `yaml:"local_base_url" mapstructure:"local_base_url" validate:"omitempty,url"`

	// DefaultTimeout bounds executions whose policy sets no timeout
	// (e.g., "30s"). Defaults to "30s".
	DefaultTimeout string `yaml:"default_timeout" mapstructure:"default_timeout" validate:"omitempty"`

	// MaxRequestContentLengthBytes is the request body size above which a
	// warning is logged. Defaults to 1048576 (1 MiB).
	MaxRequestContentLengthBytes int64 `yaml:"max_request_content_length_bytes" mapstructure:"max_request_content_length_bytes" validate:"omitempty,min=1"`
}

// GatewayConfig configures aggregation of remote upstream MCP servers.
type GatewayConfig struct {
	// ToolNameSeparator joins the namespace prefix and the upstream tool
	// name. Defaults to ".".
	ToolNameSeparator string `yaml:"tool_name_separator" mapstructure:"tool_name_separator"`

	// DenyByDefault hides aggregated tools not matched by an allow pattern.
	DenyByDefault bool `yaml:"deny_by_default" mapstructure:"deny_by_default"`

	// AllowedToolPatterns are glob patterns ('*' wildcard only) admitting
	// namespaced tool names.
	AllowedToolPatterns []string `yaml:"allowed_tool_patterns" mapstructure:"allowed_tool_patterns" validate:"omitempty,dive,tool_pattern"`

	// DeniedToolPatterns are glob patterns hiding namespaced tool names.
	// Denied wins over allowed.
	DeniedToolPatterns []string `yaml:"denied_tool_patterns" mapstructure:"denied_tool_patterns" validate:"omitempty,dive,tool_pattern"`

	// CatalogRefreshInterval is how often the aggregated snapshot rebuilds
	// (e.g., "5m"). Defaults to "5m".
	CatalogRefreshInterval string `yaml:"catalog_refresh_interval" mapstructure:"catalog_refresh_interval" validate:"omitempty"`

	// Registry configures where upstream definitions persist.
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`

	// Upstreams seeds the registry at startup. Upstreams already present
	// (by name) are left untouched.
	Upstreams []UpstreamConfig `yaml:"upstreams" mapstructure:"upstreams" validate:"omitempty,dive"`
}

// RegistryConfig configures upstream persistence.
type RegistryConfig struct {
	// Backend is "memory" or "sqlite". Defaults to "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database path. Required when backend is "sqlite".
	Path string `yaml:"path" mapstructure:"path"`
}

// UpstreamConfig seeds one remote upstream MCP server.
type UpstreamConfig struct {
	// Name is the unique human-readable upstream name.
	Name string `yaml:"name" mapstructure:"name" validate:"required,max=100"`

	// NamespacePrefix namespaces this upstream's tool names. Unique.
	NamespacePrefix string `yaml:"namespace_prefix" mapstructure:"namespace_prefix" validate:"required,namespace_prefix"`

	// Endpoint is the absolute http(s) URL of the upstream's MCP endpoint.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"required,url"`

	// Enabled controls whether the aggregator contacts this upstream.
	// Defaults to true.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`

	// RequestTimeout bounds each call to this upstream (e.g., "30s").
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty"`

	// DefaultHeaders are added to every request to this upstream.
	DefaultHeaders map[string]string `yaml:"default_headers" mapstructure:"default_headers"`
}

// IsEnabled reports the effective enabled flag; unset means enabled.
func (u *UpstreamConfig) IsEnabled() bool {
	return u.Enabled == nil || *u.Enabled
}

// AuthConfig configures API key authentication for the MCP endpoint.
type AuthConfig struct {
	// APIKeys lists the accepted keys. When empty, authentication is off.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// APIKeyConfig defines one accepted API key.
type APIKeyConfig struct {
	// Name identifies the key in logs. Never the key itself.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Hash is the argon2id hash of the key, in PHC string format
	// ("$argon2id$..."). Generate with the contextify hash-key command.
	Hash string `yaml:"hash" mapstructure:"hash" validate:"required,startswith=$argon2id$"`
}

// RedactionConfig configures redaction of tool result output.
type RedactionConfig struct {
	// Enabled turns redaction on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// FieldNames are JSON field names whose values redact (case-insensitive).
	FieldNames []string `yaml:"field_names" mapstructure:"field_names"`

	// Patterns are regular expressions redacted from text output. Invalid
	// patterns are dropped with a warning.
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`
}

// ObservabilityConfig configures tracing.
type ObservabilityConfig struct {
	// TraceStdout enables span export to stdout. Off by default.
	TraceStdout bool `yaml:"trace_stdout" mapstructure:"trace_stdout"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only; network exposure must be explicit.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.MCPPath == "" {
		c.Server.MCPPath = "/mcp"
	}
	if c.Server.DiagnosticsPath == "" {
		c.Server.DiagnosticsPath = "/diagnostics"
	}

	if c.Policy.MinReloadInterval == "" {
		c.Policy.MinReloadInterval = "2s"
	}

	if c.Executor.DefaultTimeout == "" {
		c.Executor.DefaultTimeout = "30s"
	}
	if c.Executor.MaxRequestContentLengthBytes == 0 {
		c.Executor.MaxRequestContentLengthBytes = 1024 * 1024
	}

	if c.Gateway.ToolNameSeparator == "" {
		c.Gateway.ToolNameSeparator = "."
	}
	if c.Gateway.CatalogRefreshInterval == "" {
		c.Gateway.CatalogRefreshInterval = "5m"
	}
	if c.Gateway.Registry.Backend == "" {
		c.Gateway.Registry.Backend = "memory"
	}
}

// MinReloadInterval returns the parsed policy reload throttle.
func (c *Config) MinReloadInterval() time.Duration {
	return parseDurationOr(c.Policy.MinReloadInterval, 2*time.Second)
}

// ExecutorDefaultTimeout returns the parsed executor fallback timeout.
func (c *Config) ExecutorDefaultTimeout() time.Duration {
	return parseDurationOr(c.Executor.DefaultTimeout, 30*time.Second)
}

// CatalogRefreshInterval returns the parsed gateway refresh interval.
func (c *Config) CatalogRefreshInterval() time.Duration {
	return parseDurationOr(c.Gateway.CatalogRefreshInterval, 5*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
