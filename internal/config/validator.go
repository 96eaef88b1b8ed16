package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/contextify/contextify/internal/domain/gateway"
)

// Bounds outside which CatalogRefreshInterval draws a warning.
const (
	refreshIntervalWarnBelow = 30 * time.Second
	refreshIntervalWarnAbove = time.Hour
)

// RegisterCustomValidators registers the gateway-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("tool_pattern", validateToolPattern); err != nil {
		return fmt.Errorf("failed to register tool_pattern validator: %w", err)
	}
	if err := v.RegisterValidation("namespace_prefix", validateNamespacePrefix); err != nil {
		return fmt.Errorf("failed to register namespace_prefix validator: %w", err)
	}
	return nil
}

// validateToolPattern validates a tool-name glob pattern ('*' wildcard only).
func validateToolPattern(fl validator.FieldLevel) bool {
	return gateway.ValidatePattern(fl.Field().String()) == nil
}

// validateNamespacePrefix validates a namespace prefix's charset by running
// it through the upstream domain validation.
func validateNamespacePrefix(fl validator.FieldLevel) bool {
	u := gateway.Upstream{
		Name:            "probe",
		NamespacePrefix: fl.Field().String(),
		Endpoint:        "http://localhost/mcp",
	}
	return u.Validate() == nil
}

// Validate validates the Config using struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateUpstreamUniqueness(); err != nil {
		return err
	}
	return nil
}

// Warnings returns non-fatal findings an operator should see at startup.
func (c *Config) Warnings() []string {
	var warnings []string

	interval := c.CatalogRefreshInterval()
	if interval < refreshIntervalWarnBelow {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.catalog_refresh_interval %s is below %s; upstreams will be polled aggressively",
			interval, refreshIntervalWarnBelow))
	}
	if interval > refreshIntervalWarnAbove {
		warnings = append(warnings, fmt.Sprintf(
			"gateway.catalog_refresh_interval %s exceeds %s; aggregated tools may go stale",
			interval, refreshIntervalWarnAbove))
	}

	if c.Gateway.DenyByDefault && len(c.Gateway.AllowedToolPatterns) == 0 {
		warnings = append(warnings,
			"gateway.deny_by_default is set with no allowed_tool_patterns; every aggregated tool is hidden")
	}
	return warnings
}

// validateDurations checks every duration-typed string parses.
func (c *Config) validateDurations() error {
	durations := map[string]string{
		"policy.min_reload_interval":       c.Policy.MinReloadInterval,
		"executor.default_timeout":         c.Executor.DefaultTimeout,
		"gateway.catalog_refresh_interval": c.Gateway.CatalogRefreshInterval,
	}
	for i, u := range c.Gateway.Upstreams {
		if u.RequestTimeout != "" {
			durations[fmt.Sprintf("gateway.upstreams[%d].request_timeout", i)] = u.RequestTimeout
		}
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %q is not a valid duration", field, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", field, d)
		}
	}
	return nil
}

// validateRegistry ensures the sqlite backend carries a path.
func (c *Config) validateRegistry() error {
	if c.Gateway.Registry.Backend == "sqlite" && c.Gateway.Registry.Path == "" {
		return errors.New("gateway.registry.path is required when backend is sqlite")
	}
	return nil
}

// validateUpstreamUniqueness enforces unique names and namespace prefixes
// among the seeded upstreams.
func (c *Config) validateUpstreamUniqueness() error {
	names := make(map[string]struct{}, len(c.Gateway.Upstreams))
	prefixes := make(map[string]struct{}, len(c.Gateway.Upstreams))
	for i, u := range c.Gateway.Upstreams {
		if _, dup := names[u.Name]; dup {
			return fmt.Errorf("gateway.upstreams[%d]: duplicate name %q", i, u.Name)
		}
		if _, dup := prefixes[u.NamespacePrefix]; dup {
			return fmt.Errorf("gateway.upstreams[%d]: duplicate namespace_prefix %q", i, u.NamespacePrefix)
		}
		names[u.Name] = struct{}{}
		prefixes[u.NamespacePrefix] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to actionable
// messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for one
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "tool_pattern":
		return fmt.Sprintf("%s must be a glob pattern using only '*' wildcards", field)
	case "namespace_prefix":
		return fmt.Sprintf("%s may contain only letters, digits, '.', '_' and '-'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
