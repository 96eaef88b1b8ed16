package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// contextify.yaml/.yml. The search requires an explicit YAML extension so the
// binary itself (same base name, no extension) never matches.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found. Set name/type without search paths so
		// ReadInConfig returns ConfigFileNotFoundError, which callers
		// handle gracefully.
		viper.SetConfigName("contextify")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: CONTEXTIFY_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("CONTEXTIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a contextify config file
// with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".contextify"),
		"/etc/contextify",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "contextify"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar config keys for environment variable
// support. Array-valued keys (upstreams, api_keys, patterns) must come from
// the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.mcp_path")
	_ = viper.BindEnv("server.diagnostics_path")

	_ = viper.BindEnv("policy.source")
	_ = viper.BindEnv("policy.endpoints_source")
	_ = viper.BindEnv("policy.min_reload_interval")

	_ = viper.BindEnv("executor.local_base_url")
	_ = viper.BindEnv("executor.default_timeout")
	_ = viper.BindEnv("executor.max_request_content_length_bytes")

	_ = viper.BindEnv("gateway.tool_name_separator")
	_ = viper.BindEnv("gateway.deny_by_default")
	_ = viper.BindEnv("gateway.catalog_refresh_interval")
	_ = viper.BindEnv("gateway.registry.backend")
	_ = viper.BindEnv("gateway.registry.path")

	_ = viper.BindEnv("redaction.enabled")

	_ = viper.BindEnv("observability.trace_stdout")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or an
// empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
