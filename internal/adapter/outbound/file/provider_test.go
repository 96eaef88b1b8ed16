package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestProvider_GetJSON(t *testing.T) {
	path := writeFile(t, "policy.json", `{
		"schemaVersion": 1,
		"sourceVersion": "v42",
		"denyByDefault": true,
		"whitelist": [
			{"operationId": "getUser", "toolName": "get_user", "timeoutMs": 5000}
		],
		"blacklist": [
			{"routeTemplate": "/internal/{rest}"}
		]
	}`)

	cfg, err := NewProvider(path).Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cfg.SchemaVersion != 1 || cfg.SourceVersion != "v42" || !cfg.DenyByDefault {
		t.Errorf("header = %+v", cfg)
	}
	if len(cfg.Whitelist) != 1 || cfg.Whitelist[0].ToolName != "get_user" {
		t.Errorf("whitelist = %+v", cfg.Whitelist)
	}
	if len(cfg.Blacklist) != 1 || cfg.Blacklist[0].RouteTemplate != "/internal/{rest}" {
		t.Errorf("blacklist = %+v", cfg.Blacklist)
	}
}

func TestProvider_GetYAML(t *testing.T) {
	path := writeFile(t, "policy.yaml", `
schemaVersion: 1
whitelist:
  - operationId: getUser
    enabled: false
    authPropagationMode: BearerToken
`)

	cfg, err := NewProvider(path).Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(cfg.Whitelist) != 1 {
		t.Fatalf("whitelist = %+v", cfg.Whitelist)
	}
	entry := cfg.Whitelist[0]
	if entry.Enabled == nil || *entry.Enabled {
		t.Error("enabled flag not decoded as false")
	}
	if string(entry.AuthPropagation) != "BearerToken" {
		t.Errorf("authPropagation = %q", entry.AuthPropagation)
	}
}

func TestProvider_SourceVersionFallback(t *testing.T) {
	path := writeFile(t, "policy.json", `{"schemaVersion": 1}`)

	cfg, err := NewProvider(path).Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cfg.SourceVersion == "" {
		t.Error("SourceVersion empty, want mtime/size fingerprint fallback")
	}

	again, err := NewProvider(path).Get(context.Background())
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if again.SourceVersion != cfg.SourceVersion {
		t.Errorf("fingerprint changed without file change: %q then %q", cfg.SourceVersion, again.SourceVersion)
	}
}

func TestProvider_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewProvider(filepath.Join(t.TempDir(), "missing.json")).Get(context.Background())
		if err == nil {
			t.Error("Get() succeeded for a missing file")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeFile(t, "bad.json", `{"whitelist": [`)
		if _, err := NewProvider(path).Get(context.Background()); err == nil {
			t.Error("Get() succeeded for malformed JSON")
		}
	})

	t.Run("invalid policy entry", func(t *testing.T) {
		path := writeFile(t, "invalid.json", `{
			"schemaVersion": 1,
			"whitelist": [{"operationId": "x", "rateLimitPolicy": {"strategy": "FixedWindow"}}]
		}`)
		if _, err := NewProvider(path).Get(context.Background()); err == nil {
			t.Error("Get() accepted a rate limit without permitLimit and windowMs")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		path := writeFile(t, "policy.json", `{"schemaVersion": 1}`)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := NewProvider(path).Get(ctx); err == nil {
			t.Error("Get() ignored a cancelled context")
		}
	})
}
