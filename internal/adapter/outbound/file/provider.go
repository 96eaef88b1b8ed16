// Package file implements a PolicyConfigProvider backed by a policy document
// on disk. The document may be JSON or YAML.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/contextify/contextify/internal/domain/policy"
	"github.com/contextify/contextify/internal/port/outbound"
)

// Provider reads the policy document on every Get. It keeps no cache; the
// snapshot provider above it throttles reload frequency.
type Provider struct {
	path string
}

// NewProvider creates a provider for the given policy document path.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Get loads, parses, and validates the policy document. When the document
// omits sourceVersion, a fingerprint of the file's mtime and size is used so
// the snapshot provider can still detect changes.
func (p *Provider) Get(ctx context.Context) (*policy.PolicyConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read policy document: %w", err)
	}

	var cfg policy.PolicyConfig
	switch strings.ToLower(filepath.Ext(p.path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse policy document %s: %w", p.path, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse policy document %s: %w", p.path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy document %s: %w", p.path, err)
	}

	if cfg.SourceVersion == "" {
		if info, statErr := os.Stat(p.path); statErr == nil {
			cfg.SourceVersion = fmt.Sprintf("%x-%d", info.ModTime().UnixNano(), info.Size())
		}
	}

	return &cfg, nil
}

// Compile-time check that Provider satisfies the port.
var _ outbound.PolicyConfigProvider = (*Provider)(nil)
