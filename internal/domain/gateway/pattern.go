package gateway

import (
	"fmt"
	"strings"
)

// ValidatePattern checks a tool-name glob pattern. The only wildcard is '*'
// (any position, including several per pattern); "**", '?', '[' and ']' are
// invalid.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty tool pattern")
	}
	if strings.Contains(pattern, "**") {
		return fmt.Errorf("invalid tool pattern %q: ** is not supported", pattern)
	}
	if i := strings.IndexAny(pattern, "?[]"); i >= 0 {
		return fmt.Errorf("invalid tool pattern %q: %q is not supported", pattern, pattern[i])
	}
	return nil
}

// MatchPattern reports whether name matches the glob pattern, where '*'
// matches any (possibly empty) run of characters. Patterns are anchored at
// both ends.
func MatchPattern(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}

	// Anchor the first and last literal segments, then greedily consume the
	// middle segments left to right.
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(name, last) {
		return false
	}
	name = name[:len(name)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(name, part)
		if idx < 0 {
			return false
		}
		name = name[idx+len(part):]
	}
	return true
}

// Filter applies the gateway-level allow/deny pattern lists to aggregated
// tool names. Denied beats allowed; with denyByDefault and an empty allow
// list the effect is to deny everything.
type Filter struct {
	denyByDefault bool
	allowed       []string
	denied        []string
}

// NewFilter builds a filter after validating every pattern.
func NewFilter(denyByDefault bool, allowed, denied []string) (*Filter, error) {
	for _, p := range allowed {
		if err := ValidatePattern(p); err != nil {
			return nil, fmt.Errorf("allowedToolPatterns: %w", err)
		}
	}
	for _, p := range denied {
		if err := ValidatePattern(p); err != nil {
			return nil, fmt.Errorf("deniedToolPatterns: %w", err)
		}
	}
	return &Filter{denyByDefault: denyByDefault, allowed: allowed, denied: denied}, nil
}

// Admit reports whether a namespaced tool name passes the filter.
func (f *Filter) Admit(name string) bool {
	for _, p := range f.denied {
		if MatchPattern(p, name) {
			return false
		}
	}
	if len(f.allowed) > 0 {
		for _, p := range f.allowed {
			if MatchPattern(p, name) {
				return true
			}
		}
		return false
	}
	return !f.denyByDefault
}
