package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var (
	// constraintPattern collapses "{name:constraint}" segments to "{name}".
	constraintPattern = regexp.MustCompile(`\{([^{}:]+):[^{}]*\}`)
	// invalidNameChars matches every character a tool name may not contain.
	invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	// underscoreRuns collapses repeated underscores.
	underscoreRuns = regexp.MustCompile(`_+`)
)

// GenerateStableName derives a deterministic tool name from an HTTP method
// and a route template: "{METHOD}_{normalisedRoute}". The derivation is a
// pure function; identical inputs yield identical names across runs.
func GenerateStableName(method, routeTemplate string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = "GET"
	}
	return m + "_" + normalizeRoute(routeTemplate)
}

// normalizeRoute turns a route template into a name-safe segment:
// strip outer slashes, collapse "{name:constraint}" to "{name}", map braces
// and any other disallowed character to underscores, collapse underscore
// runs, trim trailing underscores. Empty results become "unknown".
func normalizeRoute(routeTemplate string) string {
	route := strings.Trim(routeTemplate, "/")
	route = constraintPattern.ReplaceAllString(route, "{$1}")
	route = strings.NewReplacer("{", "_", "}", "_").Replace(route)
	route = invalidNameChars.ReplaceAllString(route, "_")
	route = underscoreRuns.ReplaceAllString(route, "_")
	route = strings.TrimRight(route, "_")
	if route == "" {
		return "unknown"
	}
	return route
}

// CollisionSuffix returns the stable 8-hex-character suffix used to
// disambiguate tool names whose stable derivations collide. It is derived
// from SHA-256 of "{METHOD}:{routeTemplate}", so the suffix depends only on
// the endpoint itself, never on compile order.
func CollisionSuffix(method, routeTemplate string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = "GET"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", m, routeTemplate)))
	return hex.EncodeToString(sum[:])[:8]
}
