// Package redact provides field-name JSON redaction and optional regex text
// redaction for outbound tool results.
package redact

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

// RedactedValue replaces every value whose field name matches.
const RedactedValue = "[REDACTED]"

// Redactor filters sensitive material out of JSON documents and plain text.
// The zero value is a disabled redactor whose methods return input unchanged.
type Redactor struct {
	enabled    bool
	fieldNames map[string]struct{}
	patterns   []string

	// compiled holds the regex patterns, compiled lazily on first use.
	compileOnce sync.Once
	compiled    []*regexp.Regexp
}

// New creates a redactor. Field-name matching is case-insensitive; patterns
// are applied in order and compiled on first use. Invalid patterns are
// dropped at compile time.
func New(enabled bool, fieldNames, patterns []string) *Redactor {
	names := make(map[string]struct{}, len(fieldNames))
	for _, n := range fieldNames {
		names[strings.ToLower(n)] = struct{}{}
	}
	return &Redactor{enabled: enabled, fieldNames: names, patterns: patterns}
}

// Enabled reports whether the redactor does anything at all.
func (r *Redactor) Enabled() bool {
	return r != nil && r.enabled
}

// RedactJSON replaces the values of matching field names with RedactedValue,
// recursing through objects and arrays. Disabled redactors and non-object
// documents pass through unchanged.
func (r *Redactor) RedactJSON(doc json.RawMessage) json.RawMessage {
	if !r.Enabled() || len(r.fieldNames) == 0 || len(doc) == 0 {
		return doc
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return doc
	}
	redacted := r.redactValue(v)
	out, err := json.Marshal(redacted)
	if err != nil {
		return doc
	}
	return out
}

// RedactValue applies field-name redaction to an already-parsed JSON value.
// The value is mutated in place and returned.
func (r *Redactor) RedactValue(v any) any {
	if !r.Enabled() || len(r.fieldNames) == 0 {
		return v
	}
	return r.redactValue(v)
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if _, hit := r.fieldNames[strings.ToLower(k)]; hit {
				val[k] = RedactedValue
				continue
			}
			val[k] = r.redactValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = r.redactValue(inner)
		}
		return val
	default:
		return v
	}
}

// RedactText applies the configured regex patterns to the text, replacing
// every match with RedactedValue. Patterns compile on first use.
func (r *Redactor) RedactText(text string) string {
	if !r.Enabled() || len(r.patterns) == 0 || text == "" {
		return text
	}
	r.compileOnce.Do(func() {
		r.compiled = make([]*regexp.Regexp, 0, len(r.patterns))
		for _, p := range r.patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				continue
			}
			r.compiled = append(r.compiled, re)
		}
	})
	for _, re := range r.compiled {
		text = re.ReplaceAllString(text, RedactedValue)
	}
	return text
}
