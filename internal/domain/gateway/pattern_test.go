package gateway

import "testing"

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{pattern: "github.*", wantErr: false},
		{pattern: "*", wantErr: false},
		{pattern: "*_search_*", wantErr: false},
		{pattern: "exact_name", wantErr: false},
		{pattern: "", wantErr: true},
		{pattern: "github.**", wantErr: true},
		{pattern: "tool?", wantErr: true},
		{pattern: "tool[ab]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidatePattern(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePattern(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		target  string
		want    bool
	}{
		{name: "exact match", pattern: "github.create_issue", target: "github.create_issue", want: true},
		{name: "exact mismatch", pattern: "github.create_issue", target: "github.list_issues", want: false},
		{name: "prefix wildcard", pattern: "github.*", target: "github.create_issue", want: true},
		{name: "prefix wildcard empty tail", pattern: "github.*", target: "github.", want: true},
		{name: "prefix wildcard mismatch", pattern: "github.*", target: "gitlab.create_issue", want: false},
		{name: "suffix wildcard", pattern: "*.delete", target: "github.delete", want: true},
		{name: "anchored both ends", pattern: "get", target: "get_users", want: false},
		{name: "middle wildcard", pattern: "github.*_issue", target: "github.create_issue", want: true},
		{name: "middle wildcard mismatch", pattern: "github.*_issue", target: "github.create_pr", want: false},
		{name: "multiple wildcards", pattern: "*search*", target: "docs.search_pages", want: true},
		{name: "lone star matches everything", pattern: "*", target: "anything_at_all", want: true},
		{name: "lone star matches empty", pattern: "*", target: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchPattern(tt.pattern, tt.target)
			if got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.target, got, tt.want)
			}
		})
	}
}

func TestFilter_Admit(t *testing.T) {
	tests := []struct {
		name          string
		denyByDefault bool
		allowed       []string
		denied        []string
		tool          string
		want          bool
	}{
		{name: "no patterns allow by default", tool: "github.x", want: true},
		{name: "no patterns deny by default", denyByDefault: true, tool: "github.x", want: false},
		{name: "allowed pattern admits", allowed: []string{"github.*"}, tool: "github.x", want: true},
		{name: "allow list excludes others", allowed: []string{"github.*"}, tool: "gitlab.x", want: false},
		{name: "denied beats allowed", allowed: []string{"github.*"}, denied: []string{"github.delete_*"}, tool: "github.delete_repo", want: false},
		{name: "denied only blocks match", denied: []string{"*.admin"}, tool: "github.admin", want: false},
		{name: "denied only passes others", denied: []string{"*.admin"}, tool: "github.x", want: true},
		{name: "deny by default with empty allow denies all", denyByDefault: true, allowed: nil, tool: "anything", want: false},
		{name: "allow list overrides deny by default", denyByDefault: true, allowed: []string{"docs.*"}, tool: "docs.search", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.denyByDefault, tt.allowed, tt.denied)
			if err != nil {
				t.Fatalf("NewFilter() error = %v", err)
			}
			if got := f.Admit(tt.tool); got != tt.want {
				t.Errorf("Admit(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestNewFilter_RejectsInvalidPatterns(t *testing.T) {
	if _, err := NewFilter(false, []string{"ok.*", "bad?"}, nil); err == nil {
		t.Error("NewFilter() accepted an invalid allowed pattern")
	}
	if _, err := NewFilter(false, nil, []string{""}); err == nil {
		t.Error("NewFilter() accepted an empty denied pattern")
	}
}
