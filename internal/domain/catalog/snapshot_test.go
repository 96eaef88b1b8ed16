package catalog

import (
	"testing"
	"time"
)

func descriptorNamed(name string) *ToolDescriptor {
	return &ToolDescriptor{ToolName: name, Description: "test tool"}
}

func TestSnapshot_LookupAndLen(t *testing.T) {
	now := time.Now().UTC()
	snap := NewSnapshot(now, "v1", map[string]*ToolDescriptor{
		"GET_users":    descriptorNamed("GET_users"),
		"POST_orders":  descriptorNamed("POST_orders"),
		"DELETE_items": descriptorNamed("DELETE_items"),
	})

	if snap.Len() != 3 {
		t.Errorf("Len() = %d, want 3", snap.Len())
	}
	if snap.CreatedUTC() != now {
		t.Errorf("CreatedUTC() = %v, want %v", snap.CreatedUTC(), now)
	}
	if snap.PolicySourceVersion() != "v1" {
		t.Errorf("PolicySourceVersion() = %q, want %q", snap.PolicySourceVersion(), "v1")
	}

	tool, ok := snap.Lookup("GET_users")
	if !ok || tool.ToolName != "GET_users" {
		t.Errorf("Lookup(GET_users) = %v, %v", tool, ok)
	}
	if _, ok := snap.Lookup("missing"); ok {
		t.Error("Lookup(missing) = true, want false")
	}
}

func TestSnapshot_NamesSorted(t *testing.T) {
	snap := NewSnapshot(time.Now().UTC(), "", map[string]*ToolDescriptor{
		"c": descriptorNamed("c"),
		"a": descriptorNamed("a"),
		"b": descriptorNamed("b"),
	})

	want := []string{"a", "b", "c"}
	names := snap.Names()
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	tools := snap.Tools()
	for i := range want {
		if tools[i].ToolName != want[i] {
			t.Errorf("Tools()[%d].ToolName = %q, want %q", i, tools[i].ToolName, want[i])
		}
	}
}

func TestSnapshot_IsolatedFromSourceMap(t *testing.T) {
	src := map[string]*ToolDescriptor{"a": descriptorNamed("a")}
	snap := NewSnapshot(time.Now().UTC(), "", src)

	src["b"] = descriptorNamed("b")
	delete(src, "a")

	if snap.Len() != 1 {
		t.Errorf("Len() = %d after mutating source map, want 1", snap.Len())
	}
	if _, ok := snap.Lookup("a"); !ok {
		t.Error("Lookup(a) lost after mutating source map")
	}
	if _, ok := snap.Lookup("b"); ok {
		t.Error("Lookup(b) found, snapshot leaked the source map")
	}
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tools   map[string]*ToolDescriptor
		wantErr bool
	}{
		{
			name:  "valid",
			tools: map[string]*ToolDescriptor{"a": descriptorNamed("a")},
		},
		{
			name:  "empty snapshot valid",
			tools: nil,
		},
		{
			name:    "key name mismatch",
			tools:   map[string]*ToolDescriptor{"a": descriptorNamed("b")},
			wantErr: true,
		},
		{
			name:    "empty key",
			tools:   map[string]*ToolDescriptor{"": descriptorNamed("")},
			wantErr: true,
		},
		{
			name:    "nil descriptor",
			tools:   map[string]*ToolDescriptor{"a": nil},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewSnapshot(time.Now().UTC(), "", tt.tools)
			err := snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmptySnapshot(t *testing.T) {
	snap := EmptySnapshot()
	if snap.Len() != 0 {
		t.Errorf("Len() = %d, want 0", snap.Len())
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
