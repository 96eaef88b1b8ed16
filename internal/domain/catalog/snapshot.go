package catalog

import (
	"fmt"
	"sort"
	"time"
)

// Snapshot is an immutable compiled tool catalog. Readers hold whichever
// snapshot was current when they loaded it; a snapshot stays valid for the
// whole operation even if a reload publishes a newer one.
type Snapshot struct {
	createdUTC          time.Time
	policySourceVersion string
	toolsByName         map[string]*ToolDescriptor
}

// NewSnapshot builds a snapshot from the given tools. The map is copied;
// callers must not retain write access to the descriptors.
func NewSnapshot(createdUTC time.Time, sourceVersion string, tools map[string]*ToolDescriptor) *Snapshot {
	copied := make(map[string]*ToolDescriptor, len(tools))
	for name, t := range tools {
		copied[name] = t
	}
	return &Snapshot{
		createdUTC:          createdUTC,
		policySourceVersion: sourceVersion,
		toolsByName:         copied,
	}
}

// EmptySnapshot returns a snapshot with no tools. Used at startup before the
// first compile completes.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(time.Now().UTC(), "", nil)
}

// CreatedUTC reports when the snapshot was compiled.
func (s *Snapshot) CreatedUTC() time.Time { return s.createdUTC }

// PolicySourceVersion reports the sourceVersion of the policy config the
// snapshot was compiled from.
func (s *Snapshot) PolicySourceVersion() string { return s.policySourceVersion }

// Lookup returns the tool with the given name.
func (s *Snapshot) Lookup(name string) (*ToolDescriptor, bool) {
	t, ok := s.toolsByName[name]
	return t, ok
}

// Len reports the number of tools in the snapshot.
func (s *Snapshot) Len() int { return len(s.toolsByName) }

// Names returns the tool names in lexical order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.toolsByName))
	for name := range s.toolsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the descriptors ordered by tool name.
func (s *Snapshot) Tools() []*ToolDescriptor {
	tools := make([]*ToolDescriptor, 0, len(s.toolsByName))
	for _, name := range s.Names() {
		tools = append(tools, s.toolsByName[name])
	}
	return tools
}

// Validate enforces the snapshot invariant: every map key equals the
// descriptor's ToolName and names are non-empty.
func (s *Snapshot) Validate() error {
	for name, t := range s.toolsByName {
		if name == "" {
			return fmt.Errorf("snapshot contains an empty tool name")
		}
		if t == nil {
			return fmt.Errorf("snapshot entry %q is nil", name)
		}
		if t.ToolName != name {
			return fmt.Errorf("snapshot key %q does not match descriptor tool name %q", name, t.ToolName)
		}
	}
	return nil
}
