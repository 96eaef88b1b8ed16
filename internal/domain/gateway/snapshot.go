package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// UpstreamStatus records the health of one upstream at snapshot build time.
type UpstreamStatus struct {
	Healthy      bool
	LastCheckUTC time.Time
	// LastError is non-empty iff the last check failed.
	LastError string
	// LatencyMs is the tools/list round trip, when the check succeeded.
	LatencyMs int64
	// ToolCount is the number of tools the upstream advertised.
	ToolCount int
}

// AggregatedTool is one namespaced tool in the gateway snapshot.
type AggregatedTool struct {
	// Name is the namespaced name: "{prefix}{separator}{upstreamToolName}".
	Name string
	// Description is the upstream-advertised description.
	Description string
	// InputSchema is the upstream-advertised input schema, or nil.
	InputSchema json.RawMessage
	// UpstreamName identifies the owning upstream.
	UpstreamName string
	// UpstreamTool is the tool's original (un-namespaced) name.
	UpstreamTool string
}

// Snapshot is the immutable aggregated view over all upstreams. An unhealthy
// upstream contributes zero tools but always a status entry.
type Snapshot struct {
	createdUTC  time.Time
	toolsByName map[string]*AggregatedTool
	statuses    map[string]UpstreamStatus
}

// NewSnapshot builds a gateway snapshot. Maps are copied.
func NewSnapshot(createdUTC time.Time, tools map[string]*AggregatedTool, statuses map[string]UpstreamStatus) *Snapshot {
	toolsCopy := make(map[string]*AggregatedTool, len(tools))
	for name, t := range tools {
		toolsCopy[name] = t
	}
	statusCopy := make(map[string]UpstreamStatus, len(statuses))
	for name, st := range statuses {
		statusCopy[name] = st
	}
	return &Snapshot{createdUTC: createdUTC, toolsByName: toolsCopy, statuses: statusCopy}
}

// EmptySnapshot returns a snapshot with no tools and no statuses.
func EmptySnapshot() *Snapshot {
	return NewSnapshot(time.Now().UTC(), nil, nil)
}

// CreatedUTC reports when the snapshot was built.
func (s *Snapshot) CreatedUTC() time.Time { return s.createdUTC }

// Lookup returns the aggregated tool with the given namespaced name.
func (s *Snapshot) Lookup(name string) (*AggregatedTool, bool) {
	t, ok := s.toolsByName[name]
	return t, ok
}

// Len reports the number of aggregated tools.
func (s *Snapshot) Len() int { return len(s.toolsByName) }

// Names returns the namespaced tool names in lexical order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.toolsByName))
	for name := range s.toolsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the aggregated tools ordered by name.
func (s *Snapshot) Tools() []*AggregatedTool {
	tools := make([]*AggregatedTool, 0, len(s.toolsByName))
	for _, name := range s.Names() {
		tools = append(tools, s.toolsByName[name])
	}
	return tools
}

// Status returns the status entry for the named upstream.
func (s *Snapshot) Status(upstreamName string) (UpstreamStatus, bool) {
	st, ok := s.statuses[upstreamName]
	return st, ok
}

// Statuses returns a copy of the per-upstream status map.
func (s *Snapshot) Statuses() map[string]UpstreamStatus {
	out := make(map[string]UpstreamStatus, len(s.statuses))
	for name, st := range s.statuses {
		out[name] = st
	}
	return out
}

// HealthyUpstreamCount reports how many upstreams were healthy at build time.
func (s *Snapshot) HealthyUpstreamCount() int {
	var n int
	for _, st := range s.statuses {
		if st.Healthy {
			n++
		}
	}
	return n
}

// Validate enforces the snapshot invariants: names are globally unique (map
// keys guarantee that) and each key equals its tool's namespaced name.
func (s *Snapshot) Validate() error {
	for name, t := range s.toolsByName {
		if name == "" {
			return fmt.Errorf("gateway snapshot contains an empty tool name")
		}
		if t == nil || t.Name != name {
			return fmt.Errorf("gateway snapshot key %q does not match tool name", name)
		}
	}
	return nil
}
