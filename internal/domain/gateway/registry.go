package gateway

import (
	"context"
	"errors"
)

// Sentinel errors for registry operations.
var (
	// ErrUpstreamNotFound is returned when no upstream has the given id.
	ErrUpstreamNotFound = errors.New("upstream not found")
	// ErrDuplicateName is returned when an upstream name is already taken.
	ErrDuplicateName = errors.New("duplicate upstream name")
	// ErrDuplicatePrefix is returned when a namespace prefix is already taken.
	ErrDuplicatePrefix = errors.New("duplicate namespace prefix")
)

// Registry provides CRUD over upstream configuration. This is a port;
// implementations live in the adapter layer (in-memory, sqlite) and must be
// safe for concurrent use.
type Registry interface {
	// List returns all configured upstreams.
	List(ctx context.Context) ([]Upstream, error)
	// Get returns a single upstream by id.
	Get(ctx context.Context, id string) (*Upstream, error)
	// Add stores a new upstream, assigning an id when absent.
	Add(ctx context.Context, u *Upstream) error
	// Update replaces an existing upstream.
	Update(ctx context.Context, u *Upstream) error
	// Delete removes an upstream by id.
	Delete(ctx context.Context, id string) error
}
