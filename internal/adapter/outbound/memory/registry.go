package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextify/contextify/internal/domain/gateway"
)

// Registry is the in-memory upstream registry. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]gateway.Upstream
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{upstreams: make(map[string]gateway.Upstream)}
}

// List returns all upstreams ordered by name.
func (r *Registry) List(ctx context.Context) ([]gateway.Upstream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]gateway.Upstream, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the upstream with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*gateway.Upstream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.upstreams[id]
	if !ok {
		return nil, gateway.ErrUpstreamNotFound
	}
	return &u, nil
}

// Add stores a new upstream, assigning a UUID when the id is empty.
func (r *Registry) Add(ctx context.Context, u *gateway.Upstream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.upstreams {
		if existing.Name == u.Name {
			return fmt.Errorf("%w: %s", gateway.ErrDuplicateName, u.Name)
		}
		if existing.NamespacePrefix == u.NamespacePrefix {
			return fmt.Errorf("%w: %s", gateway.ErrDuplicatePrefix, u.NamespacePrefix)
		}
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.upstreams[u.ID] = *u
	return nil
}

// Update replaces an existing upstream.
func (r *Registry) Update(ctx context.Context, u *gateway.Upstream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.upstreams[u.ID]
	if !ok {
		return gateway.ErrUpstreamNotFound
	}
	for id, other := range r.upstreams {
		if id == u.ID {
			continue
		}
		if other.Name == u.Name {
			return fmt.Errorf("%w: %s", gateway.ErrDuplicateName, u.Name)
		}
		if other.NamespacePrefix == u.NamespacePrefix {
			return fmt.Errorf("%w: %s", gateway.ErrDuplicatePrefix, u.NamespacePrefix)
		}
	}

	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	r.upstreams[u.ID] = *u
	return nil
}

// Delete removes an upstream by id.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.upstreams[id]; !ok {
		return gateway.ErrUpstreamNotFound
	}
	delete(r.upstreams, id)
	return nil
}

// Compile-time check that Registry satisfies the port.
var _ gateway.Registry = (*Registry)(nil)
