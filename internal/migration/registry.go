// Package migration holds data migration descriptors, the registry that
// orders them, and reusable transforms.
package migration

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/storekit/internal/store"
)

// Transform rewrites stored data inside a migration transaction.
type Transform func(tx *store.MigrationTx) error

// Descriptor is one named, ordered migration.
type Descriptor struct {
	Name      string
	Order     int
	Transform Transform
}

// Registry collects migration descriptors. It does not track which
// migrations were applied; the store does.
type Registry struct {
	descs []Descriptor
	names map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Register adds a descriptor. Names must be unique and the transform set.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("register migration: name is required")
	}
	if d.Transform == nil {
		return fmt.Errorf("register migration %s: nil transform", d.Name)
	}
	if r.names[d.Name] {
		return fmt.Errorf("register migration: duplicate name %q", d.Name)
	}
	r.names[d.Name] = true
	r.descs = append(r.descs, d)
	return nil
}

// Resolve returns the descriptors ascending by Order. Ties keep
// registration order.
func (r *Registry) Resolve() []Descriptor {
	out := slices.Clone(r.descs)
	slices.SortStableFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return out
}
