// Package scan discovers entity types and migrations from a compile-time
// catalog of namespaces.
//
// Namespaces are declared explicitly by the packages that own them and
// collected into a Catalog at program start; there is no runtime
// reflection over packages.
package scan

import (
	"fmt"

	"github.com/roach88/storekit/internal/apperr"
	"github.com/roach88/storekit/internal/crud"
	"github.com/roach88/storekit/internal/migration"
)

// Marker selects which kind of candidate Discover returns.
type Marker int

const (
	MarkerEntity Marker = iota + 1
	MarkerMigration
)

func (m Marker) String() string {
	switch m {
	case MarkerEntity:
		return "entity"
	case MarkerMigration:
		return "migration"
	default:
		return fmt.Sprintf("marker(%d)", int(m))
	}
}

// MigrationSpec declares a migration without instantiating it. New is
// called once during composition.
type MigrationSpec struct {
	Name  string
	Order int
	New   func() migration.Transform
}

// Namespace is one discoverable unit: a named set of entity types and
// migrations.
type Namespace struct {
	Name       string
	Entities   []crud.Binding
	Migrations []MigrationSpec
}

// Candidate is one discovered entity type or migration.
// Exactly one of Entity and Migration is set.
type Candidate struct {
	Namespace string
	Name      string
	Entity    crud.Binding
	Migration *MigrationSpec
}

// QualifiedName returns the candidate's namespace-qualified identity.
func (c Candidate) QualifiedName() string {
	return c.Namespace + "." + c.Name
}

// Catalog is the set of namespaces known to the binary.
type Catalog struct {
	order  []string
	byName map[string]Namespace
}

// NewCatalog builds a catalog. Namespace names must be unique and non-empty.
func NewCatalog(namespaces ...Namespace) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Namespace, len(namespaces))}
	for _, ns := range namespaces {
		if ns.Name == "" {
			return nil, fmt.Errorf("namespace name is required")
		}
		if _, dup := c.byName[ns.Name]; dup {
			return nil, fmt.Errorf("duplicate namespace %q", ns.Name)
		}
		c.byName[ns.Name] = ns
		c.order = append(c.order, ns.Name)
	}
	return c, nil
}

// Names lists the catalog's namespaces in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Discover returns the candidates carrying marker across the requested
// namespaces. Candidates are unique by qualified name; order follows the
// namespace list and declaration order within a namespace but callers
// should not depend on it.
func (c *Catalog) Discover(marker Marker, namespaces []string) ([]Candidate, error) {
	if len(namespaces) == 0 {
		return nil, apperr.StartupFailure("discover", fmt.Errorf("no namespaces configured"))
	}
	if marker != MarkerEntity && marker != MarkerMigration {
		return nil, apperr.StartupFailure("discover", fmt.Errorf("unknown %s", marker))
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, name := range namespaces {
		ns, ok := c.byName[name]
		if !ok {
			return nil, apperr.StartupFailure("discover", fmt.Errorf("unknown namespace %q", name))
		}

		switch marker {
		case MarkerEntity:
			for _, reg := range ns.Entities {
				cand := Candidate{Namespace: ns.Name, Name: reg.Descriptor().Alias(), Entity: reg}
				if seen[cand.QualifiedName()] {
					continue
				}
				seen[cand.QualifiedName()] = true
				out = append(out, cand)
			}
		case MarkerMigration:
			for i := range ns.Migrations {
				spec := ns.Migrations[i]
				cand := Candidate{Namespace: ns.Name, Name: spec.Name, Migration: &spec}
				if seen[cand.QualifiedName()] {
					continue
				}
				seen[cand.QualifiedName()] = true
				out = append(out, cand)
			}
		}
	}
	return out, nil
}
