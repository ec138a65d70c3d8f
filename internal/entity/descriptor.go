package entity

import (
	"fmt"
	"strings"

	"github.com/roach88/storekit/internal/value"
)

const (
	// FieldID is the identity field of every instance. It cannot be declared.
	FieldID = "id"

	// ReservedPrefix marks metadata keys. Such keys are never entity fields.
	ReservedPrefix = "_"

	// VersionKey carries the optimistic concurrency token.
	VersionKey = "_version"
)

// IsReserved reports whether name is metadata or identity rather than a
// declarable property.
func IsReserved(name string) bool {
	return name == FieldID || strings.HasPrefix(name, ReservedPrefix)
}

// Property is one declared field of an entity type.
type Property struct {
	Name string
	Kind value.Kind
}

// Prop is shorthand for building a Property.
func Prop(name string, kind value.Kind) Property {
	return Property{Name: name, Kind: kind}
}

// Descriptor is the schema of one entity type: its alias, the collection
// name used as HTTP path prefix, and the ordered property list.
// A Descriptor is immutable once constructed.
type Descriptor struct {
	alias      string
	collection string
	props      []Property
	index      map[string]int
}

// NewDescriptor validates and builds a descriptor.
func NewDescriptor(alias, collection string, props ...Property) (*Descriptor, error) {
	if strings.TrimSpace(alias) == "" {
		return nil, fmt.Errorf("entity alias is required")
	}
	if strings.TrimSpace(collection) == "" || strings.Contains(collection, "/") {
		return nil, fmt.Errorf("entity %s: invalid collection name %q", alias, collection)
	}

	d := &Descriptor{
		alias:      alias,
		collection: collection,
		props:      make([]Property, 0, len(props)),
		index:      make(map[string]int, len(props)),
	}
	for _, p := range props {
		if p.Name == "" {
			return nil, fmt.Errorf("entity %s: empty property name", alias)
		}
		if IsReserved(p.Name) {
			return nil, fmt.Errorf("entity %s: property name %q is reserved", alias, p.Name)
		}
		if !p.Kind.Valid() {
			return nil, fmt.Errorf("entity %s: property %s has unknown kind %q", alias, p.Name, p.Kind)
		}
		if _, dup := d.index[p.Name]; dup {
			return nil, fmt.Errorf("entity %s: duplicate property %s", alias, p.Name)
		}
		d.index[p.Name] = len(d.props)
		d.props = append(d.props, p)
	}
	return d, nil
}

// Alias returns the entity type identifier.
func (d *Descriptor) Alias() string { return d.alias }

// Collection returns the collection name.
func (d *Descriptor) Collection() string { return d.collection }

// Properties returns a copy of the declared properties in declaration order.
func (d *Descriptor) Properties() []Property {
	out := make([]Property, len(d.props))
	copy(out, d.props)
	return out
}

// Property looks up a declared property by name.
func (d *Descriptor) Property(name string) (Property, bool) {
	i, ok := d.index[name]
	if !ok {
		return Property{}, false
	}
	return d.props[i], true
}
