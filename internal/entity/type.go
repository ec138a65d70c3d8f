package entity

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/storekit/internal/value"
)

// Base carries the identity and version of a persisted instance.
// Entity structs embed it:
//
//	type Widget struct {
//	    entity.Base
//	    Name string `json:"name"`
//	}
type Base struct {
	ID      int64 `json:"id"`
	Version int64 `json:"_version"`
}

// Identity gives access to the embedded Base.
func (b *Base) Identity() *Base { return b }

// Entity is implemented by pointers to structs embedding Base.
type Entity interface {
	Identity() *Base
}

// Registration is the untyped view of an entity type that composition and
// plugins work with.
type Registration interface {
	Descriptor() *Descriptor

	// Searchable reports whether SearchText is meaningful.
	Searchable() bool
	// SearchText extracts the text indexed for search.
	SearchText(fields value.Object) (string, error)

	// History reports whether state changes are tracked.
	History() bool

	// Verified reports whether a verifier is set.
	Verified() bool
	// Verify checks a prospective field set. Nil when no verifier is set.
	Verify(fields value.Object) error
}

// Type is the typed definition of an entity. Property names must match
// the struct's JSON field names.
type Type[T any, PT interface {
	*T
	Entity
}] struct {
	desc    *Descriptor
	search  func(PT) string
	history bool
	verify  func(PT) error
}

// Define builds a typed entity definition.
func Define[T any, PT interface {
	*T
	Entity
}](alias, collection string, props ...Property) (*Type[T, PT], error) {
	desc, err := NewDescriptor(alias, collection, props...)
	if err != nil {
		return nil, err
	}
	return &Type[T, PT]{desc: desc}, nil
}

// MustDefine is like Define but panics on an invalid definition.
// Intended for package-level entity declarations.
func MustDefine[T any, PT interface {
	*T
	Entity
}](alias, collection string, props ...Property) *Type[T, PT] {
	t, err := Define[T, PT](alias, collection, props...)
	if err != nil {
		panic(fmt.Sprintf("entity: %v", err))
	}
	return t
}

// WithSearch marks the type searchable using fn to extract its text.
func (t *Type[T, PT]) WithSearch(fn func(PT) string) *Type[T, PT] {
	t.search = fn
	return t
}

// WithHistory enables history tracking for the type.
func (t *Type[T, PT]) WithHistory() *Type[T, PT] {
	t.history = true
	return t
}

// WithVerifier sets a verifier run before every change is committed.
func (t *Type[T, PT]) WithVerifier(fn func(PT) error) *Type[T, PT] {
	t.verify = fn
	return t
}

// Descriptor implements Registration.
func (t *Type[T, PT]) Descriptor() *Descriptor { return t.desc }

// Searchable implements Registration.
func (t *Type[T, PT]) Searchable() bool { return t.search != nil }

// History implements Registration.
func (t *Type[T, PT]) History() bool { return t.history }

// Verified implements Registration.
func (t *Type[T, PT]) Verified() bool { return t.verify != nil }

// SearchText implements Registration.
func (t *Type[T, PT]) SearchText(fields value.Object) (string, error) {
	if t.search == nil {
		return "", nil
	}
	inst, err := t.Decode(0, 0, fields)
	if err != nil {
		return "", err
	}
	return t.search(PT(&inst)), nil
}

// Verify implements Registration.
func (t *Type[T, PT]) Verify(fields value.Object) error {
	if t.verify == nil {
		return nil
	}
	inst, err := t.Decode(0, 0, fields)
	if err != nil {
		return err
	}
	return t.verify(PT(&inst))
}

// Encode converts an instance into its declared field set. Identity and
// metadata are dropped; undeclared struct fields are ignored.
func (t *Type[T, PT]) Encode(inst PT) (value.Object, error) {
	data, err := json.Marshal(inst)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t.desc.alias, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("encode %s: %w", t.desc.alias, err)
	}

	fields := make(value.Object, len(t.desc.props))
	for _, p := range t.desc.props {
		r, ok := raw[p.Name]
		if !ok {
			continue
		}
		v, err := value.Decode(p.Kind, r)
		if err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", t.desc.alias, p.Name, err)
		}
		fields[p.Name] = v
	}
	return fields, nil
}

// Decode builds an instance from a stored field set.
func (t *Type[T, PT]) Decode(id, version int64, fields value.Object) (T, error) {
	var inst T

	obj := fields.Clone()
	obj[FieldID] = value.Int(id)
	obj[VersionKey] = value.Int(version)
	data, err := value.MarshalCanonical(obj)
	if err != nil {
		return inst, fmt.Errorf("decode %s %d: %w", t.desc.alias, id, err)
	}
	if err := json.Unmarshal(data, &inst); err != nil {
		return inst, fmt.Errorf("decode %s %d: %w", t.desc.alias, id, err)
	}
	return inst, nil
}
