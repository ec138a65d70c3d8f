package store

import (
	"context"
	"fmt"

	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/value"
)

// MigrationTx is the view of a transaction given to data migrations and
// the initializer. Unlike Tx.Update, Put replaces the whole field set so
// a migration can drop fields.
type MigrationTx struct {
	ctx context.Context
	tx  *Tx
}

// Context returns the context the migration runs under.
func (m *MigrationTx) Context() context.Context { return m.ctx }

// Descriptor returns the registered descriptor for alias.
func (m *MigrationTx) Descriptor(alias string) (*entity.Descriptor, bool) {
	return m.tx.s.Descriptor(alias)
}

// List returns all instances of alias ordered by id.
func (m *MigrationTx) List(alias string) ([]Record, error) {
	return m.tx.List(m.ctx, alias)
}

// Get returns one instance.
func (m *MigrationTx) Get(alias string, id int64) (Record, error) {
	return m.tx.Get(m.ctx, alias, id)
}

// Create inserts a new instance.
func (m *MigrationTx) Create(alias string, fields value.Object) (Record, error) {
	return m.tx.Create(m.ctx, alias, fields)
}

// Put replaces the field set of an existing instance.
func (m *MigrationTx) Put(alias string, id int64, fields value.Object) (Record, error) {
	return m.tx.replace(m.ctx, alias, id, fields)
}

// Delete removes an instance.
func (m *MigrationTx) Delete(alias string, id int64) error {
	return m.tx.Delete(m.ctx, alias, id, nil)
}

type namedMigration struct {
	name string
	fn   func(*MigrationTx) error
}

// Builder assembles a store: entity types, the initializer, data
// migrations and plugins. Build runs once.
type Builder struct {
	s          *Store
	init       func(*MigrationTx) error
	migrations []namedMigration
	names      map[string]bool
	plugins    []Plugin
	pluginSeen map[string]bool
	built      bool
}

// NewBuilder starts building on an opened store.
func NewBuilder(s *Store) *Builder {
	return &Builder{
		s:          s,
		names:      make(map[string]bool),
		pluginSeen: make(map[string]bool),
	}
}

// InitNewStore sets the initializer. It runs only if the store has no
// committed state when Build is called.
func (b *Builder) InitNewStore(fn func(*MigrationTx) error) {
	b.init = fn
}

// RegisterEntity makes an entity type readable and writable.
func (b *Builder) RegisterEntity(desc *entity.Descriptor) error {
	if desc == nil {
		return fmt.Errorf("register entity: nil descriptor")
	}
	if _, dup := b.s.descs[desc.Alias()]; dup {
		return fmt.Errorf("register entity: duplicate alias %q", desc.Alias())
	}
	b.s.descs[desc.Alias()] = desc
	return nil
}

// AddMigration appends a data migration. Migrations run in the order
// they are added; each runs at most once per database.
func (b *Builder) AddMigration(name string, fn func(*MigrationTx) error) error {
	if name == "" || name == InitializerName {
		return fmt.Errorf("add migration: invalid name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("add migration %s: nil transform", name)
	}
	if b.names[name] {
		return fmt.Errorf("add migration: duplicate name %q", name)
	}
	b.names[name] = true
	b.migrations = append(b.migrations, namedMigration{name: name, fn: fn})
	return nil
}

// AddPlugin attaches a plugin. It must implement Verifier or Observer.
func (b *Builder) AddPlugin(p Plugin) error {
	if p == nil {
		return fmt.Errorf("add plugin: nil plugin")
	}
	_, isVerifier := p.(Verifier)
	_, isObserver := p.(Observer)
	if !isVerifier && !isObserver {
		return fmt.Errorf("add plugin %s: implements neither Verifier nor Observer", p.Name())
	}
	if b.pluginSeen[p.Name()] {
		return fmt.Errorf("add plugin: duplicate name %q", p.Name())
	}
	b.pluginSeen[p.Name()] = true
	b.plugins = append(b.plugins, p)
	return nil
}

// Build runs the initializer on a fresh store, applies pending
// migrations, initializes observers and returns the ready store.
func (b *Builder) Build(ctx context.Context) (*Store, error) {
	if b.built {
		return nil, fmt.Errorf("build: store already built")
	}
	b.built = true
	s := b.s

	for _, p := range b.plugins {
		if v, ok := p.(Verifier); ok {
			s.verifiers = append(s.verifiers, v)
		}
	}

	fresh, err := s.isFresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if fresh && b.init != nil {
		state, err := s.runMigration(ctx, InitializerName, b.init)
		if err != nil {
			return nil, fmt.Errorf("build: initialize: %w", err)
		}
		s.logger.Info("store initialized", "seq", state.Seq, "changes", state.Changes)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Name] = true
	}
	for _, m := range b.migrations {
		if done[m.name] {
			s.logger.Debug("migration already applied", "migration", m.name)
			continue
		}
		state, err := s.runMigration(ctx, m.name, m.fn)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		s.logger.Info("migration applied", "migration", m.name, "seq", state.Seq, "changes", state.Changes)
	}

	for _, p := range b.plugins {
		o, ok := p.(Observer)
		if !ok {
			continue
		}
		if err := o.Init(ctx, s); err != nil {
			return nil, fmt.Errorf("build: init plugin %s: %w", o.Name(), err)
		}
		s.observers = append(s.observers, o)
	}

	s.logger.Info("store ready",
		"path", s.path,
		"entities", len(s.descs),
		"migrations", len(b.migrations),
		"plugins", len(b.plugins),
	)
	return s, nil
}
