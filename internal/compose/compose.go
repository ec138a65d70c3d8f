// Package compose assembles the running store at process start.
//
// Composition discovers entity types and migrations in the configured
// namespaces, orders the migrations, wires entity capabilities into the
// search, history and validation plugins and builds the store. It runs
// exactly once per process, before any request is served.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/storekit/internal/apperr"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/crud"
	"github.com/roach88/storekit/internal/migration"
	"github.com/roach88/storekit/internal/plugin/history"
	"github.com/roach88/storekit/internal/plugin/search"
	"github.com/roach88/storekit/internal/plugin/validate"
	"github.com/roach88/storekit/internal/scan"
	"github.com/roach88/storekit/internal/store"
)

// Options configure a composition.
type Options struct {
	Config  config.Config
	Catalog *scan.Catalog

	// Initializer populates a brand-new store. Optional.
	Initializer func(*store.MigrationTx) error

	// Capability plugins. Entity types are registered with them during
	// composition; nil plugins are skipped.
	History  *history.Plugin
	Search   *search.Plugin
	Validate *validate.Plugin

	// Plugins are attached after the capability plugins, in order.
	Plugins []store.Plugin

	StoreOptions []store.Option
	Logger       *slog.Logger
}

// Composer runs a single composition and remembers what it discovered.
type Composer struct {
	opts   Options
	logger *slog.Logger

	composed   bool
	entities   []crud.Binding
	migrations []migration.Descriptor
}

// New returns a composer for opts.
func New(opts Options) *Composer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{opts: opts, logger: logger}
}

// Compose is shorthand for New(opts).Compose(ctx).
func Compose(ctx context.Context, opts Options) (*store.Store, error) {
	return New(opts).Compose(ctx)
}

// Entities returns the entity types registered by Compose.
func (c *Composer) Entities() []crud.Binding {
	return c.entities
}

// Migrations returns the migrations in resolved order.
func (c *Composer) Migrations() []migration.Descriptor {
	return c.migrations
}

// Compose builds the store. Any failure is a startup failure; the
// database is closed and no store is returned.
func (c *Composer) Compose(ctx context.Context) (*store.Store, error) {
	if c.composed {
		return nil, apperr.StartupFailure("compose", fmt.Errorf("already composed"))
	}
	c.composed = true

	if c.opts.Catalog == nil {
		return nil, apperr.StartupFailure("compose", fmt.Errorf("no catalog"))
	}
	cfg := c.opts.Config

	// 1. Persistence backend.
	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.StartupFailure("open store", err)
		}
	}
	opts := append([]store.Option{store.WithLogger(c.logger)}, c.opts.StoreOptions...)
	s, err := store.Open(cfg.File, opts...)
	if err != nil {
		return nil, apperr.StartupFailure("open store", err)
	}
	c.logger.Debug("store opened", "path", cfg.File)

	built, err := c.build(ctx, s, cfg)
	if err != nil {
		s.Close()
		c.entities, c.migrations = nil, nil
		return nil, err
	}
	return built, nil
}

func (c *Composer) build(ctx context.Context, s *store.Store, cfg config.Config) (*store.Store, error) {
	b := store.NewBuilder(s)

	// 2. Initializer.
	if c.opts.Initializer != nil {
		b.InitNewStore(c.opts.Initializer)
	}

	// 3. Migrations.
	if err := c.addMigrations(b, cfg.Namespaces); err != nil {
		return nil, err
	}

	// 4. Entity types.
	if err := c.registerEntities(b, cfg.Namespaces); err != nil {
		return nil, err
	}

	// 5. Plugins.
	var plugins []store.Plugin
	if c.opts.History != nil {
		plugins = append(plugins, c.opts.History)
	}
	if c.opts.Search != nil {
		plugins = append(plugins, c.opts.Search)
	}
	if c.opts.Validate != nil {
		plugins = append(plugins, c.opts.Validate)
	}
	plugins = append(plugins, c.opts.Plugins...)
	for _, p := range plugins {
		if err := b.AddPlugin(p); err != nil {
			return nil, apperr.StartupFailure("attach plugin", err)
		}
		c.logger.Debug("plugin attached", "plugin", p.Name())
	}

	// 6. Build.
	built, err := b.Build(ctx)
	if err != nil {
		return nil, apperr.StartupFailure("build store", err)
	}
	c.logger.Info("store composed",
		"namespaces", cfg.Namespaces,
		"entities", len(c.entities),
		"migrations", len(c.migrations),
		"plugins", len(plugins),
	)
	return built, nil
}

func (c *Composer) addMigrations(b *store.Builder, namespaces []string) error {
	resolved, err := ResolveMigrations(c.opts.Catalog, namespaces)
	if err != nil {
		return err
	}

	c.migrations = resolved
	for _, d := range c.migrations {
		if err := b.AddMigration(d.Name, d.Transform); err != nil {
			return apperr.StartupFailure("add migration", err)
		}
		c.logger.Debug("migration registered", "migration", d.Name, "order", d.Order)
	}
	return nil
}

// ResolveMigrations discovers the migrations of namespaces, instantiates
// them and returns them in execution order. Nothing is applied.
func ResolveMigrations(cat *scan.Catalog, namespaces []string) ([]migration.Descriptor, error) {
	cands, err := cat.Discover(scan.MarkerMigration, namespaces)
	if err != nil {
		return nil, err
	}

	reg := migration.NewRegistry()
	for _, cand := range cands {
		if cand.Migration.New == nil {
			return nil, apperr.StartupFailure("instantiate migration",
				fmt.Errorf("%s has no constructor", cand.QualifiedName()))
		}
		err := reg.Register(migration.Descriptor{
			Name:      cand.Migration.Name,
			Order:     cand.Migration.Order,
			Transform: cand.Migration.New(),
		})
		if err != nil {
			return nil, apperr.StartupFailure("register migration", err)
		}
	}
	return reg.Resolve(), nil
}

func (c *Composer) registerEntities(b *store.Builder, namespaces []string) error {
	cands, err := c.opts.Catalog.Discover(scan.MarkerEntity, namespaces)
	if err != nil {
		return err
	}

	for _, cand := range cands {
		reg := cand.Entity
		desc := reg.Descriptor()
		if err := b.RegisterEntity(desc); err != nil {
			return apperr.StartupFailure("register entity", err)
		}

		if reg.Searchable() {
			if c.opts.Search == nil {
				c.logger.Warn("searchable entity without search plugin", "alias", desc.Alias())
			} else {
				c.opts.Search.Register(desc.Alias(), reg.SearchText)
			}
		}
		if reg.History() {
			if c.opts.History == nil {
				c.logger.Warn("history entity without history plugin", "alias", desc.Alias())
			} else {
				c.opts.History.Track(desc.Alias())
			}
		}
		if reg.Verified() {
			if c.opts.Validate == nil {
				c.logger.Warn("verified entity without validation plugin", "alias", desc.Alias())
			} else {
				c.opts.Validate.Register(desc.Alias(), reg.Verify)
			}
		}

		c.entities = append(c.entities, reg)
		c.logger.Debug("entity registered",
			"entity", cand.QualifiedName(),
			"collection", desc.Collection(),
			"searchable", reg.Searchable(),
			"history", reg.History(),
		)
	}
	return nil
}
