// Package validate runs per-entity verifiers before changes commit.
package validate

import (
	"context"
	"sync"

	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

// Func checks the full field set an instance will have after a change.
type Func func(fields value.Object) error

// Plugin is a store.Verifier dispatching to per-entity functions.
// Deletes are never verified.
type Plugin struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// New returns a plugin with no verifiers.
func New() *Plugin {
	return &Plugin{funcs: make(map[string]Func)}
}

// Name implements store.Plugin.
func (p *Plugin) Name() string { return "validation" }

// Register sets the verifier for alias, replacing any previous one.
func (p *Plugin) Register(alias string, fn Func) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funcs[alias] = fn
}

// Verify implements store.Verifier.
func (p *Plugin) Verify(_ context.Context, ch store.Change) error {
	if ch.Kind == store.ChangeDelete {
		return nil
	}
	p.mu.RLock()
	fn := p.funcs[ch.Alias]
	p.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ch.Fields)
}
