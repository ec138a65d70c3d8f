// Package history tracks the state changes of selected entity types.
//
// The plugin rebuilds its index from the store's change log at startup
// and then follows commits, so it is always in step with the store.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/storekit/internal/store"
)

// ErrNotTracked is returned for entity types without history.
var ErrNotTracked = errors.New("history not tracked")

type key struct {
	alias string
	id    int64
}

// Plugin is a store.Observer keeping per-instance history in memory.
type Plugin struct {
	mu      sync.RWMutex
	tracked map[string]bool
	entries map[key][]store.InstanceState
}

// New returns a plugin tracking nothing yet.
func New() *Plugin {
	return &Plugin{
		tracked: make(map[string]bool),
		entries: make(map[key][]store.InstanceState),
	}
}

// Name implements store.Plugin.
func (p *Plugin) Name() string { return "history" }

// Track enables history for alias. Call before the store is built.
func (p *Plugin) Track(alias string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracked[alias] = true
}

// Tracked reports whether alias has history.
func (p *Plugin) Tracked(alias string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracked[alias]
}

// Init implements store.Observer by replaying the change log.
func (p *Plugin) Init(ctx context.Context, s *store.Store) error {
	p.mu.Lock()
	p.entries = make(map[key][]store.InstanceState)
	p.mu.Unlock()

	if err := s.Commits(ctx, 0, func(c store.Commit) error {
		p.apply(c)
		return nil
	}); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return nil
}

// Committed implements store.Observer.
func (p *Plugin) Committed(c store.Commit) {
	p.apply(c)
}

func (p *Plugin) apply(c store.Commit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range c.Changes {
		if !p.tracked[ch.Alias] {
			continue
		}
		st := store.InstanceState{
			Seq:         c.State.Seq,
			CommittedAt: c.State.CommittedAt,
			Kind:        ch.Kind,
			Version:     ch.Version,
		}
		if ch.Fields != nil {
			st.Fields = ch.Fields.Clone()
		}
		k := key{ch.Alias, ch.ID}
		p.entries[k] = append(p.entries[k], st)
	}
}

// History returns the states of one instance, oldest first. An instance
// that never existed has an empty history.
func (p *Plugin) History(alias string, id int64) ([]store.InstanceState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.tracked[alias] {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, alias)
	}
	entries := p.entries[key{alias, id}]
	out := make([]store.InstanceState, len(entries))
	copy(out, entries)
	return out, nil
}
