// Package search indexes entity text and answers token queries.
//
// Text is case folded and NFC normalized, then split into letter and
// digit runs. A query matches an instance when every query token occurs
// among the instance's tokens. There is no ranking; hits are ordered by
// entity type and id.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

// Extractor returns the searchable text of an instance.
type Extractor func(fields value.Object) (string, error)

// Hit identifies a matching instance.
type Hit struct {
	Alias string `json:"type"`
	ID    int64  `json:"id"`
}

type key struct {
	alias string
	id    int64
}

// Plugin is a store.Observer maintaining an in-memory token index.
type Plugin struct {
	logger *slog.Logger

	mu         sync.RWMutex
	extractors map[string]Extractor
	docs       map[key]map[string]struct{}
}

// New returns an empty index. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		logger:     logger,
		extractors: make(map[string]Extractor),
		docs:       make(map[key]map[string]struct{}),
	}
}

// Name implements store.Plugin.
func (p *Plugin) Name() string { return "search" }

// Register makes alias searchable. Call before the store is built.
func (p *Plugin) Register(alias string, fn Extractor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extractors[alias] = fn
}

// Init implements store.Observer by indexing the change log.
func (p *Plugin) Init(ctx context.Context, s *store.Store) error {
	p.mu.Lock()
	p.docs = make(map[key]map[string]struct{})
	p.mu.Unlock()

	if err := s.Commits(ctx, 0, func(c store.Commit) error {
		p.apply(c)
		return nil
	}); err != nil {
		return fmt.Errorf("search: %w", err)
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
		fn, ok := p.extractors[ch.Alias]
		if !ok {
			continue
		}
		k := key{ch.Alias, ch.ID}
		if ch.Kind == store.ChangeDelete {
			delete(p.docs, k)
			continue
		}
		text, err := fn(ch.Fields)
		if err != nil {
			// Keep the previous tokens; the next successful change reindexes.
			p.logger.Warn("search: extract text failed",
				"alias", ch.Alias,
				"id", ch.ID,
				"seq", c.State.Seq,
				"error", err,
			)
			continue
		}
		set := make(map[string]struct{})
		for _, tok := range Tokenize(text) {
			set[tok] = struct{}{}
		}
		p.docs[k] = set
	}
}

// Search returns the instances containing every token of text.
// An empty query matches nothing.
func (p *Plugin) Search(text string) []Hit {
	tokens := Tokenize(text)
	hits := []Hit{}
	if len(tokens) == 0 {
		return hits
	}

	p.mu.RLock()
	for k, set := range p.docs {
		if containsAll(set, tokens) {
			hits = append(hits, Hit{Alias: k.alias, ID: k.id})
		}
	}
	p.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Alias != hits[j].Alias {
			return hits[i].Alias < hits[j].Alias
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

func containsAll(set map[string]struct{}, tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}

// Tokenize folds case, normalizes to NFC and splits text into runs of
// letters and digits.
func Tokenize(text string) []string {
	folded := norm.NFC.String(cases.Fold().String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
