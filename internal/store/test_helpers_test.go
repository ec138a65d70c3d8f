package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/storekit/internal/entity"
	"github.com/roach88/storekit/internal/value"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore opens a store in a temp dir with a fixed clock and
// sequential transaction ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	var (
		mu   sync.Mutex
		tick int64
	)
	next := func() int64 {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return tick
	}
	s, err := Open(path,
		WithClock(func() time.Time { return testEpoch.Add(time.Duration(next()) * time.Second) }),
		WithTxIDs(func() uuid.UUID {
			return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012d", next()))
		}),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func widgetDescriptor(t *testing.T) *entity.Descriptor {
	t.Helper()
	d, err := entity.NewDescriptor("widget", "widgets",
		entity.Prop("name", value.KindString),
		entity.Prop("count", value.KindInt),
		entity.Prop("tags", value.KindStrings),
	)
	if err != nil {
		t.Fatalf("NewDescriptor() failed: %v", err)
	}
	return d
}

// createWidgetStore returns a built store with the widget type registered.
func createWidgetStore(t *testing.T, plugins ...Plugin) *Store {
	t.Helper()
	b := NewBuilder(createTestStore(t))
	if err := b.RegisterEntity(widgetDescriptor(t)); err != nil {
		t.Fatalf("RegisterEntity() failed: %v", err)
	}
	for _, p := range plugins {
		if err := b.AddPlugin(p); err != nil {
			t.Fatalf("AddPlugin() failed: %v", err)
		}
	}
	s, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return s
}

// recordingPlugin records observer callbacks and optionally rejects changes.
type recordingPlugin struct {
	mu      sync.Mutex
	inits   int
	seeded  []Commit
	commits []Commit
	reject  func(Change) error
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) Init(ctx context.Context, s *Store) error {
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()
	return s.Commits(ctx, 0, func(c Commit) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.seeded = append(p.seeded, c)
		return nil
	})
}

func (p *recordingPlugin) Committed(c Commit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commits = append(p.commits, c)
}

func (p *recordingPlugin) Verify(_ context.Context, ch Change) error {
	if p.reject == nil {
		return nil
	}
	return p.reject(ch)
}

func ptr(v int64) *int64 { return &v }
