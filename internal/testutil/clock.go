// Package testutil holds helpers shared by tests that open a real store.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/storekit/internal/store"
)

// Epoch is the time of tick 0.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe logical clock. Each Now or TxID
// call advances it by one tick, so a store opened with StoreOptions
// produces byte-identical states for the same sequence of writes.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock at tick 0.
// The first call to Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new tick.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current tick without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset moves the clock back to tick 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// Now returns Epoch plus one second per tick.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Next()) * time.Second)
}

// TxID returns a UUIDv7-shaped id whose node part is the tick.
func (c *DeterministicClock) TxID() uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-7000-8000-%012d", c.Next()))
}

// StoreOptions wires the clock into a store.
func (c *DeterministicClock) StoreOptions() []store.Option {
	return []store.Option{store.WithClock(c.Now), store.WithTxIDs(c.TxID)}
}
