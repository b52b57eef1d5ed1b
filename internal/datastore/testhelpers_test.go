package datastore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/conf"
)

// fakeClock hands out deterministic timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestStore opens a migrated in-memory SQLite store.
func newTestStore(t *testing.T) (*SQLiteStore, *fakeClock) {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = MemoryPath

	clock := newFakeClock()
	store := &SQLiteStore{Settings: settings}
	store.Now = clock.Now
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func ptr[T any](v T) *T { return &v }

func newSettings() *conf.Settings {
	return &conf.Settings{}
}
