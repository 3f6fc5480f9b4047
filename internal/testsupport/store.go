package testsupport

import (
	"sync"
	"testing"
	"time"

	"proxyfarm/internal/config"
	"proxyfarm/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup. The
// event poller runs fast so subscription tests settle quickly.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...queue.Option) *queue.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	all := append([]queue.Option{
		queue.WithPollInterval(10 * time.Millisecond),
		queue.WithStaleAfter(cfg.RosterTimeout()),
	}, opts...)
	store, err := queue.OpenPath(cfg.QueueDBPath(), all...)
	if err != nil {
		t.Fatalf("queue.OpenPath: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Clock is a manually advanced clock for expiry and heartbeat tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current frozen time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
