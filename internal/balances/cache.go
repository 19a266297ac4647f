// Package balances keeps a time-boxed copy of the balances table. Reads are
// served from memory; only a cold cache or an explicit Refresh reaches the
// spreadsheet.
package balances

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"finbot/internal/core"
	"finbot/internal/log"
)

// DefaultTTL is how long a snapshot counts as fresh.
const DefaultTTL = 24 * time.Hour

// Fetcher reads the whole balances table in one call.
type Fetcher interface {
	Fetch(ctx context.Context) ([]core.BalanceRecord, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]core.BalanceRecord, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]core.BalanceRecord, error) {
	return f(ctx)
}

// RefreshHook runs after every successful refresh with the new snapshot.
type RefreshHook func(ctx context.Context, snap core.Snapshot)

// Status describes the cache for diagnostics.
type Status struct {
	Populated bool          `json:"populated"`
	Fresh     bool          `json:"fresh"`
	FetchedAt time.Time     `json:"fetched_at"`
	Records   int           `json:"records"`
	TTL       time.Duration `json:"ttl"`
	Age       time.Duration `json:"age"`
}

// Cache holds the last balances snapshot.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger

	mu    sync.RWMutex
	snap  *core.Snapshot
	hooks []RefreshHook

	group singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// OnRefresh registers hook to run after each successful refresh.
func OnRefresh(hook RefreshHook) Option {
	return func(c *Cache) {
		if hook != nil {
			c.hooks = append(c.hooks, hook)
		}
	}
}

// Subscribe adds hook after construction.
func (c *Cache) Subscribe(hook RefreshHook) {
	if hook == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// New creates an empty cache over fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  log.Default(log.ComponentBalances),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached snapshot, stale or not. A cold cache, including one
// holding an empty table, is refreshed first.
func (c *Cache) Get(ctx context.Context) (core.Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()

	if snap != nil && snap.Len() > 0 {
		return snap.Clone(), nil
	}
	c.logger.DebugContext(ctx, "Balances cache cold, refreshing")
	return c.Refresh(ctx)
}

// Refresh fetches the table and swaps it in. On failure the previous snapshot
// stays in place. Concurrent calls share one fetch.
func (c *Cache) Refresh(ctx context.Context) (core.Snapshot, error) {
	// The fetch is shared, so one caller going away must not cancel it for
	// the others. The transport timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	v, err, joined := c.group.Do("refresh", func() (any, error) {
		return c.refresh(shared)
	})
	if err != nil {
		return core.Snapshot{}, err
	}
	snap := v.(*core.Snapshot)
	if joined {
		c.logger.DebugContext(ctx, "Balances refresh shared with concurrent caller")
	}
	return snap.Clone(), nil
}

func (c *Cache) refresh(ctx context.Context) (*core.Snapshot, error) {
	start := c.now()
	records, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Balances refresh failed, keeping previous snapshot",
			log.FieldError, err, log.FieldOperation, log.OpRefresh)
		return nil, err
	}

	snap := &core.Snapshot{Records: records, FetchedAt: c.now()}
	c.mu.Lock()
	c.snap = snap
	hooks := append([]RefreshHook(nil), c.hooks...)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Balances refreshed",
		log.FieldRecords, snap.Len(),
		log.FieldFailures, snap.ConversionFailures(),
		log.FieldDuration, snap.FetchedAt.Sub(start).Milliseconds())

	for _, hook := range hooks {
		hook(ctx, snap.Clone())
	}
	return snap, nil
}

// IsFresh reports whether the snapshot is younger than the TTL. It never
// triggers a fetch.
func (c *Cache) IsFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.freshLocked()
}

func (c *Cache) freshLocked() bool {
	if c.snap == nil {
		return false
	}
	return c.now().Sub(c.snap.FetchedAt) < c.ttl
}

func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{TTL: c.ttl}
	if c.snap == nil {
		return st
	}
	st.Populated = c.snap.Len() > 0
	st.Fresh = c.freshLocked()
	st.FetchedAt = c.snap.FetchedAt
	st.Records = c.snap.Len()
	st.Age = c.now().Sub(c.snap.FetchedAt)
	return st
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
