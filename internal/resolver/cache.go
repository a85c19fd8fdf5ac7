// internal/resolver/cache.go
//
// Short-TTL routing-key cache in front of the tenant directory.
//
// Context
// -------
// Every inbound request resolves its host header to a tenant context, so
// the lookup has to be cheap and safe under heavy concurrency.  The cache
// stores resolved contexts in a sync.Map keyed by normalized host, loads
// misses through singleflight so a cold key costs one directory query, and
// re-reads the directory once an entry is older than refreshTTL.  That TTL
// is the explicit upper bound on how long a reassigned or deleted routing
// key can keep serving its old tenant; `Invalidate` closes the window
// immediately when the mutation happens in-process.
package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/metrics"
)

// LoadFunc resolves one normalized host to a tenant context.
type LoadFunc func(ctx context.Context, host string) (directory.Context, error)

// EvictInterval is how often the background evictor scans the map.
const EvictInterval = 5 * time.Minute

type entry struct {
	tctx     directory.Context
	lastSeen int64 // UnixNano, touched on every hit
	loadedAt int64 // UnixNano, fixed at load time
}

// Cache lazily loads tenant contexts, stores them in a sync.Map, and
// evicts them on refresh TTL, idle TTL, or LRU pressure.
type Cache struct {
	load        LoadFunc
	sfg         singleflight.Group
	m           sync.Map
	evictTicker *time.Ticker
	refreshTTL  time.Duration
	idleTTL     time.Duration
	maxEntries  int
}

// NewCache constructs a Cache and starts the background evictor.
func NewCache(load LoadFunc, refreshTTL, idleTTL time.Duration, maxEntries int) *Cache {
	c := &Cache{
		load:       load,
		refreshTTL: refreshTTL,
		idleTTL:    idleTTL,
		maxEntries: maxEntries,
	}
	c.evictTicker = time.NewTicker(EvictInterval)
	go c.evictLoop()
	return c
}

// Get returns the tenant context for host, loading it on demand.  Entries
// older than refreshTTL are reloaded before being served again.
func (c *Cache) Get(ctx context.Context, host string) (directory.Context, error) {
	now := time.Now().UnixNano()
	if v, ok := c.m.Load(host); ok {
		ent := v.(*entry)
		if now-atomic.LoadInt64(&ent.loadedAt) < int64(c.refreshTTL) {
			atomic.StoreInt64(&ent.lastSeen, now)
			return ent.tctx, nil
		}
		// Stale; fall through to the singleflight reload below.
	}

	v, err, _ := c.sfg.Do(host, func() (interface{}, error) {
		// Double-check after singleflight barrier.
		if v, ok := c.m.Load(host); ok {
			ent := v.(*entry)
			if time.Now().UnixNano()-atomic.LoadInt64(&ent.loadedAt) < int64(c.refreshTTL) {
				atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
				return ent.tctx, nil
			}
		}
		// The load runs detached from the initiating request: a cohort of
		// waiters shares this one result, and the first caller hanging up
		// must not cancel the lookup for everyone behind it.
		tctx, err := c.load(context.Background(), host)
		if err != nil {
			metrics.ResolverLoadErrorsTotal.Inc()
			// Drop a stale entry rather than keep serving it.
			c.Invalidate(host)
			return directory.Context{}, err
		}
		t := time.Now().UnixNano()
		_, existed := c.m.Load(host)
		c.m.Store(host, &entry{tctx: tctx, lastSeen: t, loadedAt: t})
		metrics.ResolverLoadTotal.Inc()
		if !existed {
			metrics.ActiveResolverEntries.Inc()
		}
		return tctx, nil
	})
	if err != nil {
		return directory.Context{}, err
	}
	return v.(directory.Context), nil
}

// Invalidate drops one host mapping so the next request re-reads the
// directory.  Call it for every host a routing-key mutation can touch.
func (c *Cache) Invalidate(host string) {
	if _, ok := c.m.LoadAndDelete(host); ok {
		metrics.ActiveResolverEntries.Dec()
	}
}

// Stop halts the background evictor.  The cache stays usable.
func (c *Cache) Stop() { c.evictTicker.Stop() }
