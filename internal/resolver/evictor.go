// evictor.go houses the eviction loop for Cache.  Every EvictInterval it
// scans the map and removes:
//
//   - mappings idle longer than idleTTL
//   - least-recently-used mappings when map size exceeds maxEntries
//
// Eviction here is purely about memory; correctness staleness is bounded
// by the refresh TTL in cache.go.  Each eviction updates Prometheus
// counters.
package resolver

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/plumeworks/plume/internal/metrics"
)

func (c *Cache) evictLoop() {
	for range c.evictTicker.C {
		now := time.Now().UnixNano()
		var count int

		// ----------------------------------------------------------------
		// Idle eviction pass
		// ----------------------------------------------------------------
		c.m.Range(func(key, value any) bool {
			count++
			ent := value.(*entry)
			idle := time.Duration(now - atomic.LoadInt64(&ent.lastSeen))
			if idle > c.idleTTL {
				c.m.Delete(key)
				count--
				metrics.ResolverEvictTotal.Inc()
				metrics.ActiveResolverEntries.Dec()
			}
			return true
		})

		// ----------------------------------------------------------------
		// LRU eviction pass
		// ----------------------------------------------------------------
		if c.maxEntries > 0 && count > c.maxEntries {
			type kv struct {
				key string
				at  int64
			}
			var all []kv
			c.m.Range(func(key, value any) bool {
				ent := value.(*entry)
				all = append(all, kv{key: key.(string), at: atomic.LoadInt64(&ent.lastSeen)})
				return true
			})
			sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
			for i := 0; i < len(all)-c.maxEntries; i++ {
				if _, ok := c.m.LoadAndDelete(all[i].key); ok {
					metrics.ResolverEvictTotal.Inc()
					metrics.ActiveResolverEntries.Dec()
				}
			}
		}
	}
}
