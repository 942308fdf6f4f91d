package intent

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/domain"
)

type cacheEntry struct {
	result     Result
	insertedAt time.Time
}

// resultCache is a size-bounded TTL cache for classification results.
// When full, expired entries are evicted first; if still over capacity,
// an arbitrary entry goes.
type resultCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

func newResultCache(maxEntries int, ttl time.Duration) *resultCache {
	// A non-positive capacity would make the eviction loop in put spin
	// on an empty map. Repair here so the invariant does not depend on
	// the caller having validated its config.
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}
	if ttl <= 0 {
		ttl = time.Duration(config.DefaultCacheTTLSeconds * float64(time.Second))
	}
	return &resultCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// cacheKey derives the lookup key from the utterance, the sorted tool set
// and a hash of the conversation context.
func cacheKey(utterance string, tools []string, ctx *domain.Context) string {
	sorted := make([]string, len(tools))
	copy(sorted, tools)
	sort.Strings(sorted)
	return utterance + "|" + strings.Join(sorted, ",") + "|" + ctx.Hash()
}

// get returns a cached result if present and unexpired.
func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

func (c *resultCache) put(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		now := c.now()
		for k, e := range c.entries {
			if now.Sub(e.insertedAt) >= c.ttl {
				delete(c.entries, k)
			}
		}
		for len(c.entries) >= c.maxEntries {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[key] = cacheEntry{result: r, insertedAt: c.now()}
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
